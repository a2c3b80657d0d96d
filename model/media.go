package model

import (
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm/clause"

	"github.com/leafdriven/mediadex/common/logger"
)

// File types stored in the index. Ingestion only admits video, audio and
// document; the rest exist for records imported from links.
const (
	FileTypeVideo       = "video"
	FileTypeAudio       = "audio"
	FileTypeDocument    = "document"
	FileTypePhoto       = "photo"
	FileTypeAnimation   = "animation"
	FileTypeApplication = "application"
)

// MediaFile is the canonical index entity. FileUniqueID is the semantic
// dedup guard; the compound unique index on name+caption is the structural
// one. FileRef is a short stable alias derived from FileID for shareable
// links.
type MediaFile struct {
	FileUniqueID string `json:"file_unique_id" gorm:"primaryKey;type:varchar(64)"`
	FileID       string `json:"file_id" gorm:"type:varchar(256);index"`
	FileRef      string `json:"file_ref" gorm:"type:varchar(32);uniqueIndex"`
	FileName     string `json:"file_name" gorm:"type:varchar(512);uniqueIndex:idx_name_caption,length:256;index:idx_type_indexed,priority:3"`
	FileSize     int64  `json:"file_size" gorm:"bigint;index"`
	FileType     string `json:"file_type" gorm:"type:varchar(16);index:idx_type_indexed,priority:1"`
	MimeType     string `json:"mime_type" gorm:"type:varchar(128)"`
	Caption      string `json:"caption" gorm:"type:varchar(1024);uniqueIndex:idx_name_caption,length:256"`
	IndexedAt    int64  `json:"indexed_at" gorm:"bigint;autoCreateTime;index;index:idx_type_indexed,priority:2"`
	UpdatedAt    int64  `json:"updated_at" gorm:"bigint;autoUpdateTime"`
}

type SaveStatus string

const (
	SaveStatusSaved     SaveStatus = "saved"
	SaveStatusDuplicate SaveStatus = "duplicate"
	SaveStatusError     SaveStatus = "error"
)

// MakeFileRef derives the short stable alias embedded in shareable links.
// The same file_id always yields the same ref.
func MakeFileRef(fileID string) string {
	sum := sha256.Sum256([]byte(fileID))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:12]
}

// NormalizeFileName prepares a name for search: separator characters become
// spaces and runs of whitespace collapse.
func NormalizeFileName(name string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', '+':
			return ' '
		}
		return r
	}, name)
	return strings.Join(strings.Fields(replaced), " ")
}

// SaveMedia inserts a file, treating an existing FileUniqueID as a normal
// duplicate outcome with the existing record returned, never an error.
func SaveMedia(f *MediaFile) (SaveStatus, *MediaFile, error) {
	if f.FileUniqueID == "" {
		return SaveStatusError, nil, errors.New("file_unique_id is empty")
	}
	if f.FileRef == "" {
		f.FileRef = MakeFileRef(f.FileID)
	}
	f.FileName = NormalizeFileName(f.FileName)

	var existing MediaFile
	if err := DB.First(&existing, "file_unique_id = ?", f.FileUniqueID).Error; err == nil {
		return SaveStatusDuplicate, &existing, nil
	}

	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Create(f).Error
	})
	if err != nil {
		// A concurrent writer may have won the unique index race.
		if derr := DB.First(&existing, "file_unique_id = ?", f.FileUniqueID).Error; derr == nil {
			return SaveStatusDuplicate, &existing, nil
		}
		return SaveStatusError, nil, errors.Wrapf(err, "save media %s", f.FileUniqueID)
	}
	return SaveStatusSaved, f, nil
}

// FindFile looks a file up by any of its three identifiers, repairing a
// missing file_ref on the way out.
func FindFile(identifier string) (*MediaFile, error) {
	if identifier == "" {
		return nil, errors.New("identifier is empty")
	}
	var f MediaFile
	err := DB.Where("file_unique_id = ?", identifier).
		Or("file_id = ?", identifier).
		Or("file_ref = ?", identifier).
		First(&f).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find file %s", identifier)
	}
	if f.FileRef == "" && f.FileID != "" {
		f.FileRef = MakeFileRef(f.FileID)
		if uerr := DB.Model(&f).Update("file_ref", f.FileRef).Error; uerr != nil {
			logger.Logger.Warn("file_ref repair failed",
				zap.String("file_unique_id", f.FileUniqueID), zap.Error(uerr))
		}
	}
	return &f, nil
}

// BatchCheckDuplicates resolves which of the given unique ids already exist
// with a single indexed query.
func BatchCheckDuplicates(uniqueIDs []string) (map[string]*MediaFile, error) {
	out := make(map[string]*MediaFile, len(uniqueIDs))
	if len(uniqueIDs) == 0 {
		return out, nil
	}
	var rows []*MediaFile
	if err := DB.Where("file_unique_id IN ?", uniqueIDs).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "batch duplicate check")
	}
	for _, r := range rows {
		out[r.FileUniqueID] = r
	}
	return out, nil
}

// BulkSaveMedia inserts files with an unordered conflict-ignoring write so
// one duplicate cannot abort the batch; on bulk failure it falls back to
// per-row inserts so a single bad row does not poison the rest.
func BulkSaveMedia(files []*MediaFile) (saved int, errCount int) {
	if len(files) == 0 {
		return 0, 0
	}
	for _, f := range files {
		if f.FileRef == "" {
			f.FileRef = MakeFileRef(f.FileID)
		}
		f.FileName = NormalizeFileName(f.FileName)
	}

	var err error
	err = runWithSQLiteBusyRetry(nil, func() error {
		return DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&files).Error
	})
	if err == nil {
		return len(files), 0
	}

	logger.Logger.Warn("bulk insert failed, falling back to per-row inserts", zap.Error(err))
	for _, f := range files {
		status, _, serr := SaveMedia(f)
		switch {
		case serr != nil:
			errCount++
		case status == SaveStatusSaved, status == SaveStatusDuplicate:
			saved++
		}
	}
	return saved, errCount
}

// BuildSearchRegex compiles the query into the matching expression: empty
// matches everything; a single token must sit on a word or separator
// boundary; multiple tokens may be separated by anything ending in a
// separator.
func BuildSearchRegex(query string) (*regexp.Regexp, error) {
	normalized := NormalizeFileName(query)
	tokens := strings.Fields(normalized)

	var pattern string
	switch len(tokens) {
	case 0:
		pattern = "."
	case 1:
		pattern = `(\b|[._+-])` + regexp.QuoteMeta(tokens[0]) + `(\b|[._+-])`
	default:
		quoted := make([]string, len(tokens))
		for i, t := range tokens {
			quoted[i] = regexp.QuoteMeta(t)
		}
		pattern = strings.Join(quoted, `.*[\s._+-]`)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "compile search pattern for %q", query)
	}
	return re, nil
}

// searchCandidates pulls a bounded, LIKE-prefiltered candidate set ordered
// newest first; the compiled regex then decides exact membership.
func searchCandidates(tokens []string, fileType string, useCaption bool, scanCap int) ([]*MediaFile, error) {
	q := DB.Model(&MediaFile{})
	for _, t := range tokens {
		like := "%" + t + "%"
		if useCaption {
			q = q.Where("file_name LIKE ? OR caption LIKE ?", like, like)
		} else {
			q = q.Where("file_name LIKE ?", like)
		}
	}
	if fileType != "" {
		q = q.Where("file_type = ?", fileType)
	}
	var rows []*MediaFile
	err := q.Order("indexed_at desc, file_unique_id desc").Limit(scanCap).Find(&rows).Error
	return rows, errors.Wrap(err, "search candidates")
}

// SearchFiles resolves a text query to one page of matches plus the total
// and the next offset (0 when exhausted).
func SearchFiles(query, fileType string, offset, limit int, useCaption bool, scanCap int) ([]*MediaFile, int, int, error) {
	re, err := BuildSearchRegex(query)
	if err != nil {
		return nil, 0, 0, err
	}
	tokens := strings.Fields(NormalizeFileName(query))

	candidates, err := searchCandidates(tokens, fileType, useCaption, scanCap)
	if err != nil {
		return nil, 0, 0, err
	}

	matched := make([]*MediaFile, 0, len(candidates))
	for _, c := range candidates {
		if re.MatchString(c.FileName) || (useCaption && re.MatchString(c.Caption)) {
			matched = append(matched, c)
		}
	}

	total := len(matched)
	if offset >= total {
		return []*MediaFile{}, 0, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	next := 0
	if end < total {
		next = end
	}
	return matched[offset:end], next, total, nil
}

// DeleteFileByUniqueID removes one file and returns the deleted row so the
// caller can invalidate its derived cache entries.
func DeleteFileByUniqueID(uniqueID string) (*MediaFile, error) {
	var f MediaFile
	if err := DB.First(&f, "file_unique_id = ?", uniqueID).Error; err != nil {
		return nil, errors.Wrapf(err, "find file %s for deletion", uniqueID)
	}
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Delete(&MediaFile{}, "file_unique_id = ?", uniqueID).Error
	})
	if err != nil {
		return nil, errors.Wrapf(err, "delete file %s", uniqueID)
	}
	return &f, nil
}

// DeleteFilesByKeyword bulk-deletes every file matching the keyword and
// returns the deleted rows for cache invalidation.
func DeleteFilesByKeyword(keyword string, useCaption bool, scanCap int) ([]*MediaFile, error) {
	matched, _, _, err := SearchFiles(keyword, "", 0, scanCap, useCaption, scanCap)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	ids := make([]string, len(matched))
	for i, f := range matched {
		ids[i] = f.FileUniqueID
	}
	err = runWithSQLiteBusyRetry(nil, func() error {
		return DB.Delete(&MediaFile{}, "file_unique_id IN ?", ids).Error
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bulk delete %d files for keyword %q", len(ids), keyword)
	}
	return matched, nil
}

// FileStats is the aggregated view over the index.
type FileStats struct {
	TotalFiles int64                `json:"total_files"`
	TotalSize  int64                `json:"total_size"`
	ByType     map[string]TypeStats `json:"by_type"`
}

type TypeStats struct {
	Count int64 `json:"count"`
	Size  int64 `json:"size"`
}

// GetFileStats runs a single grouped aggregation over the index.
func GetFileStats() (*FileStats, error) {
	var rows []struct {
		FileType string
		Count    int64
		Size     int64
	}
	err := DB.Model(&MediaFile{}).
		Select("file_type, COUNT(*) as count, COALESCE(SUM(file_size), 0) as size").
		Group("file_type").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "aggregate file stats")
	}

	stats := &FileStats{ByType: make(map[string]TypeStats, len(rows))}
	for _, r := range rows {
		stats.ByType[r.FileType] = TypeStats{Count: r.Count, Size: r.Size}
		stats.TotalFiles += r.Count
		stats.TotalSize += r.Size
	}
	return stats, nil
}
