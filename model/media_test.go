package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFile(uid, name string) *MediaFile {
	return &MediaFile{
		FileUniqueID: uid,
		FileID:       "fid-" + uid,
		FileName:     name,
		FileSize:     1024,
		FileType:     FileTypeVideo,
		MimeType:     "video/mp4",
	}
}

func TestSaveMediaDuplicate(t *testing.T) {
	setupTestDB(t)

	status, saved, err := SaveMedia(newTestFile("u1", "The.Matrix.1999.mkv"))
	require.NoError(t, err)
	assert.Equal(t, SaveStatusSaved, status)
	assert.Equal(t, "The Matrix 1999 mkv", saved.FileName)
	assert.NotEmpty(t, saved.FileRef)

	// Same unique id is a normal outcome carrying the stored record.
	status, existing, err := SaveMedia(newTestFile("u1", "renamed.mkv"))
	require.NoError(t, err)
	assert.Equal(t, SaveStatusDuplicate, status)
	assert.Equal(t, "The Matrix 1999 mkv", existing.FileName)
}

func TestFindFileByAnyIdentifier(t *testing.T) {
	setupTestDB(t)

	_, _, err := SaveMedia(newTestFile("u2", "clip.mp4"))
	require.NoError(t, err)
	status, saved2, err := SaveMedia(newTestFile("u3", "other.mp4"))
	require.NoError(t, err)
	require.Equal(t, SaveStatusSaved, status)

	for _, ident := range []string{"u3", "fid-u3", saved2.FileRef} {
		f, err := FindFile(ident)
		require.NoError(t, err, ident)
		assert.Equal(t, "u3", f.FileUniqueID)
	}

	_, err = FindFile("missing")
	assert.Error(t, err)
}

func TestFindFileRepairsMissingRef(t *testing.T) {
	setupTestDB(t)

	_, _, err := SaveMedia(newTestFile("u4", "a.mkv"))
	require.NoError(t, err)
	require.NoError(t, DB.Model(&MediaFile{}).Where("file_unique_id = ?", "u4").
		Update("file_ref", "").Error)

	f, err := FindFile("u4")
	require.NoError(t, err)
	assert.Equal(t, MakeFileRef("fid-u4"), f.FileRef)

	stored, err := FindFile("u4")
	require.NoError(t, err)
	assert.Equal(t, f.FileRef, stored.FileRef)
}

func TestBatchCheckDuplicates(t *testing.T) {
	setupTestDB(t)

	_, _, err := SaveMedia(newTestFile("u5", "a.mkv"))
	require.NoError(t, err)
	_, _, err = SaveMedia(newTestFile("u6", "b.mkv"))
	require.NoError(t, err)

	got, err := BatchCheckDuplicates([]string{"u5", "u6", "u7"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "u5")
	assert.NotContains(t, got, "u7")

	empty, err := BatchCheckDuplicates(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBulkSaveMediaIgnoresDuplicates(t *testing.T) {
	setupTestDB(t)

	_, _, err := SaveMedia(newTestFile("u8", "dup.mkv"))
	require.NoError(t, err)

	batch := []*MediaFile{
		newTestFile("u8", "dup.mkv"),
		newTestFile("u9", "fresh one.mkv"),
		newTestFile("u10", "fresh two.mkv"),
	}
	saved, errCount := BulkSaveMedia(batch)
	assert.Zero(t, errCount)
	assert.Positive(t, saved)

	var count int64
	require.NoError(t, DB.Model(&MediaFile{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestBuildSearchRegex(t *testing.T) {
	setupTestDB(t)

	cases := []struct {
		query   string
		matches []string
		misses  []string
	}{
		{
			query:   "",
			matches: []string{"anything at all"},
		},
		{
			query:   "matrix",
			matches: []string{"The Matrix 1999", "the.matrix.1999", "re-matrix-ed"},
			misses:  []string{"matrixreloaded"},
		},
		{
			query:   "matrix 1999",
			matches: []string{"The Matrix 1999 mkv", "matrix.x264.1999"},
			misses:  []string{"1999 matrix"},
		},
	}
	for _, tc := range cases {
		re, err := BuildSearchRegex(tc.query)
		require.NoError(t, err, tc.query)
		for _, m := range tc.matches {
			assert.True(t, re.MatchString(m), "%q should match %q", tc.query, m)
		}
		for _, m := range tc.misses {
			assert.False(t, re.MatchString(m), "%q should not match %q", tc.query, m)
		}
	}
}

func TestSearchFilesPagination(t *testing.T) {
	setupTestDB(t)

	for i := 0; i < 7; i++ {
		f := newTestFile(fmt.Sprintf("s%d", i), fmt.Sprintf("galaxy episode %d", i))
		f.IndexedAt = int64(1000 + i)
		_, _, err := SaveMedia(f)
		require.NoError(t, err)
	}
	_, _, err := SaveMedia(newTestFile("sx", "unrelated.mkv"))
	require.NoError(t, err)

	page, next, total, err := SearchFiles("galaxy", "", 0, 5, false, 5000)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, page, 5)
	assert.Equal(t, 5, next)
	// Newest first.
	assert.Equal(t, "galaxy episode 6", page[0].FileName)

	page, next, total, err = SearchFiles("galaxy", "", 5, 5, false, 5000)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, page, 2)
	assert.Zero(t, next)

	// Offset past the result set is empty, not an error.
	page, next, total, err = SearchFiles("galaxy", "", 50, 5, false, 5000)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Zero(t, next)
	assert.Equal(t, 7, total)
}

func TestSearchFilesTypeFilterAndCaption(t *testing.T) {
	setupTestDB(t)

	doc := newTestFile("d1", "galaxy notes.pdf")
	doc.FileType = FileTypeDocument
	_, _, err := SaveMedia(doc)
	require.NoError(t, err)
	vid := newTestFile("v1", "galaxy trailer.mp4")
	_, _, err = SaveMedia(vid)
	require.NoError(t, err)
	capFile := newTestFile("c1", "noname.bin")
	capFile.FileType = FileTypeDocument
	capFile.Caption = "deep galaxy survey"
	_, _, err = SaveMedia(capFile)
	require.NoError(t, err)

	page, _, total, err := SearchFiles("galaxy", FileTypeDocument, 0, 10, false, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "d1", page[0].FileUniqueID)

	_, _, total, err = SearchFiles("galaxy", FileTypeDocument, 0, 10, true, 5000)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestDeleteFilesByKeyword(t *testing.T) {
	setupTestDB(t)

	for i := 0; i < 3; i++ {
		_, _, err := SaveMedia(newTestFile(fmt.Sprintf("k%d", i), fmt.Sprintf("purgeme part %d", i)))
		require.NoError(t, err)
	}
	_, _, err := SaveMedia(newTestFile("keep", "keeper.mkv"))
	require.NoError(t, err)

	deleted, err := DeleteFilesByKeyword("purgeme", false, 5000)
	require.NoError(t, err)
	assert.Len(t, deleted, 3)

	var count int64
	require.NoError(t, DB.Model(&MediaFile{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// No matches is a no-op.
	deleted, err = DeleteFilesByKeyword("purgeme", false, 5000)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestGetFileStats(t *testing.T) {
	setupTestDB(t)

	v := newTestFile("st1", "a.mp4")
	v.FileSize = 100
	_, _, err := SaveMedia(v)
	require.NoError(t, err)
	d := newTestFile("st2", "b.pdf")
	d.FileType = FileTypeDocument
	d.FileSize = 50
	_, _, err = SaveMedia(d)
	require.NoError(t, err)

	stats, err := GetFileStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalFiles)
	assert.Equal(t, int64(150), stats.TotalSize)
	assert.Equal(t, int64(1), stats.ByType[FileTypeVideo].Count)
	assert.Equal(t, int64(50), stats.ByType[FileTypeDocument].Size)
}
