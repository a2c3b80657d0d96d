package model

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter is a per-group keyword auto-reply. Keywords are stored lowercase
// and matched against incoming group text by the handler layer.
type Filter struct {
	Id        int64  `json:"id" gorm:"primaryKey"`
	GroupID   int64  `json:"group_id" gorm:"uniqueIndex:idx_group_keyword;index"`
	Keyword   string `json:"keyword" gorm:"type:varchar(256);uniqueIndex:idx_group_keyword"`
	Reply     string `json:"reply" gorm:"type:varchar(4096)"`
	FileID    string `json:"file_id" gorm:"type:varchar(256)"`
	FileType  string `json:"file_type" gorm:"type:varchar(16)"`
	Buttons   string `json:"buttons" gorm:"type:varchar(2048)"`
	Alert     string `json:"alert" gorm:"type:varchar(512)"`
	CreatedAt int64  `json:"created_at" gorm:"bigint;autoCreateTime"`
}

// SaveFilter upserts the keyword for the group, replacing any previous
// reply bound to it.
func SaveFilter(f *Filter) error {
	f.Keyword = strings.ToLower(f.Keyword)
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "keyword"}},
			DoUpdates: clause.AssignmentColumns([]string{"reply", "file_id", "file_type", "buttons", "alert"}),
		}).Create(f).Error
	})
	return errors.Wrapf(err, "save filter %q for group %d", f.Keyword, f.GroupID)
}

func GetFilter(groupID int64, keyword string) (*Filter, error) {
	keyword = strings.ToLower(keyword)
	var f Filter
	err := DB.Where("group_id = ? AND keyword = ?", groupID, keyword).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get filter %q for group %d", keyword, groupID)
	}
	return &f, nil
}

func ListFilterKeywords(groupID int64) ([]string, error) {
	var keywords []string
	err := DB.Model(&Filter{}).Where("group_id = ?", groupID).
		Order("keyword asc").Pluck("keyword", &keywords).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list filters for group %d", groupID)
	}
	return keywords, nil
}

// DeleteFilter removes one keyword and reports whether it existed.
func DeleteFilter(groupID int64, keyword string) (bool, error) {
	keyword = strings.ToLower(keyword)
	var affected int64
	err := runWithSQLiteBusyRetry(nil, func() error {
		result := DB.Delete(&Filter{}, "group_id = ? AND keyword = ?", groupID, keyword)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return false, errors.Wrapf(err, "delete filter %q for group %d", keyword, groupID)
	}
	return affected > 0, nil
}

// DeleteAllFilters wipes a group's filter set and returns how many were
// removed.
func DeleteAllFilters(groupID int64) (int64, error) {
	var affected int64
	err := runWithSQLiteBusyRetry(nil, func() error {
		result := DB.Delete(&Filter{}, "group_id = ?", groupID)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, errors.Wrapf(err, "delete all filters for group %d", groupID)
	}
	return affected, nil
}
