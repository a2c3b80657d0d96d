package model

import (
	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexedChannel is a source chat whose media posts feed the index.
// Disabled channels stay registered but their messages are ignored.
type IndexedChannel struct {
	Id            int64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Username      string `json:"username" gorm:"type:varchar(64)"`
	Title         string `json:"title" gorm:"type:varchar(256)"`
	Enabled       bool   `json:"enabled" gorm:"default:true;index"`
	IndexedCount  int64  `json:"indexed_count" gorm:"bigint;default:0"`
	LastIndexedAt int64  `json:"last_indexed_at" gorm:"bigint;default:0"`
	AddedBy       int64  `json:"added_by"`
	CreatedAt     int64  `json:"created_at" gorm:"bigint;autoCreateTime"`
	UpdatedAt     int64  `json:"updated_at" gorm:"bigint;autoUpdateTime"`
}

func AddIndexedChannel(id int64, username, title string, addedBy int64) error {
	ch := &IndexedChannel{Id: id, Username: username, Title: title, Enabled: true, AddedBy: addedBy}
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "title", "enabled"}),
		}).Create(ch).Error
	})
	return errors.Wrapf(err, "add indexed channel %d", id)
}

// BumpChannelIndexed accumulates ingest progress for a channel.
func BumpChannelIndexed(id int64, n int64, at int64) error {
	err := DB.Model(&IndexedChannel{}).Where("id = ?", id).Updates(map[string]any{
		"indexed_count":   gorm.Expr("indexed_count + ?", n),
		"last_indexed_at": at,
	}).Error
	return errors.Wrapf(err, "bump indexed count for channel %d", id)
}

func RemoveIndexedChannel(id int64) error {
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Delete(&IndexedChannel{}, "id = ?", id).Error
	})
	return errors.Wrapf(err, "remove indexed channel %d", id)
}

func SetChannelEnabled(id int64, enabled bool) error {
	result := DB.Model(&IndexedChannel{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "toggle channel %d", id)
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("channel %d is not registered", id)
	}
	return nil
}

func GetIndexedChannel(id int64) (*IndexedChannel, error) {
	var ch IndexedChannel
	if err := DB.First(&ch, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get indexed channel %d", id)
	}
	return &ch, nil
}

func ListIndexedChannels() ([]*IndexedChannel, error) {
	var channels []*IndexedChannel
	if err := DB.Order("created_at asc").Find(&channels).Error; err != nil {
		return nil, errors.Wrap(err, "list indexed channels")
	}
	return channels, nil
}

// EnabledChannelIDs returns the set consulted on every ingested message.
func EnabledChannelIDs() (map[int64]bool, error) {
	var ids []int64
	err := DB.Model(&IndexedChannel{}).Where("enabled = ?", true).Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "list enabled channels")
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
