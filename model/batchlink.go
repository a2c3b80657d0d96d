package model

import (
	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/helper"
	"github.com/leafdriven/mediadex/common/random"
)

// BatchLink is a stored message range addressed by a short ref so the
// shareable link stays small no matter how large the range is.
type BatchLink struct {
	Ref         string `json:"ref" gorm:"primaryKey;type:varchar(16)"`
	ChatID      int64  `json:"chat_id" gorm:"uniqueIndex:idx_batch_range"`
	FromID      int64  `json:"from_id" gorm:"uniqueIndex:idx_batch_range"`
	ToID        int64  `json:"to_id" gorm:"uniqueIndex:idx_batch_range"`
	Protect     bool   `json:"protect" gorm:"uniqueIndex:idx_batch_range"`
	PremiumOnly bool   `json:"premium_only" gorm:"uniqueIndex:idx_batch_range"`
	CreatedBy   int64  `json:"created_by" gorm:"uniqueIndex:idx_batch_range"`
	ExpiresAt   int64  `json:"expires_at" gorm:"bigint;default:0"`
	CreatedAt   int64  `json:"created_at" gorm:"bigint;autoCreateTime"`
}

// Expired reports whether an optional expiry has passed; zero means never.
func (l *BatchLink) Expired() bool {
	return l.ExpiresAt > 0 && l.ExpiresAt < helper.GetTimestamp()
}

// GetOrCreateBatchLink validates the range and returns the ref. The same
// (chat, range, protect, premium_only, creator) tuple reuses the stored
// record instead of minting a new ref.
func GetOrCreateBatchLink(chatID, fromID, toID, createdBy int64, protect, premiumOnly bool, expiresAt int64) (*BatchLink, error) {
	if toID <= fromID {
		return nil, errors.Errorf("invalid range %d..%d: end must exceed start", fromID, toID)
	}
	if toID-fromID+1 > int64(config.MaxRangeSize) {
		return nil, errors.Errorf("range %d..%d exceeds %d messages", fromID, toID, config.MaxRangeSize)
	}

	dedup := func(dst *BatchLink) error {
		return DB.Where("chat_id = ? AND from_id = ? AND to_id = ? AND protect = ? AND premium_only = ? AND created_by = ?",
			chatID, fromID, toID, protect, premiumOnly, createdBy).First(dst).Error
	}

	var existing BatchLink
	err := dedup(&existing)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "look up batch link")
	}

	link := &BatchLink{
		Ref:         random.GetRandomString(12),
		ChatID:      chatID,
		FromID:      fromID,
		ToID:        toID,
		Protect:     protect,
		PremiumOnly: premiumOnly,
		CreatedBy:   createdBy,
		ExpiresAt:   expiresAt,
	}
	err = runWithSQLiteBusyRetry(nil, func() error {
		return DB.Create(link).Error
	})
	if err != nil {
		// A concurrent creator may have won the range index race.
		if derr := dedup(&existing); derr == nil {
			return &existing, nil
		}
		return nil, errors.Wrap(err, "create batch link")
	}
	return link, nil
}

func GetBatchLink(ref string) (*BatchLink, error) {
	var link BatchLink
	if err := DB.First(&link, "ref = ?", ref).Error; err != nil {
		return nil, errors.Wrapf(err, "get batch link %s", ref)
	}
	return &link, nil
}

func DeleteBatchLink(ref string) error {
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Delete(&BatchLink{}, "ref = ?", ref).Error
	})
	return errors.Wrapf(err, "delete batch link %s", ref)
}

// DeleteExpiredBatchLinks sweeps links whose expiry has passed; run by the
// maintenance loop.
func DeleteExpiredBatchLinks() (int64, error) {
	var affected int64
	err := runWithSQLiteBusyRetry(nil, func() error {
		res := DB.Where("expires_at > 0 AND expires_at < ?", helper.GetTimestamp()).Delete(&BatchLink{})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, errors.Wrap(err, "sweep expired batch links")
}
