package model

import (
	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Connection links a principal to a group they manage so group-scoped
// commands issued in private chat know which group to act on. A principal
// may connect several groups but only one is active at a time.
type Connection struct {
	Id          int64 `json:"id" gorm:"primaryKey"`
	PrincipalID int64 `json:"principal_id" gorm:"uniqueIndex:idx_principal_group;index"`
	GroupID     int64 `json:"group_id" gorm:"uniqueIndex:idx_principal_group"`
	Active      bool  `json:"active" gorm:"default:false"`
	CreatedAt   int64 `json:"created_at" gorm:"bigint;autoCreateTime"`
}

// AddConnection registers the pair and activates it, deactivating any
// previously active group for the principal.
func AddConnection(principalID, groupID int64) error {
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&Connection{}).
				Where("principal_id = ?", principalID).
				Update("active", false).Error; err != nil {
				return err
			}
			conn := &Connection{PrincipalID: principalID, GroupID: groupID, Active: true}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "principal_id"}, {Name: "group_id"}},
				DoUpdates: clause.Assignments(map[string]any{"active": true}),
			}).Create(conn).Error; err != nil {
				return err
			}
			return nil
		})
	})
	return errors.Wrapf(err, "connect principal %d to group %d", principalID, groupID)
}

func RemoveConnection(principalID, groupID int64) error {
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Delete(&Connection{}, "principal_id = ? AND group_id = ?", principalID, groupID).Error
	})
	return errors.Wrapf(err, "disconnect principal %d from group %d", principalID, groupID)
}

// ActiveConnection returns the group currently selected by the principal,
// or nil when none is active.
func ActiveConnection(principalID int64) (*Connection, error) {
	var conn Connection
	err := DB.Where("principal_id = ? AND active = ?", principalID, true).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get active connection for %d", principalID)
	}
	return &conn, nil
}

func ListConnections(principalID int64) ([]*Connection, error) {
	var conns []*Connection
	err := DB.Where("principal_id = ?", principalID).Order("created_at asc").Find(&conns).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list connections for %d", principalID)
	}
	return conns, nil
}

// SetActiveConnection switches the principal's selected group. The target
// pair must already exist.
func SetActiveConnection(principalID, groupID int64) error {
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&Connection{}).
				Where("principal_id = ? AND group_id = ?", principalID, groupID).
				Update("active", true)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return errors.Errorf("principal %d is not connected to group %d", principalID, groupID)
			}
			return tx.Model(&Connection{}).
				Where("principal_id = ? AND group_id != ?", principalID, groupID).
				Update("active", false).Error
		})
	})
	return errors.Wrapf(err, "activate connection %d/%d", principalID, groupID)
}
