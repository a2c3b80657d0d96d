package model

import (
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Runtime-adjustable settings. Keys outside this list are rejected on
// write; internal bookkeeping keys are writable only through their
// dedicated helpers.
const (
	SettingAutoDelete      = "auto_delete"
	SettingProtectContent  = "protect_content"
	SettingMaintenanceMode = "maintenance_mode"
	SettingGlobalTemplate  = "global_template"

	// settingLastCounterReset tracks the most recent daily quota reset so
	// the maintenance loop stays idempotent across restarts.
	settingLastCounterReset = "last_counter_reset_date"
)

type Setting struct {
	Key       string `json:"key" gorm:"primaryKey;type:varchar(64)"`
	Value     string `json:"value" gorm:"type:varchar(4096)"`
	UpdatedAt int64  `json:"updated_at" gorm:"bigint;autoUpdateTime"`
}

var editableSettings = map[string]bool{
	SettingAutoDelete:      true,
	SettingProtectContent:  true,
	SettingMaintenanceMode: true,
	SettingGlobalTemplate:  true,
}

func getSetting(key string) (string, bool, error) {
	var s Setting
	err := DB.First(&s, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "get setting %s", key)
	}
	return s.Value, true, nil
}

func setSetting(key, value string) error {
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&Setting{Key: key, Value: value}).Error
	})
	return errors.Wrapf(err, "set setting %s", key)
}

// GetSettingString returns the stored value or the given default.
func GetSettingString(key, def string) (string, error) {
	v, ok, err := getSetting(key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func GetSettingBool(key string, def bool) (bool, error) {
	v, ok, err := getSetting(key)
	if err != nil || !ok {
		return def, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		return def, nil
	}
	return b, nil
}

// settingView memoizes hot settings in process so per-send paths stay off
// the store. Entries age out quickly; writes through UpdateSetting drop
// them immediately.
var settingView = gocache.New(30*time.Second, time.Minute)

// GetSettingBoolCached reads a boolean setting through the process-local
// view. Store errors fall back to the default without caching.
func GetSettingBoolCached(key string, def bool) bool {
	if v, ok := settingView.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	b, err := GetSettingBool(key, def)
	if err != nil {
		return def
	}
	settingView.Set(key, b, gocache.DefaultExpiration)
	return b
}

// UpdateSetting writes an operator-editable key; anything else is refused.
func UpdateSetting(key, value string) error {
	if !editableSettings[key] {
		return errors.Errorf("setting %s is not editable", key)
	}
	if err := setSetting(key, value); err != nil {
		return err
	}
	settingView.Delete(key)
	return nil
}

// ListSettings returns all stored settings for the settings view.
func ListSettings() (map[string]string, error) {
	var rows []Setting
	if err := DB.Order("key asc").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list settings")
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// LastCounterResetDate reads the date (YYYY-MM-DD) of the most recent
// completed daily counter reset. Empty means never.
func LastCounterResetDate() (string, error) {
	v, _, err := getSetting(settingLastCounterReset)
	return v, err
}

// MarkCounterReset records a completed daily reset for the given date.
func MarkCounterReset(date string) error {
	return setSetting(settingLastCounterReset, date)
}
