package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leafdriven/mediadex/common/helper"
)

const (
	PrincipalStatusActive   = 1 // don't use 0, 0 is the default value!
	PrincipalStatusBanned   = 2
	PrincipalStatusInactive = 3
)

// Principal is an end-user of the chat platform, born on first contact.
// The daily counter is only meaningful when LastRetrievalDate is today; any
// reader observing a stale date treats the effective count as zero (the
// actual reset happens lazily on the next reservation).
type Principal struct {
	Id                  int64  `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name                string `json:"name" gorm:"index"`
	Status              int    `json:"status" gorm:"type:int;default:1"`
	BanReason           string `json:"ban_reason"`
	IsPremium           bool   `json:"is_premium" gorm:"index"`
	PremiumActivatedAt  int64  `json:"premium_activated_at" gorm:"bigint;default:0"` // unix seconds, 0 = never
	DailyRetrievalCount int    `json:"daily_retrieval_count" gorm:"type:int;default:0"`
	LastRetrievalDate   string `json:"last_retrieval_date" gorm:"type:varchar(10);index"`
	CreatedAt           int64  `json:"created_at" gorm:"bigint;autoCreateTime:milli"`
	UpdatedAt           int64  `json:"updated_at" gorm:"bigint;autoUpdateTime:milli"`
}

// EnsurePrincipal creates the row on first contact and returns it.
func EnsurePrincipal(id int64, name string) (*Principal, error) {
	if id == 0 {
		return nil, errors.New("principal id is empty")
	}
	p := Principal{Id: id, Name: name, Status: PrincipalStatusActive}
	err := DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error
	if err != nil {
		return nil, errors.Wrapf(err, "ensure principal %d", id)
	}
	if err := DB.First(&p, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "load principal %d", id)
	}
	return &p, nil
}

func GetPrincipalByID(id int64) (*Principal, error) {
	if id == 0 {
		return nil, errors.New("principal id is empty")
	}
	var p Principal
	if err := DB.First(&p, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get principal %d", id)
	}
	return &p, nil
}

// IsBanned reports the stored status; a banned principal is never granted
// access regardless of premium.
func (p *Principal) IsBanned() bool { return p.Status == PrincipalStatusBanned }

// PremiumActive reports whether the activation is still inside the premium
// window.
func (p *Principal) PremiumActive(durationDays int) bool {
	if !p.IsPremium || p.PremiumActivatedAt == 0 {
		return false
	}
	expiry := time.Unix(p.PremiumActivatedAt, 0).AddDate(0, 0, durationDays)
	return expiry.After(time.Now())
}

// PremiumDaysLeft returns whole remaining premium days, floored at zero.
func (p *Principal) PremiumDaysLeft(durationDays int) int {
	if p.PremiumActivatedAt == 0 {
		return 0
	}
	expiry := time.Unix(p.PremiumActivatedAt, 0).AddDate(0, 0, durationDays)
	left := int(time.Until(expiry).Hours() / 24)
	if left < 0 {
		return 0
	}
	return left
}

// EffectiveDailyCount applies the stale-date rule.
func (p *Principal) EffectiveDailyCount() int {
	if p.LastRetrievalDate != helper.Today() {
		return 0
	}
	return p.DailyRetrievalCount
}

func BanPrincipal(id int64, reason string) error {
	err := DB.Model(&Principal{}).Where("id = ?", id).Updates(map[string]any{
		"status":     PrincipalStatusBanned,
		"ban_reason": reason,
	}).Error
	return errors.Wrapf(err, "ban principal %d", id)
}

func UnbanPrincipal(id int64) error {
	err := DB.Model(&Principal{}).Where("id = ?", id).Updates(map[string]any{
		"status":     PrincipalStatusActive,
		"ban_reason": "",
	}).Error
	return errors.Wrapf(err, "unban principal %d", id)
}

func AddPremium(id int64) error {
	err := DB.Model(&Principal{}).Where("id = ?", id).Updates(map[string]any{
		"is_premium":           true,
		"premium_activated_at": helper.GetTimestamp(),
	}).Error
	return errors.Wrapf(err, "add premium for principal %d", id)
}

func RemovePremium(id int64) error {
	err := DB.Model(&Principal{}).Where("id = ?", id).Updates(map[string]any{
		"is_premium":           false,
		"premium_activated_at": 0,
	}).Error
	return errors.Wrapf(err, "remove premium for principal %d", id)
}

// ClearExpiredPremiumFlag drops the premium flag for a single principal whose
// activation window has lapsed; used on the lazy read path.
func ClearExpiredPremiumFlag(id int64) error {
	return RemovePremium(id)
}

func GetBannedPrincipalIDs() ([]int64, error) {
	var ids []int64
	err := DB.Model(&Principal{}).Where("status = ?", PrincipalStatusBanned).Pluck("id", &ids).Error
	return ids, errors.Wrap(err, "list banned principals")
}

func CountPrincipals() (int64, error) {
	var count int64
	err := DB.Model(&Principal{}).Count(&count).Error
	return count, errors.Wrap(err, "count principals")
}

// PrincipalsPage returns a page of non-banned principals ordered by id, the
// broadcast drain order.
func PrincipalsPage(offset, limit int) ([]*Principal, error) {
	var out []*Principal
	err := DB.Where("status != ?", PrincipalStatusBanned).
		Order("id").Offset(offset).Limit(limit).Find(&out).Error
	return out, errors.Wrap(err, "page principals")
}

// DeletePrincipal removes a principal entirely; used when the platform
// reports the account deleted during broadcast.
func DeletePrincipal(id int64) error {
	err := DB.Delete(&Principal{}, "id = ?", id).Error
	return errors.Wrapf(err, "delete principal %d", id)
}

const reserveQuotaAttempts = 5

// ReserveQuota atomically increments the daily counter by the largest k <= n
// such that count + k <= limit, rolling the date over when needed. The
// compare-and-set loop guards against concurrent callers; no read-modify-
// write path exists. Returns k, which is zero when not even one unit fits.
func ReserveQuota(id int64, n int, limit int) (int, error) {
	if n <= 0 {
		return 0, errors.New("reservation size must be positive")
	}
	today := helper.Today()

	for attempt := 0; attempt < reserveQuotaAttempts; attempt++ {
		p, err := GetPrincipalByID(id)
		if err != nil {
			return 0, err
		}

		count := p.DailyRetrievalCount
		date := p.LastRetrievalDate
		effective := count
		if date != today {
			effective = 0
		}

		k := limit - effective
		if k > n {
			k = n
		}
		if k <= 0 {
			return 0, nil
		}

		var res *gorm.DB
		err = runWithSQLiteBusyRetry(nil, func() error {
			res = DB.Model(&Principal{}).
				Where("id = ? AND daily_retrieval_count = ? AND last_retrieval_date = ?", id, count, date).
				Updates(map[string]any{
					"daily_retrieval_count": effective + k,
					"last_retrieval_date":   today,
				})
			return res.Error
		})
		if err != nil {
			return 0, errors.Wrapf(err, "reserve quota for principal %d", id)
		}
		if res.RowsAffected == 1 {
			return k, nil
		}
		// Lost the race; reload and retry.
	}
	return 0, errors.Errorf("quota reservation contention for principal %d", id)
}

// ReleaseQuota decrements the counter, clamped at zero; used when bulk
// delivery sends fewer files than reserved.
func ReleaseQuota(id int64, n int) error {
	if n <= 0 {
		return nil
	}
	err := runWithSQLiteBusyRetry(nil, func() error {
		return DB.Model(&Principal{}).Where("id = ?", id).
			Update("daily_retrieval_count",
				gorm.Expr("CASE WHEN daily_retrieval_count >= ? THEN daily_retrieval_count - ? ELSE 0 END", n, n)).Error
	})
	return errors.Wrapf(err, "release quota for principal %d", id)
}

// ExpirePremiumBefore clears the premium flag for every principal whose
// activation predates cutoff. Returns the number of rows touched.
func ExpirePremiumBefore(cutoff int64) (int64, error) {
	res := DB.Model(&Principal{}).
		Where("is_premium = ? AND premium_activated_at < ?", true, cutoff).
		Updates(map[string]any{"is_premium": false, "premium_activated_at": 0})
	return res.RowsAffected, errors.Wrap(res.Error, "expire premium subscriptions")
}

// ResetAllDailyCounters zeroes every daily counter; guarded by the
// maintenance loop's persisted reset date so it runs once per calendar day.
func ResetAllDailyCounters() (int64, error) {
	res := DB.Model(&Principal{}).Where("daily_retrieval_count > 0").
		Update("daily_retrieval_count", 0)
	return res.RowsAffected, errors.Wrap(res.Error, "reset daily counters")
}
