package config

import (
	"sync/atomic"
	"time"

	"github.com/leafdriven/mediadex/common/env"
)

var (
	// SQLDSN selects the durable store. Empty means SQLite; a postgres://
	// prefix means PostgreSQL; anything else is treated as a MySQL DSN.
	SQLDSN = env.String("SQL_DSN", "")
	// SQLitePath is the SQLite database file used when SQL_DSN is unset.
	SQLitePath = env.String("SQLITE_PATH", "mediadex.db")
	// SQLiteBusyTimeout sets the SQLite busy handler timeout in milliseconds.
	SQLiteBusyTimeout = env.Int("SQLITE_BUSY_TIMEOUT", 3500)
	// SQLMaxIdleConns bounds idle connections in the SQL pool.
	SQLMaxIdleConns = env.Int("SQL_MAX_IDLE_CONNS", 100)
	// SQLMaxOpenConns bounds open connections in the SQL pool.
	SQLMaxOpenConns = env.Int("SQL_MAX_OPEN_CONNS", 1000)
	// SQLMaxLifetimeSeconds bounds the lifetime of pooled SQL connections.
	SQLMaxLifetimeSeconds = env.Int("SQL_MAX_LIFETIME", 60)

	// RedisConnString enables the cache layer when set (redis:// URL).
	RedisConnString = env.String("REDIS_CONN_STRING", "")
	// RedisPassword is only used in cluster mode.
	RedisPassword = env.String("REDIS_PASSWORD", "")
	// RedisMasterName switches the client to sentinel/cluster mode when set.
	RedisMasterName = env.String("REDIS_MASTER_NAME", "")

	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)
	// DebugSQLEnabled toggles per-query SQL logging when DEBUG_SQL=true.
	DebugSQLEnabled = env.Bool("DEBUG_SQL", false)

	// OwnerID is the bot owner principal; the owner bypasses every quota.
	OwnerID = env.Int64("OWNER_ID", 0)
	// AdminIDs lists principals with admin commands enabled.
	AdminIDs = env.Int64List("ADMIN_IDS")
	// AuthPrincipals bypass the subscription gate without being admins.
	AuthPrincipals = env.Int64List("AUTH_PRINCIPALS")
	// RequiredChannels are the channels a principal must join before any
	// gated action is granted.
	RequiredChannels = env.Int64List("REQUIRED_CHANNELS")
	// LogChannelID receives operational summaries (deletion reports, drops).
	LogChannelID = env.Int64("LOG_CHANNEL_ID", 0)
	// DeleteChannelID is the channel whose forwarded media feed the deletion
	// pipeline.
	DeleteChannelID = env.Int64("DELETE_CHANNEL_ID", 0)

	// PremiumEnabled gates the whole quota system; when false every
	// retrieval is unlimited.
	PremiumEnabled = env.Bool("PREMIUM_ENABLED", true)
	// PremiumDurationDays is how long a premium activation stays valid.
	PremiumDurationDays = env.Int("PREMIUM_DURATION_DAYS", 30)
	// DailyRetrievalLimit caps non-premium retrievals per principal per day.
	DailyRetrievalLimit = env.Int("DAILY_RETRIEVAL_LIMIT", 25)

	// SearchPageSize is the default result page size.
	SearchPageSize = env.Int("SEARCH_PAGE_SIZE", 10)
	// SearchScanCap bounds how many candidate rows a single search may pull
	// from the store before regex filtering.
	SearchScanCap = env.Int("SEARCH_SCAN_CAP", 5000)
	// UseCaptionSearch also matches queries against captions.
	UseCaptionSearch = env.Bool("USE_CAPTION_SEARCH", true)

	// MediaCacheTTL is the TTL for per-file cache entries.
	MediaCacheTTL = time.Duration(env.Int("MEDIA_CACHE_TTL", 6*3600)) * time.Second
	// SearchCacheTTL is the TTL for cached search pages.
	SearchCacheTTL = time.Duration(env.Int("SEARCH_CACHE_TTL", 600)) * time.Second
	// SessionTTL is the TTL for result sessions ("send all", pagination).
	SessionTTL = time.Duration(env.Int("SESSION_TTL", 3600)) * time.Second
	// BannedListTTL is the TTL for the cached banned-principal view.
	BannedListTTL = time.Duration(env.Int("BANNED_LIST_TTL", 300)) * time.Second

	// IngestQueueCapacity is the bounded primary ingestion queue size.
	IngestQueueCapacity = env.Int("INGEST_QUEUE_CAPACITY", 1000)
	// IngestOverflowCapacity is the spill buffer used when the primary queue
	// is full; beyond it the oldest item is dropped.
	IngestOverflowCapacity = env.Int("INGEST_OVERFLOW_CAPACITY", 500)
	// IngestBatchDeadline is the max time a batch accumulates before it is
	// flushed regardless of size.
	IngestBatchDeadline = time.Duration(env.Int("INGEST_BATCH_DEADLINE", 5)) * time.Second
	// ChannelReconcileInterval refreshes the monitored-channel set.
	ChannelReconcileInterval = time.Duration(env.Int("CHANNEL_RECONCILE_INTERVAL", 60)) * time.Second

	// RangeSliceSize is how many messages a single platform fetch may cover
	// during range indexing and range sends.
	RangeSliceSize = env.Int("RANGE_SLICE_SIZE", 200)
	// MaxRangeSize caps batch links and range operations.
	MaxRangeSize = env.Int("MAX_RANGE_SIZE", 10000)

	// SendSpacing is the delay between consecutive bulk sends.
	SendSpacing = time.Duration(env.Int("SEND_SPACING_MS", 1000)) * time.Millisecond
	// SendProgressEvery controls how often bulk-send progress is reported.
	SendProgressEvery = env.Int("SEND_PROGRESS_EVERY", 5)
	// AutoDeleteAfter schedules sent files for deletion after this delay;
	// zero disables auto deletion.
	AutoDeleteAfter = time.Duration(env.Int("AUTO_DELETE_AFTER", 0)) * time.Second

	// BroadcastPageSize is how many principals one broadcast page loads.
	BroadcastPageSize = env.Int("BROADCAST_PAGE_SIZE", 100)
	// BroadcastDelay is the base inter-page delay; doubled while the running
	// success rate is below 0.5.
	BroadcastDelay = time.Duration(env.Int("BROADCAST_DELAY_MS", 500)) * time.Millisecond
	// BroadcastSendRate caps outbound broadcast copies per second, shared
	// across replicas through the cache-backed token bucket.
	BroadcastSendRate = env.Int("BROADCAST_SEND_RATE", 20)
	// BroadcastSendBurst is the bucket capacity for short bursts.
	BroadcastSendBurst = env.Int("BROADCAST_SEND_BURST", 30)

	// DeleteWindow is the deletion worker drain window.
	DeleteWindow = time.Duration(env.Int("DELETE_WINDOW", 5)) * time.Second
	// DeleteWindowMax is the max deletions processed per window.
	DeleteWindowMax = env.Int("DELETE_WINDOW_MAX", 50)

	// MaintenanceGranularity is how often the maintenance loop wakes to
	// observe shutdown and check for due work within its 24 h cycle.
	MaintenanceGranularity = time.Duration(env.Int("MAINTENANCE_GRANULARITY", 360)) * time.Second

	// PlatformSendConcurrency caps concurrent outbound platform calls.
	PlatformSendConcurrency = env.Int64("PLATFORM_SEND_CONCURRENCY", 8)
	// DatabaseWriteConcurrency caps concurrent bulk store writes.
	DatabaseWriteConcurrency = env.Int64("DATABASE_WRITE_CONCURRENCY", 4)

	// BreakerFailureThreshold opens a platform circuit after this many
	// consecutive failures.
	BreakerFailureThreshold = env.Int("BREAKER_FAILURE_THRESHOLD", 5)
	// BreakerTimeout is how long an open circuit stays open.
	BreakerTimeout = time.Duration(env.Int("BREAKER_TIMEOUT", 30)) * time.Second

	// BucketRate is the shared token-bucket refill rate (tokens/second).
	BucketRate = env.Float64("BUCKET_RATE", 20)
	// BucketCapacity is the shared token-bucket burst capacity.
	BucketCapacity = env.Int("BUCKET_CAPACITY", 40)

	// ShutdownTimeoutSec bounds graceful drain on exit.
	ShutdownTimeoutSec = env.Int("SHUTDOWN_TIMEOUT", 60)
)

// Per-action rate limits: max requests inside a window, then a cooldown.
var (
	SearchRateLimitNum      = env.Int("SEARCH_RATE_LIMIT", 20)
	SearchRateLimitWindow   = int64(env.Int("SEARCH_RATE_WINDOW", 60))
	SearchRateLimitCooldown = int64(env.Int("SEARCH_RATE_COOLDOWN", 60))

	FileRequestRateLimitNum      = env.Int("FILE_REQUEST_RATE_LIMIT", 30)
	FileRequestRateLimitWindow   = int64(env.Int("FILE_REQUEST_RATE_WINDOW", 60))
	FileRequestRateLimitCooldown = int64(env.Int("FILE_REQUEST_RATE_COOLDOWN", 60))

	BroadcastRateLimitNum      = env.Int("BROADCAST_RATE_LIMIT", 1)
	BroadcastRateLimitWindow   = int64(env.Int("BROADCAST_RATE_WINDOW", 3600))
	BroadcastRateLimitCooldown = int64(env.Int("BROADCAST_RATE_COOLDOWN", 3600))

	InlineQueryRateLimitNum      = env.Int("INLINE_QUERY_RATE_LIMIT", 30)
	InlineQueryRateLimitWindow   = int64(env.Int("INLINE_QUERY_RATE_WINDOW", 60))
	InlineQueryRateLimitCooldown = int64(env.Int("INLINE_QUERY_RATE_COOLDOWN", 30))

	PremiumCheckRateLimitNum      = env.Int("PREMIUM_CHECK_RATE_LIMIT", 10)
	PremiumCheckRateLimitWindow   = int64(env.Int("PREMIUM_CHECK_RATE_WINDOW", 60))
	PremiumCheckRateLimitCooldown = int64(env.Int("PREMIUM_CHECK_RATE_COOLDOWN", 60))
)

// IsMasterNode controls whether this replica runs migrations and the
// maintenance loop.
var IsMasterNode = env.Bool("NODE_TYPE_MASTER", true)

var premiumEnabled atomic.Bool

func init() {
	premiumEnabled.Store(PremiumEnabled)
}

// PremiumActive reports whether quota enforcement is currently on. The flag
// is runtime mutable through the settings view.
func PremiumActive() bool { return premiumEnabled.Load() }

// SetPremiumActive flips quota enforcement at runtime.
func SetPremiumActive(on bool) { premiumEnabled.Store(on) }

// IsOwner reports whether id is the configured owner.
func IsOwner(id int64) bool { return OwnerID != 0 && id == OwnerID }

// IsAdmin reports whether id is the owner or a configured admin.
func IsAdmin(id int64) bool {
	if IsOwner(id) {
		return true
	}
	for _, a := range AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// IsAuthPrincipal reports whether id is on the subscription-gate bypass list.
func IsAuthPrincipal(id int64) bool {
	for _, a := range AuthPrincipals {
		if a == id {
			return true
		}
	}
	return false
}
