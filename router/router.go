// Package router wires the HTTP surface: health, operational status, and
// Prometheus metrics. The chat platform itself is not served here; this
// surface exists for operators and probes.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/ingest"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/monitor"
	"github.com/leafdriven/mediadex/search"

	"github.com/Laisky/zap"
)

// statsTTL bounds staleness of the cached stats view; writes also invalidate
// it eagerly.
const statsTTL = 10 * time.Minute

// Deps are the running components the status endpoint reports on.
type Deps struct {
	Cache    *cache.Cache
	Search   *search.Pipeline
	Queue    *ingest.Queue
	Worker   *ingest.Worker
	Watch    *ingest.Watch
	Deletion interface{ Depth() int }
}

func SetRouter(server *gin.Engine, deps Deps) {
	server.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server.GET("/api/status", statusHandler(deps))
	server.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func statusHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		stats := &model.FileStats{}
		if !deps.Cache.GetInto(ctx, cache.KeyMediaStats, stats) {
			var err error
			stats, err = model.GetFileStats()
			if err != nil {
				logger.Logger.Error("load file stats", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
				return
			}
			deps.Cache.Set(ctx, cache.KeyMediaStats, stats, statsTTL)
		}

		monitor.SetQueueGauges(deps.Queue.Depth(), deps.Queue.OverflowDepth(), deps.Queue.Dropped())

		c.JSON(http.StatusOK, gin.H{
			"files":  stats,
			"ingest": deps.Worker.Stats(),
			"queue": gin.H{
				"depth":    deps.Queue.Depth(),
				"overflow": deps.Queue.OverflowDepth(),
				"dropped":  deps.Queue.Dropped(),
			},
			"watched_channels": deps.Watch.WatchedCount(),
			"deletion_pending": deps.Deletion.Depth(),
			"popular_keywords": deps.Search.TopKeywords(ctx, 10),
			"cache":            deps.Cache.Stats(ctx),
		})
	}
}
