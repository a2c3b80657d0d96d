package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v6"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"

	"github.com/leafdriven/mediadex/access"
	"github.com/leafdriven/mediadex/broadcast"
	"github.com/leafdriven/mediadex/cache"
	"github.com/leafdriven/mediadex/common"
	"github.com/leafdriven/mediadex/common/config"
	"github.com/leafdriven/mediadex/common/graceful"
	"github.com/leafdriven/mediadex/common/logger"
	"github.com/leafdriven/mediadex/deletion"
	"github.com/leafdriven/mediadex/deliver"
	"github.com/leafdriven/mediadex/ingest"
	"github.com/leafdriven/mediadex/limiter"
	"github.com/leafdriven/mediadex/maintenance"
	"github.com/leafdriven/mediadex/middleware"
	"github.com/leafdriven/mediadex/model"
	"github.com/leafdriven/mediadex/platform"
	"github.com/leafdriven/mediadex/router"
	"github.com/leafdriven/mediadex/search"
)

// platformClient is supplied by the SDK integration linked into the final
// binary. The core ships without one; client-backed engines stay idle until
// it is attached here.
var platformClient platform.Client

// engines bundles the client-backed components handed to the SDK
// integration's update handlers.
type engines struct {
	sender    *deliver.Sender
	broadcast *broadcast.Engine
	gate      *access.SubscriptionGate
	indexer   *ingest.RangeIndexer
	autodel   *deliver.AutoDeleteTracker
}

var activeEngines *engines

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	common.Init()
	if *common.PrintVersion {
		fmt.Println(common.Version)
		os.Exit(0)
	}
	logger.Logger.Info("mediadex started", zap.String("version", common.Version))

	if os.Getenv("GIN_MODE") != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	model.InitDB()
	defer func() {
		if err := model.CloseDB(); err != nil {
			logger.Logger.Error("failed to close database", zap.Error(err))
		}
	}()

	if err := common.InitRedisClient(); err != nil {
		logger.Logger.Fatal("failed to initialize Redis", zap.Error(err))
	}
	var c *cache.Cache
	if common.IsRedisEnabled() {
		c = cache.New(common.RDB)
	}

	sems := limiter.NewSemaphoreSet()
	breakers := limiter.NewBreakerSet()
	actions := limiter.NewActionLimiter(common.RDB, limiter.DefaultActionLimits())
	caller := platform.NewCaller(sems, breakers)

	ctrl := access.NewController(c)
	pipeline := search.NewPipeline(c, actions, ctrl)

	queue := ingest.NewQueue(func(totalDropped int) {
		logger.Logger.Error("ingestion buffers saturated",
			zap.Int("total_dropped", totalDropped))
	})
	worker := ingest.NewWorker(queue, sems, c, nil)
	watch := ingest.NewWatch(queue)
	deleter := deletion.NewWorker(0, c, func(sum deletion.Summary) {
		logger.Logger.Info("deletion summary",
			zap.Int("deleted", sum.Deleted),
			zap.Int("missing", sum.Missing),
			zap.Int("errors", sum.Errors))
	})

	graceful.GoCritical(ctx, "ingest-worker", worker.Run)
	graceful.GoCritical(ctx, "channel-watch", watch.Run)
	graceful.GoCritical(ctx, "deletion-worker", deleter.Run)
	if config.IsMasterNode {
		graceful.GoCritical(ctx, "maintenance", maintenance.NewLoop(c).Run)
	}

	var autodel *deliver.AutoDeleteTracker
	if platformClient != nil {
		autodel = deliver.NewAutoDeleteTracker(platformClient, caller)
		activeEngines = &engines{
			sender: deliver.NewSender(platformClient, caller, ctrl, actions, c, autodel),
			broadcast: broadcast.NewEngine(platformClient, caller, actions,
				limiter.NewTokenBucket(common.RDB, "broadcast_send",
					float64(config.BroadcastSendRate), config.BroadcastSendBurst)),
			gate:    access.NewSubscriptionGate(platformClient),
			indexer: ingest.NewRangeIndexer(platformClient, caller, worker),
			autodel: autodel,
		}
	} else {
		logger.Logger.Warn("no platform client linked, delivery engines idle")
	}

	logLevel := glog.LevelInfo
	if config.DebugEnabled {
		logLevel = glog.LevelDebug
	}

	server := gin.New()
	server.RedirectTrailingSlash = false
	server.Use(
		middleware.PanicRecover(),
		gmw.NewLoggerMiddleware(
			gmw.WithLoggerMwColored(),
			gmw.WithLevel(logLevel.String()),
			gmw.WithLogger(logger.Logger.Named("gin")),
		),
	)
	server.Use(middleware.RequestId())
	server.Use(middleware.Prometheus())

	router.SetRouter(server, router.Deps{
		Cache:    c,
		Search:   pipeline,
		Queue:    queue,
		Worker:   worker,
		Watch:    watch,
		Deletion: deleter,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(*common.Port)
	}
	httpServer := &http.Server{Addr: ":" + port, Handler: server}
	go func() {
		logger.Logger.Info("server started", zap.String("address", "http://localhost:"+port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Logger.Info("shutdown signal received, draining")
	graceful.SetDraining()
	cancel()

	drainCtx, drainCancel := context.WithTimeout(context.Background(),
		time.Duration(config.ShutdownTimeoutSec)*time.Second)
	defer drainCancel()

	if autodel != nil {
		autodel.Shutdown()
	}
	if err := graceful.Drain(drainCtx); err != nil {
		logger.Logger.Error("drain incomplete", zap.Error(err))
	}
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	logger.Logger.Info("mediadex stopped")
}
