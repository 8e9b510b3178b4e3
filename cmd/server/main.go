package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "snapfeed/internal/domain/common"
	_ "snapfeed/internal/domain/discussion"
	_ "snapfeed/internal/domain/notification"
	"snapfeed/internal/pkg/config"
	"snapfeed/internal/pkg/middleware"
	"snapfeed/internal/pkg/registry"
	"snapfeed/pkg/cache"
	"snapfeed/pkg/database"
	"snapfeed/pkg/logger"
	"snapfeed/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// 1. 配置与日志
	config.LoadConfig()
	cfg := &config.GlobalConfig

	if err := logger.InitLogger(cfg.App.Env, cfg.App.Debug); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	zlog := logger.L()

	// 2. 存储
	db, err := database.InitDatabase(cfg.Database.DSN(), cfg.App.Debug, zlog)
	if err != nil {
		zlog.Fatal("connect database", zap.Error(err))
	}

	var rdb *redis.Client
	var store cache.CacheService
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err = database.InitRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			zlog.Fatal("connect redis", zap.Error(err))
		}
		store = cache.NewRedisCache(rdb, "snapfeed")
	} else {
		zlog.Info("redis disabled, using in-memory cache")
		store = cache.NewMemoryCache()
	}

	// 3. HTTP
	gin.SetMode(cfg.Server.Mode)
	collector := metrics.GetGlobalCollector()

	r := gin.New()
	r.Use(
		middleware.RecoveryMiddleware(),
		middleware.TraceMiddleware(),
		middleware.LoggerMiddleware(),
		middleware.MetricsMiddleware(collector),
		middleware.SecurityHeadersMiddleware(),
		cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"},
			ExposeHeaders:    []string{"X-Trace-ID"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
		middleware.RateLimitMiddleware(middleware.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 4. 模块
	moduleCtx := &registry.ModuleContext{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		Cache:   store,
		Metrics: collector,
		Logger:  zlog,
		Router:  r,
	}
	if err := registry.InitModules(moduleCtx); err != nil {
		zlog.Fatal("init modules", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	// 先停止接收请求，再释放模块资源，超时避免退出卡住
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}
	moduleCtx.Shutdown()

	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
