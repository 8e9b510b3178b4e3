package notification

import (
	"snapfeed/internal/domain/notification/handler"
	"snapfeed/internal/domain/notification/repository"
	"snapfeed/internal/domain/notification/service"
	"snapfeed/internal/pkg/middleware"
	"snapfeed/internal/pkg/push"
	"snapfeed/internal/pkg/registry"
	"snapfeed/internal/pkg/worker"
	"snapfeed/pkg/httpclient"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NotificationModule mini app 通知模块
type NotificationModule struct{}

func init() {
	registry.Register(&NotificationModule{})
}

func (m *NotificationModule) Name() string {
	return "notification"
}

func (m *NotificationModule) Priority() int {
	return 20
}

func (m *NotificationModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config.Notification
	log := ctx.Logger.Named("notification")

	// 1. 依赖注入
	repo := repository.NewTokenRepository(ctx.DB)

	var replay service.ReplayGuard
	if ctx.Redis != nil {
		replay = service.NewRedisReplayGuard(ctx.Redis, cfg.ReplayTTL)
	} else {
		replay = service.NewMemoryReplayGuard(cfg.ReplayTTL)
	}
	webhook := service.NewWebhookService(repo, replay, cfg.VerifySignatures, ctx.Metrics, log)

	var pushSvc push.PushService
	if p, err := push.NewAliyunPushService(ctx.Config.Push); err != nil {
		log.Info("aliyun push disabled", zap.Error(err))
	} else {
		pushSvc = p
	}

	dispatcher := service.NewDispatcher(repo, httpclient.RobustHTTPClient(log, httpclient.DefaultOptions()), pushSvc, cfg.BatchSize, ctx.Metrics, log)

	// 2. 投递 worker
	pool := worker.NewWorkerPool(dispatcher, cfg.Workers, cfg.QueueSize, log)
	if cfg.MaxRetry > 0 {
		pool.MaxRetry = cfg.MaxRetry
	}
	pool.OnDrop(func(task worker.NotificationTask) {
		if ctx.Metrics != nil {
			ctx.Metrics.RecordNotificationDropped()
		}
		log.Warn("notification batch dropped",
			zap.String("notification_id", task.NotificationID),
			zap.String("url", task.URL),
			zap.Int("tokens", len(task.Tokens)),
		)
	})
	dispatcher.SetQueue(pool)
	pool.Start()
	ctx.OnShutdown(pool.Stop)

	// 3. 路由注册
	setupRoutes(ctx.Router, handler.NewNotificationHandler(webhook, dispatcher, repo), ctx.Config.JWT.Secret)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.NotificationHandler, secret string) {
	r.POST("/api/farcaster/webhook", h.Webhook)
	r.GET("/api/farcaster/webhook", h.WebhookStatus)

	admin := r.Group("/notifications")
	admin.Use(middleware.AuthMiddleware(secret), middleware.AdminMiddleware())
	{
		admin.POST("/broadcast", h.Broadcast)
		admin.GET("/tokens", h.ListTokens)
	}
}
