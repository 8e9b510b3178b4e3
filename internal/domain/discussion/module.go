package discussion

import (
	"context"

	"snapfeed/internal/domain/discussion/handler"
	"snapfeed/internal/domain/discussion/repository"
	"snapfeed/internal/domain/discussion/service"
	"snapfeed/internal/pkg/middleware"
	"snapfeed/internal/pkg/registry"
	"snapfeed/pkg/httpclient"

	"github.com/gin-gonic/gin"
)

// DiscussionModule 讨论串模块
type DiscussionModule struct{}

func init() {
	registry.Register(&DiscussionModule{})
}

func (m *DiscussionModule) Name() string {
	return "discussion"
}

func (m *DiscussionModule) Priority() int {
	return 10
}

func (m *DiscussionModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config
	log := ctx.Logger.Named("discussion")

	// 1. 外部协作方
	hiveOpts := httpclient.DefaultOptions()
	if cfg.Hive.RetryMax > 0 {
		hiveOpts.RetryMax = cfg.Hive.RetryMax
	}
	if cfg.Hive.Timeout > 0 {
		hiveOpts.Timeout = cfg.Hive.Timeout
	}
	hive := repository.NewHiveClient(cfg.Hive.Endpoint, httpclient.RobustHTTPClient(log, hiveOpts))

	// 广播不是幂等操作，不做重试
	signerOpts := httpclient.DefaultOptions()
	signerOpts.RetryMax = 0
	if cfg.Signer.Timeout > 0 {
		signerOpts.Timeout = cfg.Signer.Timeout
	}
	signer := repository.NewSignerClient(cfg.Signer.URL, cfg.Signer.Token, httpclient.RobustHTTPClient(log, signerOpts))

	// 2. 依赖注入
	loader := service.NewReplyLoader(hive, log, ctx.Metrics)
	estimator := service.NewVoteValueEstimator(hive, ctx.Cache, ctx.Metrics, log)
	store := service.NewSessionStore(service.StoreDeps{
		Content: hive,
		Loader:  loader,
		Voter:   service.NewChainVoter(signer, estimator, log),
		Editor:  signer,
		Logger:  log,
		Metrics: ctx.Metrics,
		IdleTTL: cfg.Session.IdleTTL,
	})

	sweepCtx, cancel := context.WithCancel(context.Background())
	store.StartSweeper(sweepCtx, cfg.Session.SweepInterval)
	ctx.OnShutdown(func() {
		cancel()
		store.CloseAll()
	})

	// 3. 路由注册
	setupRoutes(ctx.Router, handler.NewDiscussionHandler(store), cfg.JWT.Secret)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.DiscussionHandler, secret string) {
	// 匿名用户可以浏览，投票和编辑在服务层校验登录态
	g := r.Group("/sessions")
	g.Use(middleware.OptionalAuth(secret))
	{
		g.POST("", h.CreateSession)
		g.GET("/:id", h.GetSession)
		g.DELETE("/:id", h.CloseSession)
		g.POST("/:id/roots", h.AddRoot)

		n := g.Group("/:id/nodes/:author/:permlink")
		n.GET("", h.GetNode)
		n.POST("/toggle", h.ToggleReplies)
		n.POST("/reload", h.Reload)
		n.POST("/composer/close", h.CloseComposer)
		n.POST("/replies", h.AppendReply)
		n.POST("/vote", h.Vote)
		n.POST("/edit", h.BeginEdit)
		n.PUT("/edit", h.UpdateDraft)
		n.POST("/edit/save", h.SaveEdit)
		n.DELETE("/edit", h.CancelEdit)
		n.GET("/payout", h.GetPayout)
	}
}
