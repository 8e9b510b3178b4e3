package common

import (
	commonHandler "snapfeed/internal/pkg/common"
	"snapfeed/internal/pkg/middleware"
	"snapfeed/internal/pkg/registry"
	"snapfeed/internal/pkg/uploader"

	"go.uber.org/zap"
)

// CommonModule 通用功能模块
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	// OSS 未配置时 /upload 返回 503，不阻塞启动
	var up uploader.Uploader
	if oss, err := uploader.NewAliyunOSSUploader(ctx.Config.OSS); err != nil {
		ctx.Logger.Warn("media upload disabled", zap.Error(err))
	} else {
		up = oss
	}

	h := commonHandler.NewUploadHandler(up)
	ctx.Router.POST("/upload", middleware.AuthMiddleware(ctx.Config.JWT.Secret), h.UploadFile)
	return nil
}
