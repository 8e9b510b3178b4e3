package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"snapfeed/internal/domain/notification/model"
	"snapfeed/internal/domain/notification/repository"
	"snapfeed/internal/domain/notification/service"
	"snapfeed/pkg/logger"
	"snapfeed/pkg/response"
	"snapfeed/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Broadcaster 广播通知
type Broadcaster interface {
	Broadcast(ctx context.Context, n model.Notification) (service.BroadcastResult, error)
}

type NotificationHandler struct {
	webhook     service.WebhookService
	broadcaster Broadcaster
	tokens      repository.TokenRepository
	now         func() time.Time
}

func NewNotificationHandler(webhook service.WebhookService, b Broadcaster, tokens repository.TokenRepository) *NotificationHandler {
	return &NotificationHandler{webhook: webhook, broadcaster: b, tokens: tokens, now: time.Now}
}

// Webhook mini app 客户端事件回调
// 响应格式由客户端约定，不使用统一响应结构
// @Summary mini app webhook
// @Tags Notification
// @Accept json
// @Produce json
// @Param input body model.Signature true "签名事件"
// @Success 200 {object} map[string]bool
// @Router /api/farcaster/webhook [post]
func (h *NotificationHandler) Webhook(c *gin.Context) {
	var sig model.Signature
	if err := c.ShouldBindJSON(&sig); err != nil || sig.Header == "" || sig.Payload == "" || sig.Signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload format"})
		return
	}

	ok, err := h.webhook.Process(c.Request.Context(), sig)
	if err != nil {
		logger.L().Error("webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to process webhook"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WebhookStatus 连通性检查
func (h *NotificationHandler) WebhookStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "snapfeed mini app webhook endpoint",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Broadcast 向所有开启通知的用户广播
// @Summary 广播通知
// @Tags Notification
// @Accept json
// @Produce json
// @Param input body model.Notification true "通知内容"
// @Success 200 {object} service.BroadcastResult
// @Router /notifications/broadcast [post]
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var n model.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	res, err := h.broadcaster.Broadcast(c.Request.Context(), n)
	if err != nil {
		if errors.Is(err, service.ErrNoRecipients) {
			response.Error(c, http.StatusUnprocessableEntity, response.ErrInvalidParam, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, res)
}

// ListTokens 分页查看已登记的 token
func (h *NotificationHandler) ListTokens(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	offset, limit := p.Normalize()

	tokens, total, err := h.tokens.List(c.Request.Context(), offset, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, utils.NewPageResult(tokens, total, p))
}
