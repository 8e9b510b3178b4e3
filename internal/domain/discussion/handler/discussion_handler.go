package handler

import (
	"errors"
	"net/http"
	"time"

	"snapfeed/internal/domain/discussion/model"
	"snapfeed/internal/domain/discussion/payout"
	"snapfeed/internal/domain/discussion/repository"
	"snapfeed/internal/domain/discussion/service"
	"snapfeed/internal/pkg/middleware"
	"snapfeed/pkg/response"

	"github.com/gin-gonic/gin"
)

type DiscussionHandler struct {
	store *service.SessionStore
}

func NewDiscussionHandler(store *service.SessionStore) *DiscussionHandler {
	return &DiscussionHandler{store: store}
}

// CreateSessionInput 创建会话输入，三种方式任选其一：roots / feed / conversation
type CreateSessionInput struct {
	Roots        []model.Key `json:"roots" binding:"dive"`
	Feed         *model.Key  `json:"feed"`
	Conversation *model.Key  `json:"conversation"`
}

// ReplyInput 回复输入框发布成功后提交的回复，createdAt 为 RFC3339，缺省为当前时间
type ReplyInput struct {
	Author    string    `json:"author" binding:"required"`
	Permlink  string    `json:"permlink" binding:"required"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// VoteInput 投票输入，weight 为百分比 ×100
type VoteInput struct {
	Weight int64 `json:"weight" binding:"required"`
}

// DraftInput 编辑草稿
type DraftInput struct {
	Body string `json:"body"`
}

// CreateSession 打开一个 feed 会话
// @Summary 打开会话
// @Tags Discussion
// @Accept json
// @Produce json
// @Param input body CreateSessionInput true "根节点"
// @Success 200 {object} service.SessionView
// @Router /sessions [post]
func (h *DiscussionHandler) CreateSession(c *gin.Context) {
	var input CreateSessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	viewer := middleware.Viewer(c)
	ctx := c.Request.Context()

	var s *service.Session
	switch {
	case input.Conversation != nil:
		var err error
		s, err = h.store.OpenConversation(ctx, viewer, *input.Conversation)
		if err != nil {
			h.fail(c, err)
			return
		}
	case input.Feed != nil:
		s = h.store.CreateFeed(ctx, viewer, *input.Feed)
	case len(input.Roots) > 0:
		s = h.store.Create(ctx, viewer, input.Roots)
	default:
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "one of roots, feed or conversation is required")
		return
	}

	response.Success(c, s.View(h.store.Now()))
}

// GetSession 会话快照
func (h *DiscussionHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, s.View(h.store.Now()))
}

// CloseSession 关闭会话，卸载所有节点
func (h *DiscussionHandler) CloseSession(c *gin.Context) {
	if err := h.store.Close(c.Param("id"), middleware.Viewer(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, "success")
}

// AddRoot 追加根节点
func (h *DiscussionHandler) AddRoot(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var key model.Key
	if err := c.ShouldBindJSON(&key); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	node, err := h.store.AddRoot(c.Request.Context(), s, key)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// GetNode 节点快照
func (h *DiscussionHandler) GetNode(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// ToggleReplies 查看回复：顶层节点打开对话，其余节点就地展开/收起
// @Summary 展开/收起回复
// @Tags Discussion
// @Produce json
// @Param id path string true "会话ID"
// @Param author path string true "作者"
// @Param permlink path string true "permlink"
// @Success 200 {object} service.SessionView
// @Router /sessions/{id}/nodes/{author}/{permlink}/toggle [post]
func (h *DiscussionHandler) ToggleReplies(c *gin.Context) {
	s, node, ok := h.sessionNode(c)
	if !ok {
		return
	}
	if err := node.ToggleReplies(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	// 顶层节点的结果体现在会话的 conversation 字段上，因此返回整个会话
	response.Success(c, s.View(h.store.Now()))
}

// Reload 重新拉取回复
func (h *DiscussionHandler) Reload(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	if err := node.Reload(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// CloseComposer 关闭回复输入框
func (h *DiscussionHandler) CloseComposer(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	node.CloseComposer()
	response.Success(c, node.View(h.store.Now()))
}

// AppendReply 把刚发布的回复挂到节点下
// @Summary 追加本地回复
// @Tags Discussion
// @Accept json
// @Produce json
// @Param input body ReplyInput true "回复"
// @Success 200 {object} service.NodeView
// @Router /sessions/{id}/nodes/{author}/{permlink}/replies [post]
func (h *DiscussionHandler) AppendReply(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var input ReplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	viewer := middleware.Viewer(c)
	if viewer == "" {
		h.fail(c, service.ErrAnonymous)
		return
	}
	if input.Author != viewer {
		response.Error(c, http.StatusForbidden, response.ErrNoPermission, "reply author must be the signed-in viewer")
		return
	}

	parent := model.Key{Author: c.Param("author"), Permlink: c.Param("permlink")}
	reply := model.Discussion{
		Author:    input.Author,
		Permlink:  input.Permlink,
		Title:     input.Title,
		Body:      input.Body,
		CreatedAt: input.CreatedAt,
	}
	if _, err := s.AppendLocalReply(parent, reply); err != nil {
		h.fail(c, err)
		return
	}

	node, err := s.Node(parent)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// Vote 投票
// @Summary 投票
// @Tags Discussion
// @Accept json
// @Produce json
// @Param input body VoteInput true "权重"
// @Success 200 {object} service.NodeView
// @Failure 502 {object} response.Response "投票失败，可重试"
// @Router /sessions/{id}/nodes/{author}/{permlink}/vote [post]
func (h *DiscussionHandler) Vote(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	var input VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := node.CastVote(c.Request.Context(), input.Weight); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// BeginEdit 进入编辑
func (h *DiscussionHandler) BeginEdit(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	if err := node.BeginEdit(); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// UpdateDraft 更新草稿
func (h *DiscussionHandler) UpdateDraft(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	var input DraftInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := node.UpdateDraft(input.Body); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// SaveEdit 保存编辑
func (h *DiscussionHandler) SaveEdit(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	if err := node.SaveEdit(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// CancelEdit 取消编辑
func (h *DiscussionHandler) CancelEdit(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	if err := node.CancelEdit(); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, node.View(h.store.Now()))
}

// PayoutView 收益详情
type PayoutView struct {
	payout.Breakdown
	RewardTotal   string `json:"rewardTotal"`
	RewardDisplay string `json:"rewardDisplay"`
}

// GetPayout 收益详情，每次请求按当前时间重新计算
func (h *DiscussionHandler) GetPayout(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}
	total := node.RewardTotal()
	response.Success(c, PayoutView{
		Breakdown:     payout.Estimate(node.Node(), h.store.Now()),
		RewardTotal:   total.StringFixed(3),
		RewardDisplay: payout.FormatUSD(total),
	})
}

func (h *DiscussionHandler) session(c *gin.Context) (*service.Session, bool) {
	s, err := h.store.Get(c.Param("id"), middleware.Viewer(c))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *DiscussionHandler) sessionNode(c *gin.Context) (*service.Session, *service.NodeController, bool) {
	s, ok := h.session(c)
	if !ok {
		return nil, nil, false
	}
	node, err := s.Node(model.Key{Author: c.Param("author"), Permlink: c.Param("permlink")})
	if err != nil {
		h.fail(c, err)
		return nil, nil, false
	}
	return s, node, true
}

func (h *DiscussionHandler) node(c *gin.Context) (*service.NodeController, bool) {
	_, node, ok := h.sessionNode(c)
	return node, ok
}

// fail 把领域错误映射为 HTTP 状态码与业务码
func (h *DiscussionHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.ErrSessionNotFound, err.Error())
	case errors.Is(err, service.ErrSessionForbidden):
		response.Error(c, http.StatusForbidden, response.ErrNoPermission, err.Error())
	case errors.Is(err, service.ErrNodeNotFound), errors.Is(err, repository.ErrNotFound):
		response.Error(c, http.StatusNotFound, response.ErrNodeNotFound, err.Error())
	case errors.Is(err, service.ErrAnonymous):
		response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, err.Error())
	case errors.Is(err, service.ErrNotAuthor):
		response.Error(c, http.StatusForbidden, response.ErrNotAuthor, err.Error())
	case errors.Is(err, service.ErrAlreadyVoted):
		response.Error(c, http.StatusConflict, response.ErrAlreadyVoted, err.Error())
	case errors.Is(err, service.ErrInvalidWeight):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
	case errors.Is(err, service.ErrVoteInFlight), errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrUnmounted):
		response.Error(c, http.StatusConflict, response.ErrInvalidState, err.Error())
	case errors.Is(err, service.ErrVoteFailed):
		response.Transient(c, response.ErrVoteFailed, err.Error())
	case errors.Is(err, service.ErrEditFailed):
		response.Transient(c, response.ErrEditFailed, err.Error())
	default:
		_ = c.Error(err)
		response.Transient(c, response.ErrUpstream, err.Error())
	}
}
