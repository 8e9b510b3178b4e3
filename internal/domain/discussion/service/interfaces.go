package service

import (
	"context"
	"time"

	"snapfeed/internal/domain/discussion/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReplySource 远端内容源
type ReplySource interface {
	FetchReplies(ctx context.Context, author, permlink string, flat bool) ([]model.Discussion, error)
}

// ContentSource 按 key 获取单个节点，用于打开会话时加载根节点
type ContentSource interface {
	GetContent(ctx context.Context, author, permlink string) (model.Discussion, error)
}

// RepliesLoader 加载直接回复，失败时返回空切片而不是错误
type RepliesLoader interface {
	LoadReplies(ctx context.Context, author, permlink string) []model.Discussion
}

// Voter 投票协作方，成功时返回本次投票的估算收益
type Voter interface {
	CastVote(ctx context.Context, node model.Discussion, voter string, weight int64) (decimal.Decimal, error)
}

// EditPersister 持久化编辑
type EditPersister interface {
	SaveEdit(ctx context.Context, node model.Discussion, body string) error
}

// ConversationOpener 顶层节点的"查看回复"交给完整对话视图处理
type ConversationOpener interface {
	OpenConversation(node model.Discussion)
}

// Env 节点控制器共享的只读上下文，整棵树共用一份
type Env struct {
	Viewer        string
	Loader        RepliesLoader
	Voter         Voter
	Editor        EditPersister
	Conversations ConversationOpener
	Clock         func() time.Time
	Logger        *zap.Logger
}

func (e *Env) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

func (e *Env) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
