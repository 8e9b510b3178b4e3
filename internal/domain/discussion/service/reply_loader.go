package service

import (
	"context"
	"time"

	"snapfeed/internal/domain/discussion/model"
	"snapfeed/pkg/metrics"

	"go.uber.org/zap"
)

// ReplyLoader 拉取一层回复；远端失败降级为空列表，只记录日志和指标
type ReplyLoader struct {
	source  ReplySource
	log     *zap.Logger
	metrics *metrics.MetricsCollector
}

func NewReplyLoader(source ReplySource, log *zap.Logger, m *metrics.MetricsCollector) *ReplyLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReplyLoader{source: source, log: log, metrics: m}
}

func (l *ReplyLoader) LoadReplies(ctx context.Context, author, permlink string) []model.Discussion {
	start := time.Now()
	replies, err := l.source.FetchReplies(ctx, author, permlink, false)
	if l.metrics != nil {
		l.metrics.RecordReplyLoad(time.Since(start), len(replies), err)
	}
	if err != nil {
		l.log.Warn("load replies failed",
			zap.String("author", author),
			zap.String("permlink", permlink),
			zap.Error(err),
		)
		return []model.Discussion{}
	}
	if replies == nil {
		return []model.Discussion{}
	}
	return replies
}
