package service

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"snapfeed/internal/domain/notification/model"
	"snapfeed/internal/domain/notification/repository"
	"snapfeed/pkg/metrics"

	"go.uber.org/zap"
)

var (
	ErrMalformed    = errors.New("malformed webhook signature")
	ErrBadSignature = errors.New("webhook signature verification failed")
)

// WebhookService 处理 mini app 客户端的添加/移除/通知开关事件
type WebhookService interface {
	// Process 返回 false 表示事件无法处理（格式错误、签名无效、未知事件）；error 表示内部故障
	Process(ctx context.Context, sig model.Signature) (bool, error)
}

type webhookService struct {
	repo    repository.TokenRepository
	replay  ReplayGuard
	verify  bool
	metrics *metrics.MetricsCollector
	log     *zap.Logger
}

func NewWebhookService(repo repository.TokenRepository, replay ReplayGuard, verify bool, m *metrics.MetricsCollector, log *zap.Logger) WebhookService {
	if log == nil {
		log = zap.NewNop()
	}
	return &webhookService{repo: repo, replay: replay, verify: verify, metrics: m, log: log}
}

// decodeBase64URL 兼容带或不带 padding 的 base64url
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func decodeJSON(s string, v interface{}) error {
	raw, err := decodeBase64URL(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// VerifySignature 校验 header.payload 的 ed25519 签名，公钥取自 header.key
func VerifySignature(sig model.Signature, header model.Header) error {
	pub, err := hex.DecodeString(strings.TrimPrefix(header.Key, "0x"))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: invalid key", ErrBadSignature)
	}
	signature, err := decodeBase64URL(sig.Signature)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: invalid signature encoding", ErrBadSignature)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(sig.Header+"."+sig.Payload), signature) {
		return ErrBadSignature
	}
	return nil
}

func (s *webhookService) Process(ctx context.Context, sig model.Signature) (bool, error) {
	var header model.Header
	if err := decodeJSON(sig.Header, &header); err != nil {
		s.reject("", err)
		return false, nil
	}
	var event model.Event
	if err := decodeJSON(sig.Payload, &event); err != nil {
		s.reject("", err)
		return false, nil
	}

	if s.verify {
		if err := VerifySignature(sig, header); err != nil {
			s.reject(event.Event, err)
			return false, nil
		}
	}

	if s.replay != nil {
		first, err := s.replay.First(ctx, sig.Signature)
		if err != nil {
			return false, fmt.Errorf("replay guard: %w", err)
		}
		if !first {
			s.record(event.Event, "duplicate")
			s.log.Info("duplicate webhook ignored", zap.Int64("fid", header.FID), zap.String("event", event.Event))
			return true, nil
		}
	}

	ok, err := s.apply(ctx, header, event)
	if err != nil && s.replay != nil {
		if rerr := s.replay.Release(ctx, sig.Signature); rerr != nil {
			s.log.Warn("release replay key failed", zap.Error(rerr))
		}
	}
	return ok, err
}

func (s *webhookService) apply(ctx context.Context, header model.Header, event model.Event) (bool, error) {
	switch event.Event {
	case model.EventFrameAdded, model.EventMiniAppAdded, model.EventNotificationsEnabled:
		// 添加 mini app 时用户可能没有开启通知，此时没有 notificationDetails
		if event.NotificationDetails == nil || event.NotificationDetails.Token == "" {
			s.record(event.Event, "ignored")
			return true, nil
		}
		token := &model.Token{
			FID:    header.FID,
			AppKey: header.Key,
			URL:    event.NotificationDetails.URL,
			Token:  event.NotificationDetails.Token,
		}
		if err := s.repo.Upsert(ctx, token); err != nil {
			return false, fmt.Errorf("save token for fid %d: %w", header.FID, err)
		}
		s.log.Info("notification token saved", zap.Int64("fid", header.FID), zap.String("event", event.Event))

	case model.EventFrameRemoved, model.EventMiniAppRemoved, model.EventNotificationsDisable:
		n, err := s.repo.DisableByFID(ctx, header.FID)
		if err != nil {
			return false, fmt.Errorf("disable tokens for fid %d: %w", header.FID, err)
		}
		s.log.Info("notification tokens disabled",
			zap.Int64("fid", header.FID),
			zap.String("event", event.Event),
			zap.Int64("count", n),
		)

	default:
		s.reject(event.Event, fmt.Errorf("unknown event %q", event.Event))
		return false, nil
	}

	s.record(event.Event, "applied")
	return true, nil
}

var knownEvents = map[string]bool{
	model.EventFrameAdded:           true,
	model.EventFrameRemoved:         true,
	model.EventMiniAppAdded:         true,
	model.EventMiniAppRemoved:       true,
	model.EventNotificationsEnabled: true,
	model.EventNotificationsDisable: true,
}

func (s *webhookService) reject(event string, err error) {
	s.record(event, "rejected")
	s.log.Warn("webhook rejected", zap.String("event", event), zap.Error(err))
}

func (s *webhookService) record(event, outcome string) {
	if s.metrics == nil {
		return
	}
	if !knownEvents[event] {
		event = "unknown"
	}
	s.metrics.RecordWebhookEvent(event, outcome)
}
