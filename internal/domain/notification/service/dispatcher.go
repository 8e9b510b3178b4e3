package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"snapfeed/internal/domain/notification/model"
	"snapfeed/internal/domain/notification/repository"
	"snapfeed/internal/pkg/push"
	"snapfeed/internal/pkg/worker"
	"snapfeed/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxBatchSize 单次投递请求最多携带的 token 数
const MaxBatchSize = 100

var ErrNoRecipients = errors.New("no enabled notification tokens")

// TaskQueue 投递任务队列，由 worker.WorkerPool 实现
type TaskQueue interface {
	AddTask(task worker.NotificationTask) bool
}

// BroadcastResult 广播的入队结果
type BroadcastResult struct {
	NotificationID string `json:"notificationId"`
	Tokens         int    `json:"tokens"`
	Batches        int    `json:"batches"`
	Dropped        int    `json:"dropped"` // 队列已满未能入队的批次
	Pushed         bool   `json:"pushed"`
}

type deliveryRequest struct {
	NotificationID string   `json:"notificationId"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	TargetURL      string   `json:"targetUrl"`
	Tokens         []string `json:"tokens"`
}

type deliveryResponse struct {
	Result struct {
		SuccessfulTokens  []string `json:"successfulTokens"`
		InvalidTokens     []string `json:"invalidTokens"`
		RateLimitedTokens []string `json:"rateLimitedTokens"`
	} `json:"result"`
}

// Dispatcher 把广播拆成按投递地址分组的批次，并负责单个批次的投递
type Dispatcher struct {
	repo      repository.TokenRepository
	client    *http.Client
	push      push.PushService
	batchSize int
	metrics   *metrics.MetricsCollector
	log       *zap.Logger

	queue TaskQueue
}

func NewDispatcher(repo repository.TokenRepository, client *http.Client, pushSvc push.PushService, batchSize int, m *metrics.MetricsCollector, log *zap.Logger) *Dispatcher {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		repo:      repo,
		client:    client,
		push:      pushSvc,
		batchSize: batchSize,
		metrics:   m,
		log:       log,
	}
}

// SetQueue 注入任务队列；队列的 worker 反过来调用 Deliver
func (d *Dispatcher) SetQueue(q TaskQueue) {
	d.queue = q
}

// Batches 按投递地址分组，每组再按 batchSize 切分
func Batches(tokens []model.Token, batchSize int) map[string][][]string {
	byURL := make(map[string][]string)
	for _, t := range tokens {
		byURL[t.URL] = append(byURL[t.URL], t.Token)
	}
	out := make(map[string][][]string, len(byURL))
	for url, all := range byURL {
		for start := 0; start < len(all); start += batchSize {
			end := start + batchSize
			if end > len(all) {
				end = len(all)
			}
			out[url] = append(out[url], all[start:end])
		}
	}
	return out
}

// Broadcast 通知所有已开启通知的用户，投递异步进行
func (d *Dispatcher) Broadcast(ctx context.Context, n model.Notification) (BroadcastResult, error) {
	if d.queue == nil {
		return BroadcastResult{}, errors.New("dispatcher queue not set")
	}
	tokens, err := d.repo.ListEnabled(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("list tokens: %w", err)
	}

	res := BroadcastResult{NotificationID: uuid.New().String(), Tokens: len(tokens)}
	res.Pushed = d.pushAll(n)
	if len(tokens) == 0 {
		if res.Pushed {
			return res, nil
		}
		return res, ErrNoRecipients
	}

	for url, batches := range Batches(tokens, d.batchSize) {
		for _, batch := range batches {
			task := worker.NotificationTask{
				NotificationID: res.NotificationID,
				URL:            url,
				Title:          n.Title,
				Body:           n.Body,
				TargetURL:      n.TargetURL,
				Tokens:         batch,
			}
			if d.queue.AddTask(task) {
				res.Batches++
			} else {
				res.Dropped++
			}
		}
	}

	d.log.Info("notification broadcast queued",
		zap.String("notification_id", res.NotificationID),
		zap.Int("tokens", res.Tokens),
		zap.Int("batches", res.Batches),
		zap.Int("dropped", res.Dropped),
	)
	return res, nil
}

func (d *Dispatcher) pushAll(n model.Notification) bool {
	if d.push == nil {
		return false
	}
	err := d.push.PushToAll(n.Title, n.Body, map[string]string{"targetUrl": n.TargetURL})
	d.recordDelivery("aliyun", err)
	if err != nil {
		d.log.Warn("aliyun push failed", zap.Error(err))
		return false
	}
	return true
}

// Deliver 投递一个批次；失效 token 被停用，限流的 token 交给重试队列
func (d *Dispatcher) Deliver(ctx context.Context, task worker.NotificationTask) ([]string, error) {
	retry, err := d.deliver(ctx, task)
	d.recordDelivery("miniapp", err)
	return retry, err
}

func (d *Dispatcher) deliver(ctx context.Context, task worker.NotificationTask) ([]string, error) {
	body, err := json.Marshal(deliveryRequest{
		NotificationID: task.NotificationID,
		Title:          task.Title,
		Body:           task.Body,
		TargetURL:      task.TargetURL,
		Tokens:         task.Tokens,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deliver to %s: %w", task.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deliver to %s: status %d: %s", task.URL, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out deliveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode delivery response: %w", err)
	}

	if invalid := out.Result.InvalidTokens; len(invalid) > 0 {
		n, err := d.repo.DisableTokens(ctx, invalid)
		if err != nil {
			d.log.Warn("disable invalid tokens failed", zap.Error(err))
		} else {
			d.log.Info("invalid tokens disabled", zap.Int64("count", n))
		}
	}
	return out.Result.RateLimitedTokens, nil
}

func (d *Dispatcher) recordDelivery(channel string, err error) {
	if d.metrics != nil {
		d.metrics.RecordNotificationDelivery(channel, err)
	}
}
