package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NotificationTask 一批发往同一投递地址的通知
type NotificationTask struct {
	NotificationID string
	URL            string
	Title          string
	Body           string
	TargetURL      string
	Tokens         []string
	Retry          int // 重试次数
}

// Deliverer 执行一次投递
// 返回 err 时整批重试；返回 retryTokens 时仅这些 token 重试（例如被限流的 token）
type Deliverer interface {
	Deliver(ctx context.Context, task NotificationTask) (retryTokens []string, err error)
}

type WorkerPool struct {
	TaskQueue  chan NotificationTask
	RetryQueue chan NotificationTask // 重试队列
	WorkerNum  int
	MaxRetry   int           // 最大重试次数
	RetryDelay time.Duration // 第 n 次重试前等待 n*RetryDelay

	deliverer Deliverer
	log       *zap.Logger
	onDrop    func(NotificationTask)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewWorkerPool(deliverer Deliverer, workerNum int, bufferSize int, log *zap.Logger) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if bufferSize < 2 {
		bufferSize = 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		TaskQueue:  make(chan NotificationTask, bufferSize),
		RetryQueue: make(chan NotificationTask, bufferSize/2),
		WorkerNum:  workerNum,
		MaxRetry:   3, // 最多重试3次
		RetryDelay: time.Second,
		deliverer:  deliverer,
		log:        log.Named("worker"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnDrop 注册任务被丢弃时的回调（队列已满或超过最大重试次数）
func (p *WorkerPool) OnDrop(fn func(NotificationTask)) {
	p.onDrop = fn
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	// 启动重试处理协程
	p.wg.Add(1)
	go p.retryWorker()
	p.log.Info("worker pool started", zap.Int("workers", p.WorkerNum))
}

// Stop 停止所有协程，队列中未处理的任务被丢弃
func (p *WorkerPool) Stop() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.log.Info("worker pool stopped")
	})
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.TaskQueue:
			p.handle(id, task)
		}
	}
}

func (p *WorkerPool) handle(id int, task NotificationTask) {
	retryTokens, err := p.deliverer.Deliver(p.ctx, task)
	if err == nil && len(retryTokens) == 0 {
		return
	}

	if err != nil {
		p.log.Warn("delivery failed",
			zap.Int("worker", id),
			zap.String("notification_id", task.NotificationID),
			zap.String("url", task.URL),
			zap.Int("tokens", len(task.Tokens)),
			zap.Error(err),
		)
	} else {
		task.Tokens = retryTokens
	}

	// 如果未达到最大重试次数，加入重试队列
	if task.Retry >= p.MaxRetry {
		p.log.Warn("task exceeded max retries",
			zap.Int("worker", id),
			zap.String("notification_id", task.NotificationID),
			zap.Int("max_retry", p.MaxRetry),
		)
		p.drop(task)
		return
	}

	task.Retry++
	select {
	case p.RetryQueue <- task:
		p.log.Debug("task added to retry queue",
			zap.Int("worker", id),
			zap.Int("attempt", task.Retry),
			zap.Int("max_retry", p.MaxRetry),
		)
	default:
		p.log.Warn("retry queue full, task dropped", zap.String("notification_id", task.NotificationID))
		p.drop(task)
	}
}

func (p *WorkerPool) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.RetryQueue:
			// 延迟重试，避免立即重试
			timer := time.NewTimer(time.Duration(task.Retry) * p.RetryDelay)
			select {
			case <-p.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			// 重新加入主队列
			select {
			case p.TaskQueue <- task:
			default:
				p.log.Warn("main queue full, retried task dropped", zap.String("notification_id", task.NotificationID))
				p.drop(task)
			}
		}
	}
}

func (p *WorkerPool) drop(task NotificationTask) {
	if p.onDrop != nil {
		p.onDrop(task)
	}
}

// AddTask 入队，队列已满时返回 false
func (p *WorkerPool) AddTask(task NotificationTask) bool {
	select {
	case p.TaskQueue <- task:
		return true
	default:
		p.log.Warn("worker pool queue full, dropping task", zap.String("notification_id", task.NotificationID))
		p.drop(task)
		return false
	}
}
