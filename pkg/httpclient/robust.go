package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Options 重试客户端参数
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// DefaultOptions 通用默认值：3 次重试，单次请求 20 秒超时
func DefaultOptions() Options {
	return Options{
		RetryMax:     3,
		RetryWaitMin: time.Second,
		RetryWaitMax: 10 * time.Second,
		Timeout:      20 * time.Second,
	}
}

// leveledZap 把 retryablehttp 的日志转到 zap
// 重试过程中的 ERROR 降为 WARN，DEBUG（重试记录）升为 INFO
type leveledZap struct {
	inner *zap.SugaredLogger
}

func (l leveledZap) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Infow(msg, keysAndValues...)
}

func (l leveledZap) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Infow(msg, keysAndValues...)
}

// RobustHTTPClient 返回带重试的标准 http.Client
// 连接错误、5xx（501 除外）和 429 会重试，429 遵循 Retry-After
func RobustHTTPClient(log *zap.Logger, opts Options) *http.Client {
	if log == nil {
		log = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = retryablehttp.LeveledLogger(leveledZap{inner: log.Named("http").Sugar()})

	client := retryClient.StandardClient()
	client.Timeout = opts.Timeout
	return client
}
