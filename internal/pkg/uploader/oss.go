package uploader

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"snapfeed/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// Uploader 回复输入框的媒体上传
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

type AliyunOSSUploader struct {
	bucket *oss.Bucket
	config config.OSSConfig
	now    func() time.Time
}

func NewAliyunOSSUploader(cfg config.OSSConfig) (*AliyunOSSUploader, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("oss config is missing")
	}
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return &AliyunOSSUploader{
		bucket: bucket,
		config: cfg,
		now:    time.Now,
	}, nil
}

// ObjectKey 生成对象名：YYYYMMDD/uuid.ext
func ObjectKey(now time.Time, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(now.Format("20060102"), uuid.New().String()+ext)
}

// PublicURL 公共读 bucket 的访问地址
func PublicURL(cfg config.OSSConfig, key string) string {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", cfg.BucketName, endpoint, key)
}

func (u *AliyunOSSUploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	key := ObjectKey(u.now(), filename)
	if err := u.bucket.PutObject(key, r, oss.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return PublicURL(u.config, key), nil
}
