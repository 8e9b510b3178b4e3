package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"snapfeed/internal/pkg/uploader"
	"snapfeed/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// maxParallelUploads 单次请求内的并发上传数
const maxParallelUploads = 5

var videoExts = map[string]bool{".mp4": true, ".mov": true, ".webm": true, ".m4v": true}

// UploadedMedia 上传结果，Markdown 可以直接插入回复正文
type UploadedMedia struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
}

type UploadHandler struct {
	uploader uploader.Uploader
}

func NewUploadHandler(u uploader.Uploader) *UploadHandler {
	return &UploadHandler{uploader: u}
}

// MediaMarkdown 图片生成 ![](url)，视频生成 iframe，与正文拆分时的媒体行格式一致
func MediaMarkdown(filename, url string) string {
	if videoExts[strings.ToLower(filepath.Ext(filename))] {
		return fmt.Sprintf(`<iframe src="%s" allowfullscreen></iframe>`, url)
	}
	return fmt.Sprintf("![%s](%s)", filename, url)
}

// UploadFile 上传文件 (支持批量)
// @Summary 上传回复中的图片/视频到 OSS (支持批量)
// @Tags Common
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files"
// @Success 200 {object} response.Response{data=[]UploadedMedia}
// @Router /upload [post]
func (h *UploadHandler) UploadFile(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Invalid form data")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "No files uploaded")
		return
	}

	if h.uploader == nil {
		response.Error(c, http.StatusServiceUnavailable, response.ErrServerInternal, "Uploader not configured")
		return
	}

	// 按索引写入结果，保证顺序与上传顺序一致
	results := make([]UploadedMedia, len(files))
	eg, ctx := errgroup.WithContext(c.Request.Context())
	eg.SetLimit(maxParallelUploads)
	for i, file := range files {
		eg.Go(func() error {
			src, err := file.Open()
			if err != nil {
				return err
			}
			defer src.Close()

			url, err := h.uploader.Upload(ctx, file.Filename, src)
			if err != nil {
				return err
			}
			results[i] = UploadedMedia{URL: url, Markdown: MediaMarkdown(file.Filename, url)}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		response.Transient(c, response.ErrUpstream, "Upload failed: "+err.Error())
		return
	}

	response.Success(c, results)
}
