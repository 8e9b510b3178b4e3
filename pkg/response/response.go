package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code      int         `json:"code"`                // 业务码
	Message   string      `json:"message"`             // 提示信息
	Data      interface{} `json:"data"`                // 数据
	Retryable bool        `json:"retryable,omitempty"` // 临时性失败，客户端可重试
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, msg string) {
	c.JSON(httpCode, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// Transient 外部协作方暂时失败，界面状态已回滚，提示用户重试
func Transient(c *gin.Context, errCode int, msg string) {
	c.JSON(http.StatusBadGateway, Response{
		Code:      errCode,
		Message:   msg,
		Data:      nil,
		Retryable: true,
	})
}
