package model

import "snapfeed/pkg/model"

// Token mini app 客户端登记的通知 token，同一个 fid 可以在多个客户端登记
type Token struct {
	model.BaseModel
	FID     int64  `gorm:"index;not null" json:"fid"`
	AppKey  string `gorm:"size:130" json:"appKey"`
	URL     string `gorm:"not null" json:"url"` // 客户端提供的投递地址
	Token   string `gorm:"uniqueIndex;not null" json:"token"`
	Enabled bool   `gorm:"not null;default:true" json:"enabled"`
}

func (Token) TableName() string {
	return "notification_tokens"
}

// Signature webhook 请求体，三个字段都是 base64url 编码
type Signature struct {
	Header    string `json:"header"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// Header 解码后的签名头
type Header struct {
	FID  int64  `json:"fid"`
	Type string `json:"type"`
	Key  string `json:"key"` // 0x 开头的 ed25519 公钥
}

// NotificationDetails 客户端提供的投递信息
type NotificationDetails struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Event 解码后的事件
type Event struct {
	Event               string               `json:"event"`
	NotificationDetails *NotificationDetails `json:"notificationDetails,omitempty"`
}

const (
	EventFrameAdded           = "frame_added"
	EventFrameRemoved         = "frame_removed"
	EventMiniAppAdded         = "miniapp_added"
	EventMiniAppRemoved       = "miniapp_removed"
	EventNotificationsEnabled = "notifications_enabled"
	EventNotificationsDisable = "notifications_disabled"
)

// Notification 一条广播通知
type Notification struct {
	Title     string `json:"title" binding:"required,max=32"`
	Body      string `json:"body" binding:"required,max=128"`
	TargetURL string `json:"targetUrl" binding:"required,url,max=1024"`
}
