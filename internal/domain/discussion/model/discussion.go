package model

import (
	"fmt"
	"time"
)

// Key 在一个会话内唯一标识一个节点，permlink 只在同一作者下唯一
type Key struct {
	Author   string `json:"author" binding:"required"`
	Permlink string `json:"permlink" binding:"required"`
}

func (k Key) String() string {
	return fmt.Sprintf("@%s/%s", k.Author, k.Permlink)
}

// IsZero 是否为空 key
func (k Key) IsZero() bool {
	return k.Author == "" && k.Permlink == ""
}

// VoteRecord 一个投票人对节点的当前投票
// Weight 为百分比 ×100（Hive 约定，10000 = 100%，负数为踩）
type VoteRecord struct {
	Voter   string `json:"voter"`
	Weight  int64  `json:"weight"`
	Rshares int64  `json:"rshares"`
}

// Discussion 一个帖子或回复
type Discussion struct {
	Author         string    `json:"author"`
	Permlink       string    `json:"permlink"`
	ParentAuthor   string    `json:"parentAuthor,omitempty"`
	ParentPermlink string    `json:"parentPermlink,omitempty"`
	Title          string    `json:"title,omitempty"`
	Body           string    `json:"body"`
	Depth          int       `json:"depth"`
	CreatedAt      time.Time `json:"createdAt"`
	ChildCount     int       `json:"childCount"` // 服务端已知的回复数，可能大于已加载的回复数

	// 原始金额字符串，例如 "1.234 HBD"，可能为空
	TotalPayoutValue   string `json:"totalPayoutValue,omitempty"`
	CuratorPayoutValue string `json:"curatorPayoutValue,omitempty"`
	PendingPayoutValue string `json:"pendingPayoutValue,omitempty"`

	Votes []VoteRecord `json:"votes"`
}

// Key 返回节点标识
func (d Discussion) Key() Key {
	return Key{Author: d.Author, Permlink: d.Permlink}
}

// ParentKey 返回父节点标识，顶层帖子返回零值
func (d Discussion) ParentKey() Key {
	return Key{Author: d.ParentAuthor, Permlink: d.ParentPermlink}
}

// Clone 深拷贝，Votes 不与原值共享底层数组
func (d Discussion) Clone() Discussion {
	c := d
	if d.Votes != nil {
		c.Votes = make([]VoteRecord, len(d.Votes))
		copy(c.Votes, d.Votes)
	}
	return c
}
