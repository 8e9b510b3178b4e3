package utils

const (
	// DefaultPageLimit 未指定 limit 时的每页条数
	DefaultPageLimit = 20
	// MaxPageLimit 单页上限，和一次投递的 token 批量相同
	MaxPageLimit = 100
)

// Pagination 分页查询参数，page 从 1 开始，0 表示使用默认值
type Pagination struct {
	Page  int `json:"page" form:"page" binding:"omitempty,min=1"`
	Limit int `json:"limit" form:"limit" binding:"omitempty,min=1"`
}

// Normalize 补齐默认值并截断 limit，返回 offset 和 limit
func (p *Pagination) Normalize() (offset, limit int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return (p.Page - 1) * p.Limit, p.Limit
}

// PageResult 分页结果
type PageResult[T any] struct {
	List    []T   `json:"list"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	HasMore bool  `json:"hasMore"`
}

// NewPageResult p 需已 Normalize；list 为 nil 时输出空数组
func NewPageResult[T any](list []T, total int64, p Pagination) PageResult[T] {
	if list == nil {
		list = []T{}
	}
	return PageResult[T]{
		List:    list,
		Total:   total,
		Page:    p.Page,
		Limit:   p.Limit,
		HasMore: int64(p.Page)*int64(p.Limit) < total,
	}
}
