// Package payout 从节点的原始金额字段推导展示用的收益数据
package payout

import (
	"strings"
	"time"

	"snapfeed/internal/domain/discussion/model"

	"github.com/shopspring/decimal"
)

// Window 收益结算窗口：创建后 7 天结算
const Window = 7 * 24 * time.Hour

const day = 24 * time.Hour

// Breakdown 某一时刻的收益视图，每次展示都重新计算
type Breakdown struct {
	AuthorPayout  decimal.Decimal `json:"authorPayout"`
	CuratorPayout decimal.Decimal `json:"curatorPayout"`
	PendingPayout decimal.Decimal `json:"pendingPayout"`
	Pending       bool            `json:"pending"`
	DaysRemaining int             `json:"daysRemaining"`
	SettlesAt     time.Time       `json:"settlesAt"`
}

// ParseAmount 解析 "<数字> <币种>" 或纯数字，格式错误或为空时返回 0
func ParseAmount(raw string) decimal.Decimal {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(fields[0])
	if err != nil {
		return decimal.Zero
	}
	return v
}

// Estimate 计算 now 时刻的收益视图
func Estimate(d model.Discussion, now time.Time) Breakdown {
	elapsed := now.Sub(d.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	b := Breakdown{
		AuthorPayout:  ParseAmount(d.TotalPayoutValue),
		CuratorPayout: ParseAmount(d.CuratorPayoutValue),
		PendingPayout: ParseAmount(d.PendingPayoutValue),
		Pending:       elapsed < Window,
		SettlesAt:     d.CreatedAt.Add(Window),
	}
	if b.Pending {
		remaining := Window - elapsed
		b.DaysRemaining = int((remaining + day - 1) / day)
	}
	return b
}

// InitialReward 节点在本地投票之前展示的收益：
// 待结算金额为正时取待结算金额，否则取作者与策展收益之和
func InitialReward(d model.Discussion) decimal.Decimal {
	pending := ParseAmount(d.PendingPayoutValue)
	if pending.IsPositive() {
		return pending
	}
	return ParseAmount(d.TotalPayoutValue).Add(ParseAmount(d.CuratorPayoutValue))
}

// AddReward 累加本地投票的估值，结果保留 3 位小数
func AddReward(total, inc decimal.Decimal) decimal.Decimal {
	return total.Add(inc).Round(3)
}

// FormatUSD 以两位小数展示金额，例如 "$1.23"
func FormatUSD(v decimal.Decimal) string {
	return "$" + v.StringFixed(2)
}
