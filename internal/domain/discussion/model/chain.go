package model

import "github.com/shopspring/decimal"

// Account 估算投票价值所需的账户字段（单位 VESTS）
type Account struct {
	Name                   string          `json:"name"`
	VestingShares          decimal.Decimal `json:"vestingShares"`
	DelegatedVestingShares decimal.Decimal `json:"delegatedVestingShares"`
	ReceivedVestingShares  decimal.Decimal `json:"receivedVestingShares"`
	VotingPower            int64           `json:"votingPower"` // 0-10000
}

// EffectiveVests 自有 - 委托出去 + 收到的委托
func (a Account) EffectiveVests() decimal.Decimal {
	return a.VestingShares.Sub(a.DelegatedVestingShares).Add(a.ReceivedVestingShares)
}

// RewardFund 奖励池
type RewardFund struct {
	RewardBalance decimal.Decimal `json:"rewardBalance"` // HIVE
	RecentClaims  decimal.Decimal `json:"recentClaims"`
}

// Price 中位价，Base/Quote 即每 HIVE 对应的 HBD
type Price struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// Rate 返回 Base/Quote，Quote 为 0 时返回 0
func (p Price) Rate() decimal.Decimal {
	if p.Quote.IsZero() {
		return decimal.Zero
	}
	return p.Base.Div(p.Quote)
}
