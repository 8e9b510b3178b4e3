package repository

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"snapfeed/internal/domain/discussion/model"
	"snapfeed/internal/domain/discussion/payout"

	"github.com/shopspring/decimal"
)

// hiveTime 节点返回的时间不带时区，按 UTC 解析
type hiveTime struct {
	time.Time
}

const hiveTimeLayout = "2006-01-02T15:04:05"

func (t *hiveTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if parsed, err := time.ParseInLocation(hiveTimeLayout, s, time.UTC); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed.UTC()
	return nil
}

// flexInt rshares 等字段可能是数字也可能是字符串
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(v)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexInt(int64(v))
	return nil
}

type hiveVote struct {
	Voter   string  `json:"voter"`
	Percent flexInt `json:"percent"`
	Rshares flexInt `json:"rshares"`
}

// hivePost 同时覆盖 condenser_api 与 bridge 两种返回格式
type hivePost struct {
	Author             string     `json:"author"`
	Permlink           string     `json:"permlink"`
	ParentAuthor       string     `json:"parent_author"`
	ParentPermlink     string     `json:"parent_permlink"`
	Title              string     `json:"title"`
	Body               string     `json:"body"`
	Depth              int        `json:"depth"`
	Created            hiveTime   `json:"created"`
	Children           int        `json:"children"`
	TotalPayoutValue   string     `json:"total_payout_value"`
	AuthorPayoutValue  string     `json:"author_payout_value"` // bridge
	CuratorPayoutValue string     `json:"curator_payout_value"`
	PendingPayoutValue string     `json:"pending_payout_value"`
	ActiveVotes        []hiveVote `json:"active_votes"`
	Replies            []string   `json:"replies"` // bridge: "author/permlink"
}

func (p hivePost) toDiscussion() model.Discussion {
	total := p.TotalPayoutValue
	if total == "" {
		total = p.AuthorPayoutValue
	}

	votes := make([]model.VoteRecord, 0, len(p.ActiveVotes))
	for _, v := range p.ActiveVotes {
		weight := int64(v.Percent)
		// bridge 不返回 percent，按 rshares 的符号记 ±100%
		if weight == 0 && v.Rshares != 0 {
			weight = 10000
			if v.Rshares < 0 {
				weight = -10000
			}
		}
		votes = append(votes, model.VoteRecord{Voter: v.Voter, Weight: weight, Rshares: int64(v.Rshares)})
	}

	return model.Discussion{
		Author:             p.Author,
		Permlink:           p.Permlink,
		ParentAuthor:       p.ParentAuthor,
		ParentPermlink:     p.ParentPermlink,
		Title:              p.Title,
		Body:               p.Body,
		Depth:              p.Depth,
		CreatedAt:          p.Created.Time,
		ChildCount:         p.Children,
		TotalPayoutValue:   total,
		CuratorPayoutValue: p.CuratorPayoutValue,
		PendingPayoutValue: p.PendingPayoutValue,
		Votes:              votes,
	}
}

type hiveAccount struct {
	Name                   string  `json:"name"`
	VestingShares          string  `json:"vesting_shares"`
	DelegatedVestingShares string  `json:"delegated_vesting_shares"`
	ReceivedVestingShares  string  `json:"received_vesting_shares"`
	VotingPower            flexInt `json:"voting_power"`
}

func (a hiveAccount) toAccount() model.Account {
	return model.Account{
		Name:                   a.Name,
		VestingShares:          payout.ParseAmount(a.VestingShares),
		DelegatedVestingShares: payout.ParseAmount(a.DelegatedVestingShares),
		ReceivedVestingShares:  payout.ParseAmount(a.ReceivedVestingShares),
		VotingPower:            int64(a.VotingPower),
	}
}

type hiveRewardFund struct {
	RewardBalance string          `json:"reward_balance"`
	RecentClaims  json.RawMessage `json:"recent_claims"` // 大整数，可能是字符串或数字
}

func (f hiveRewardFund) toRewardFund() model.RewardFund {
	claims := strings.Trim(string(f.RecentClaims), `"`)
	rc, err := decimal.NewFromString(claims)
	if err != nil {
		rc = decimal.Zero
	}
	return model.RewardFund{
		RewardBalance: payout.ParseAmount(f.RewardBalance),
		RecentClaims:  rc,
	}
}

type hivePrice struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p hivePrice) toPrice() model.Price {
	return model.Price{Base: payout.ParseAmount(p.Base), Quote: payout.ParseAmount(p.Quote)}
}
