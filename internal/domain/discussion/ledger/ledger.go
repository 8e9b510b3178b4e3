// Package ledger 投票记录去重与汇总
package ledger

import "snapfeed/internal/domain/discussion/model"

// Deduplicate 每个投票人只保留一条记录，取输入中最后一次出现的那条（表示改票而非重复投票）
// 输出按每个投票人最后一次出现的位置排序
func Deduplicate(records []model.VoteRecord) []model.VoteRecord {
	if len(records) == 0 {
		return []model.VoteRecord{}
	}

	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.Voter] = i
	}

	out := make([]model.VoteRecord, 0, len(last))
	for i, r := range records {
		if last[r.Voter] == i {
			out = append(out, r)
		}
	}
	return out
}

// HasVoted voter 是否在记录中
func HasVoted(records []model.VoteRecord, voter string) bool {
	if voter == "" {
		return false
	}
	for _, r := range records {
		if r.Voter == voter {
			return true
		}
	}
	return false
}

// Summary 去重后的投票汇总
type Summary struct {
	Voters     int   `json:"voters"`
	Upvotes    int   `json:"upvotes"`
	Downvotes  int   `json:"downvotes"`
	NetRshares int64 `json:"netRshares"`
}

// Summarize 先去重再汇总；权重为 0 的记录（撤票）只计入 Voters
func Summarize(records []model.VoteRecord) Summary {
	var s Summary
	for _, r := range Deduplicate(records) {
		s.Voters++
		s.NetRshares += r.Rshares
		switch {
		case r.Weight > 0 || (r.Weight == 0 && r.Rshares > 0):
			s.Upvotes++
		case r.Weight < 0 || (r.Weight == 0 && r.Rshares < 0):
			s.Downvotes++
		}
	}
	return s
}
