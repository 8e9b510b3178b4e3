package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"snapfeed/internal/domain/discussion/model"
	"snapfeed/pkg/cache"
	"snapfeed/pkg/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChainSource 估算投票价值需要的链上数据
type ChainSource interface {
	GetAccount(ctx context.Context, name string) (model.Account, error)
	GetRewardFund(ctx context.Context) (model.RewardFund, error)
	GetMedianPrice(ctx context.Context) (model.Price, error)
}

// VoteBroadcaster 广播投票
type VoteBroadcaster interface {
	Vote(ctx context.Context, voter string, target model.Key, weight int64) (string, error)
}

const (
	chainDataTTL = 5 * time.Minute
	accountTTL   = time.Minute

	keyRewardFund = "hive:reward_fund"
	keyMedian     = "hive:median_price"
	keyAccount    = "hive:account:"
)

var (
	vestsToRshares = decimal.NewFromInt(1_000_000)
	fullPowerVote  = decimal.RequireFromString("0.02") // 满权重投票消耗 2% 的投票能量
	fullWeight     = decimal.NewFromInt(maxVoteWeight)
)

// VoteValueEstimator 按账户有效 VESTS、奖励池和中位价估算一次投票的 HBD 价值
type VoteValueEstimator struct {
	chain   ChainSource
	cache   cache.CacheService
	metrics *metrics.MetricsCollector
	log     *zap.Logger
}

func NewVoteValueEstimator(chain ChainSource, c cache.CacheService, m *metrics.MetricsCollector, log *zap.Logger) *VoteValueEstimator {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VoteValueEstimator{chain: chain, cache: c, metrics: m, log: log}
}

// Estimate rshares = 有效 VESTS × 1e6 × 2% × weight/10000
// value = rshares / recent_claims × reward_balance × 中位价，保留 3 位小数
func (e *VoteValueEstimator) Estimate(ctx context.Context, voter string, weight int64) (decimal.Decimal, error) {
	account, err := cached(ctx, e, keyAccount+voter, accountTTL, func(ctx context.Context) (model.Account, error) {
		return e.chain.GetAccount(ctx, voter)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("load account: %w", err)
	}
	fund, err := cached(ctx, e, keyRewardFund, chainDataTTL, e.chain.GetRewardFund)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load reward fund: %w", err)
	}
	price, err := cached(ctx, e, keyMedian, chainDataTTL, e.chain.GetMedianPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load median price: %w", err)
	}

	if fund.RecentClaims.IsZero() {
		return decimal.Zero, nil
	}

	rshares := account.EffectiveVests().
		Mul(vestsToRshares).
		Mul(fullPowerVote).
		Mul(decimal.NewFromInt(weight)).
		Div(fullWeight)

	value := rshares.
		Div(fund.RecentClaims).
		Mul(fund.RewardBalance).
		Mul(price.Rate())
	return value.Round(3), nil
}

// cached 先读缓存，未命中时调用 load 并回写；缓存读写失败不影响结果
func cached[T any](ctx context.Context, e *VoteValueEstimator, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	err := e.cache.Get(ctx, key, &v)
	if err == nil {
		e.recordLookup(key, true)
		return v, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		e.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	e.recordLookup(key, false)

	v, err = load(ctx)
	if err != nil {
		return v, err
	}
	if err := e.cache.Set(ctx, key, v, ttl); err != nil {
		e.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

func (e *VoteValueEstimator) recordLookup(key string, hit bool) {
	if e.metrics == nil {
		return
	}
	prefix := key
	if strings.HasPrefix(key, keyAccount) {
		prefix = keyAccount
	}
	e.metrics.RecordCacheLookup(prefix, hit)
}

// ChainVoter 先经签名中继广播投票，再估算价值
// 估算失败不影响投票结果，只是本地收益不增加
type ChainVoter struct {
	broadcaster VoteBroadcaster
	estimator   *VoteValueEstimator
	log         *zap.Logger
}

func NewChainVoter(b VoteBroadcaster, est *VoteValueEstimator, log *zap.Logger) *ChainVoter {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChainVoter{broadcaster: b, estimator: est, log: log}
}

func (v *ChainVoter) CastVote(ctx context.Context, node model.Discussion, voter string, weight int64) (decimal.Decimal, error) {
	txID, err := v.broadcaster.Vote(ctx, voter, node.Key(), weight)
	if err != nil {
		return decimal.Zero, err
	}
	v.log.Info("vote broadcast",
		zap.String("author", node.Author),
		zap.String("permlink", node.Permlink),
		zap.String("voter", voter),
		zap.Int64("weight", weight),
		zap.String("tx_id", txID),
	)

	value, err := v.estimator.Estimate(ctx, voter, weight)
	if err != nil {
		v.log.Warn("estimate vote value failed", zap.String("voter", voter), zap.Error(err))
		return decimal.Zero, nil
	}
	return value, nil
}
