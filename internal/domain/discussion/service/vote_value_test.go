package service

import (
	"context"
	"errors"
	"testing"

	"snapfeed/internal/domain/discussion/model"
	"snapfeed/pkg/cache"
	"snapfeed/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChain 模拟链上数据
type MockChain struct {
	mock.Mock
}

func (m *MockChain) GetAccount(ctx context.Context, name string) (model.Account, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *MockChain) GetRewardFund(ctx context.Context) (model.RewardFund, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.RewardFund), args.Error(1)
}

func (m *MockChain) GetMedianPrice(ctx context.Context) (model.Price, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.Price), args.Error(1)
}

// MockBroadcaster 模拟签名中继
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Vote(ctx context.Context, voter string, target model.Key, weight int64) (string, error) {
	args := m.Called(ctx, voter, target, weight)
	return args.String(0), args.Error(1)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func healthyChain() *MockChain {
	chain := new(MockChain)
	chain.On("GetAccount", mock.Anything, "carol").Return(model.Account{
		Name:                   "carol",
		VestingShares:          dec("1200000"),
		DelegatedVestingShares: dec("300000"),
		ReceivedVestingShares:  dec("100000"),
	}, nil)
	chain.On("GetRewardFund", mock.Anything).Return(model.RewardFund{RewardBalance: dec("800000"), RecentClaims: dec("1000000000000000")}, nil)
	chain.On("GetMedianPrice", mock.Anything).Return(model.Price{Base: dec("0.250"), Quote: dec("1.000")}, nil)
	return chain
}

func TestVoteValueEstimator_Estimate(t *testing.T) {
	chain := healthyChain()
	est := NewVoteValueEstimator(chain, cache.NewMemoryCache(), nil, nil)
	ctx := context.Background()

	// 1e6 VESTS * 1e6 * 0.02 = 2e10 rshares; 2e10 / 1e15 * 800000 * 0.25 = 4
	v, err := est.Estimate(ctx, "carol", 10000)
	require.NoError(t, err)
	assert.Equal(t, "4", v.String())

	v, err = est.Estimate(ctx, "carol", 5000)
	require.NoError(t, err)
	assert.Equal(t, "2", v.String())

	v, err = est.Estimate(ctx, "carol", -2500)
	require.NoError(t, err)
	assert.Equal(t, "-1", v.String())

	chain.AssertNumberOfCalls(t, "GetAccount", 1)
	chain.AssertNumberOfCalls(t, "GetRewardFund", 1)
	chain.AssertNumberOfCalls(t, "GetMedianPrice", 1)
}

func TestVoteValueEstimator_CacheMetricsGroupAccounts(t *testing.T) {
	chain := healthyChain()
	chain.On("GetAccount", mock.Anything, "dave").Return(model.Account{Name: "dave", VestingShares: dec("1000000")}, nil)
	reg := prometheus.NewRegistry()
	est := NewVoteValueEstimator(chain, cache.NewMemoryCache(), metrics.NewMetricsCollector(reg), nil)
	ctx := context.Background()

	for _, voter := range []string{"carol", "dave", "carol"} {
		_, err := est.Estimate(ctx, voter, 10000)
		require.NoError(t, err)
	}

	// 账户按前缀聚合：reward_fund、median_price、account 三个标签
	n, err := testutil.GatherAndCount(reg, "cache_misses_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := testutil.GatherAndCount(reg, "cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 3, hits)
}

func TestVoteValueEstimator_Errors(t *testing.T) {
	chain := new(MockChain)
	chain.On("GetAccount", mock.Anything, "carol").Return(model.Account{}, errors.New("node down"))

	_, err := NewVoteValueEstimator(chain, nil, nil, nil).Estimate(context.Background(), "carol", 100)
	assert.ErrorContains(t, err, "load account")

	empty := new(MockChain)
	empty.On("GetAccount", mock.Anything, "carol").Return(model.Account{VestingShares: dec("10")}, nil)
	empty.On("GetRewardFund", mock.Anything).Return(model.RewardFund{}, nil)
	empty.On("GetMedianPrice", mock.Anything).Return(model.Price{}, nil)

	v, err := NewVoteValueEstimator(empty, nil, nil, nil).Estimate(context.Background(), "carol", 100)
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestChainVoter_CastVote(t *testing.T) {
	ctx := context.Background()
	node := model.Discussion{Author: "alice", Permlink: "post"}

	t.Run("broadcast then estimate", func(t *testing.T) {
		b := new(MockBroadcaster)
		b.On("Vote", ctx, "carol", node.Key(), int64(10000)).Return("tx1", nil).Once()

		v := NewChainVoter(b, NewVoteValueEstimator(healthyChain(), nil, nil, nil), nil)
		value, err := v.CastVote(ctx, node, "carol", 10000)
		require.NoError(t, err)
		assert.Equal(t, "4", value.String())
		b.AssertExpectations(t)
	})

	t.Run("broadcast failure is returned", func(t *testing.T) {
		b := new(MockBroadcaster)
		b.On("Vote", ctx, "carol", node.Key(), int64(100)).Return("", errors.New("rejected"))

		chain := new(MockChain)
		v := NewChainVoter(b, NewVoteValueEstimator(chain, nil, nil, nil), nil)
		_, err := v.CastVote(ctx, node, "carol", 100)
		assert.Error(t, err)
		chain.AssertNotCalled(t, "GetAccount", mock.Anything, mock.Anything)
	})

	t.Run("estimate failure still counts as voted", func(t *testing.T) {
		b := new(MockBroadcaster)
		b.On("Vote", ctx, "carol", node.Key(), int64(100)).Return("tx2", nil)
		chain := new(MockChain)
		chain.On("GetAccount", mock.Anything, "carol").Return(model.Account{}, errors.New("node down"))

		value, err := NewChainVoter(b, NewVoteValueEstimator(chain, nil, nil, nil), nil).CastVote(ctx, node, "carol", 100)
		require.NoError(t, err)
		assert.True(t, value.IsZero())
	})
}
