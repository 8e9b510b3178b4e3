package ledger

import (
	"fmt"
	"math/rand"
	"testing"

	"snapfeed/internal/domain/discussion/model"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicate(t *testing.T) {
	t.Run("last occurrence wins", func(t *testing.T) {
		in := []model.VoteRecord{
			{Voter: "A", Weight: 100},
			{Voter: "B", Weight: 200},
			{Voter: "A", Weight: 300},
		}
		out := Deduplicate(in)
		assert.Equal(t, []model.VoteRecord{
			{Voter: "B", Weight: 200},
			{Voter: "A", Weight: 300},
		}, out)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Deduplicate(nil))
		assert.NotNil(t, Deduplicate(nil))
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []model.VoteRecord{{Voter: "A", Weight: 1}, {Voter: "A", Weight: 2}}
		_ = Deduplicate(in)
		assert.Equal(t, int64(1), in[0].Weight)
	})
}

func TestDeduplicate_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	voters := []string{"a", "b", "c", "d", "e"}

	for n := 0; n < 200; n++ {
		size := rng.Intn(30)
		in := make([]model.VoteRecord, size)
		lastWeight := map[string]int64{}
		for i := range in {
			v := voters[rng.Intn(len(voters))]
			in[i] = model.VoteRecord{Voter: v, Weight: int64(i)}
			lastWeight[v] = int64(i)
		}

		out := Deduplicate(in)
		assert.Len(t, out, len(lastWeight), fmt.Sprintf("case %d", n))

		seen := map[string]bool{}
		for _, r := range out {
			assert.False(t, seen[r.Voter], "voter %s appears twice", r.Voter)
			seen[r.Voter] = true
			assert.Equal(t, lastWeight[r.Voter], r.Weight)
		}
	}
}

func TestHasVoted(t *testing.T) {
	records := []model.VoteRecord{{Voter: "alice"}, {Voter: "bob"}}
	assert.True(t, HasVoted(records, "bob"))
	assert.False(t, HasVoted(records, "carol"))
	assert.False(t, HasVoted(records, ""))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]model.VoteRecord{
		{Voter: "a", Weight: 10000, Rshares: 50},
		{Voter: "b", Weight: -5000, Rshares: -20},
		{Voter: "a", Weight: 5000, Rshares: 25},
		{Voter: "c", Rshares: 7},
	})
	assert.Equal(t, Summary{Voters: 3, Upvotes: 2, Downvotes: 1, NetRshares: 12}, s)
}
