package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapfeed/internal/domain/discussion/model"
	"snapfeed/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockContent 模拟单节点获取
type MockContent struct {
	mock.Mock
}

func (m *MockContent) GetContent(ctx context.Context, author, permlink string) (model.Discussion, error) {
	args := m.Called(ctx, author, permlink)
	return args.Get(0).(model.Discussion), args.Error(1)
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func newStore(t *testing.T, content *MockContent, loader *MockLoader) (*SessionStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: testNow}
	return NewSessionStore(StoreDeps{
		Content: content,
		Loader:  loader,
		Clock:   clock.Now,
		Metrics: metrics.NewMetricsCollector(prometheus.NewRegistry()),
		IdleTTL: 10 * time.Minute,
	}), clock
}

func TestSessionStore_CreateSkipsFailedRoots(t *testing.T) {
	content := new(MockContent)
	content.On("GetContent", mock.Anything, "alice", "post").Return(model.Discussion{Author: "alice", Permlink: "post", Depth: 1}, nil)
	content.On("GetContent", mock.Anything, "bob", "gone").Return(model.Discussion{}, errors.New("not found"))

	st, _ := newStore(t, content, new(MockLoader))
	s := st.Create(context.Background(), "viewer", []model.Key{
		{Author: "alice", Permlink: "post"},
		{Author: "bob", Permlink: "gone"},
	})

	roots := s.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, 0, roots[0].Node().Depth, "session roots are top-level")
	assert.Equal(t, 1, st.Len())
}

func TestSession_DepthZeroTogglePendsConversation(t *testing.T) {
	st, _ := newStore(t, new(MockContent), new(MockLoader))
	s := st.CreateWithNodes("viewer", []model.Discussion{{Author: "alice", Permlink: "post"}})

	root := s.Roots()[0]
	require.NoError(t, root.ToggleReplies(context.Background()))

	conv, ok := s.PendingConversation()
	require.True(t, ok)
	assert.Equal(t, "post", conv.Permlink)
	assert.Equal(t, Collapsed, root.Expansion())
	assert.NotNil(t, s.View(testNow).Conversation)
}

func TestSessionStore_OpenConversation(t *testing.T) {
	content := new(MockContent)
	loader := new(MockLoader)
	content.On("GetContent", mock.Anything, "alice", "post").Return(model.Discussion{Author: "alice", Permlink: "post", Depth: 0}, nil)
	loader.On("LoadReplies", mock.Anything, "alice", "post").Return([]model.Discussion{reply("bob", "r1")})
	loader.On("LoadReplies", mock.Anything, "bob", "r1").Return([]model.Discussion{reply("carol", "r2")})

	st, _ := newStore(t, content, loader)
	s, err := st.OpenConversation(context.Background(), "viewer", model.Key{Author: "alice", Permlink: "post"})
	require.NoError(t, err)

	v := s.View(testNow)
	require.NotNil(t, v.Head)
	assert.Equal(t, "post", v.Head.Permlink)
	require.Len(t, v.Roots, 1)
	assert.Equal(t, 1, v.Roots[0].Depth)

	// 对话中的回复在本地展开
	node, err := s.Node(model.Key{Author: "bob", Permlink: "r1"})
	require.NoError(t, err)
	require.NoError(t, node.ToggleReplies(context.Background()))
	assert.Equal(t, Expanded, node.Expansion())

	found, err := s.Node(model.Key{Author: "carol", Permlink: "r2"})
	require.NoError(t, err)
	assert.Equal(t, 2, found.Node().Depth)
}

func TestSession_AppendLocalReply(t *testing.T) {
	st, _ := newStore(t, new(MockContent), new(MockLoader))
	s := st.CreateWithNodes("viewer", []model.Discussion{{Author: "alice", Permlink: "post"}})

	added, err := s.AppendLocalReply(model.Key{Author: "alice", Permlink: "post"}, model.Discussion{Author: "viewer", Permlink: "re"})
	require.NoError(t, err)
	assert.Equal(t, 1, added.Depth)

	_, err = s.AppendLocalReply(model.Key{Author: "nobody", Permlink: "post"}, model.Discussion{Author: "viewer", Permlink: "re2"})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestSession_AddRootDeduplicates(t *testing.T) {
	st, _ := newStore(t, new(MockContent), new(MockLoader))
	s := st.CreateWithNodes("viewer", nil)

	a, err := s.AddRoot(model.Discussion{Author: "alice", Permlink: "post"})
	require.NoError(t, err)
	b, err := s.AddRoot(model.Discussion{Author: "alice", Permlink: "post"})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Len(t, s.Roots(), 1)
}

func TestSessionStore_GetAndClose(t *testing.T) {
	st, _ := newStore(t, new(MockContent), new(MockLoader))
	s := st.CreateWithNodes("viewer", []model.Discussion{{Author: "alice", Permlink: "post"}})
	root := s.Roots()[0]

	_, err := st.Get(s.ID, "someone-else")
	assert.ErrorIs(t, err, ErrSessionForbidden)
	_, err = st.Get("missing", "viewer")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	got, err := st.Get(s.ID, "viewer")
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, st.Close(s.ID, "viewer"))
	assert.False(t, root.Mounted())
	assert.True(t, s.Closed())
	assert.Equal(t, 0, st.Len())
	assert.ErrorIs(t, st.Close(s.ID, "viewer"), ErrSessionNotFound)
}

func TestSessionStore_SweepIdle(t *testing.T) {
	st, clock := newStore(t, new(MockContent), new(MockLoader))
	idle := st.CreateWithNodes("viewer", nil)

	clock.now = testNow.Add(8 * time.Minute)
	active := st.CreateWithNodes("viewer", nil)

	clock.now = testNow.Add(12 * time.Minute)
	assert.Equal(t, 1, st.Sweep(clock.now))
	assert.True(t, idle.Closed())
	assert.False(t, active.Closed())

	_, err := st.Get(active.ID, "viewer")
	require.NoError(t, err)
	clock.now = testNow.Add(21 * time.Minute)
	assert.Equal(t, 0, st.Sweep(clock.now), "access refreshes idle time")
}

func TestSessionStore_CreateFeed(t *testing.T) {
	loader := new(MockLoader)
	loader.On("LoadReplies", mock.Anything, "feed", "container").Return([]model.Discussion{reply("bob", "snap1"), reply("carol", "snap2")})

	st, _ := newStore(t, new(MockContent), loader)
	s := st.CreateFeed(context.Background(), "", model.Key{Author: "feed", Permlink: "container"})

	v := s.View(testNow)
	require.Len(t, v.Roots, 2)
	assert.Equal(t, 0, v.Roots[0].Depth)
	assert.Empty(t, v.Viewer)
}
