package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snapfeed/internal/domain/discussion/model"
	"snapfeed/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoreDeps 会话共享的协作方
type StoreDeps struct {
	Content ContentSource
	Loader  RepliesLoader
	Voter   Voter
	Editor  EditPersister
	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.MetricsCollector
	IdleTTL time.Duration
}

// SessionStore 内存中的会话表，状态不持久化
type SessionStore struct {
	deps StoreDeps
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore(deps StoreDeps) *SessionStore {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = 30 * time.Minute
	}
	return &SessionStore{
		deps:     deps,
		log:      deps.Logger.Named("sessions"),
		sessions: make(map[string]*Session),
	}
}

// Now 当前时间，测试中可替换
func (st *SessionStore) Now() time.Time {
	return st.deps.Clock()
}

func (st *SessionStore) newSession(viewer string) *Session {
	now := st.deps.Clock()
	s := &Session{
		ID:         uuid.New().String(),
		Viewer:     viewer,
		CreatedAt:  now,
		lastAccess: now,
	}
	s.env = &Env{
		Viewer:        viewer,
		Loader:        st.deps.Loader,
		Voter:         st.deps.Voter,
		Editor:        st.deps.Editor,
		Conversations: s,
		Clock:         st.deps.Clock,
		Logger:        st.log.With(zap.String("session", s.ID)),
	}
	return s
}

func (st *SessionStore) register(s *Session) {
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	if st.deps.Metrics != nil {
		st.deps.Metrics.SessionOpened()
	}
	st.log.Debug("session opened", zap.String("session", s.ID), zap.String("viewer", s.Viewer))
}

// asRoot feed 的根节点都是顶层节点
func asRoot(d model.Discussion) model.Discussion {
	d = d.Clone()
	d.Depth = 0
	return d
}

// CreateWithNodes 用已有的节点数据创建会话
func (st *SessionStore) CreateWithNodes(viewer string, nodes []model.Discussion) *Session {
	s := st.newSession(viewer)
	for _, n := range nodes {
		s.roots = append(s.roots, NewNodeController(s.env, asRoot(n)))
	}
	st.register(s)
	return s
}

// Create 按 key 加载根节点并创建会话，加载失败的根被跳过
func (st *SessionStore) Create(ctx context.Context, viewer string, roots []model.Key) *Session {
	return st.CreateWithNodes(viewer, loadRoots(ctx, st.deps.Content, roots, st.log))
}

// CreateFeed 容器帖的直接回复作为 feed 的根节点
func (st *SessionStore) CreateFeed(ctx context.Context, viewer string, container model.Key) *Session {
	items := st.deps.Loader.LoadReplies(ctx, container.Author, container.Permlink)
	return st.CreateWithNodes(viewer, items)
}

// OpenConversation 对话会话：主帖作为 head，其直接回复作为 depth 1 的根，可就地展开
func (st *SessionStore) OpenConversation(ctx context.Context, viewer string, key model.Key) (*Session, error) {
	post, err := st.deps.Content.GetContent(ctx, key.Author, key.Permlink)
	if err != nil {
		return nil, fmt.Errorf("open conversation %s: %w", key, err)
	}

	s := st.newSession(viewer)
	s.head = NewNodeController(s.env, asRoot(post))
	for _, reply := range st.deps.Loader.LoadReplies(ctx, key.Author, key.Permlink) {
		reply = reply.Clone()
		reply.Depth = 1
		s.roots = append(s.roots, NewNodeController(s.env, reply))
	}
	st.register(s)
	return s, nil
}

// AddRoot 按 key 加载并追加根节点
func (st *SessionStore) AddRoot(ctx context.Context, s *Session, key model.Key) (*NodeController, error) {
	node, err := st.deps.Content.GetContent(ctx, key.Author, key.Permlink)
	if err != nil {
		return nil, fmt.Errorf("add root %s: %w", key, err)
	}
	return s.AddRoot(asRoot(node))
}

// Get 返回会话并刷新访问时间；viewer 不匹配时返回 ErrSessionForbidden
func (st *SessionStore) Get(id, viewer string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok || s.Closed() {
		return nil, ErrSessionNotFound
	}
	if s.Viewer != viewer {
		return nil, ErrSessionForbidden
	}
	s.touch(st.deps.Clock())
	return s, nil
}

// Close 关闭并移除会话
func (st *SessionStore) Close(id, viewer string) error {
	s, err := st.Get(id, viewer)
	if err != nil {
		return err
	}
	st.remove(s)
	return nil
}

func (st *SessionStore) remove(s *Session) {
	st.mu.Lock()
	_, ok := st.sessions[s.ID]
	delete(st.sessions, s.ID)
	st.mu.Unlock()
	if !ok {
		return
	}

	s.Close()
	if st.deps.Metrics != nil {
		st.deps.Metrics.SessionClosed()
	}
	st.log.Debug("session closed", zap.String("session", s.ID))
}

// Len 当前会话数
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep 关闭空闲超过 IdleTTL 的会话，返回关闭的数量
func (st *SessionStore) Sweep(now time.Time) int {
	st.mu.RLock()
	var idle []*Session
	for _, s := range st.sessions {
		if now.Sub(s.idleSince()) > st.deps.IdleTTL {
			idle = append(idle, s)
		}
	}
	st.mu.RUnlock()

	for _, s := range idle {
		st.remove(s)
	}
	if len(idle) > 0 {
		st.log.Info("idle sessions closed", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// StartSweeper 定期清理空闲会话，ctx 取消时退出
func (st *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.Sweep(st.deps.Clock())
			}
		}
	}()
}

// CloseAll 服务退出时卸载所有会话
func (st *SessionStore) CloseAll() {
	st.mu.RLock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.mu.RUnlock()
	for _, s := range all {
		st.remove(s)
	}
}
