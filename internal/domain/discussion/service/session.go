package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snapfeed/internal/domain/discussion/model"

	"go.uber.org/zap"
)

// Session 一个正在展示的 feed：持有根节点控制器与观看者上下文，关闭时卸载整棵树
type Session struct {
	ID        string
	Viewer    string
	CreatedAt time.Time

	env *Env

	mu           sync.Mutex
	head         *NodeController // 对话会话的主帖，feed 会话为 nil
	roots        []*NodeController
	conversation *model.Discussion // 最近一次由顶层节点请求打开的对话
	lastAccess   time.Time
	closed       bool
}

// OpenConversation 记录顶层节点请求打开的对话，由前端据此创建对话会话
func (s *Session) OpenConversation(node model.Discussion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := node.Clone()
	s.conversation = &n
}

// PendingConversation 最近一次请求打开的对话
func (s *Session) PendingConversation() (model.Discussion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation == nil {
		return model.Discussion{}, false
	}
	return s.conversation.Clone(), true
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Roots 根控制器快照
func (s *Session) Roots() []*NodeController {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*NodeController, len(s.roots))
	copy(out, s.roots)
	return out
}

// AddRoot 追加一个根节点；同 key 的根已存在时返回已有的控制器
func (s *Session) AddRoot(node model.Discussion) (*NodeController, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}
	for _, r := range s.roots {
		if r.Key() == node.Key() {
			return r, nil
		}
	}
	c := NewNodeController(s.env, node)
	s.roots = append(s.roots, c)
	return c, nil
}

// Node 在整棵已挂载的树中查找节点
func (s *Session) Node(key model.Key) (*NodeController, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	candidates := make([]*NodeController, 0, len(s.roots)+1)
	if s.head != nil {
		candidates = append(candidates, s.head)
	}
	candidates = append(candidates, s.roots...)
	s.mu.Unlock()

	for _, c := range candidates {
		if found := c.Find(key); found != nil {
			return found, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", key, ErrNodeNotFound)
}

// AppendLocalReply 回复输入框发布成功后调用，把新回复挂到父节点下
func (s *Session) AppendLocalReply(parent model.Key, reply model.Discussion) (model.Discussion, error) {
	node, err := s.Node(parent)
	if err != nil {
		return model.Discussion{}, err
	}
	return node.AppendLocalReply(reply)
}

// SessionView 会话快照
type SessionView struct {
	ID           string            `json:"id"`
	Viewer       string            `json:"viewer,omitempty"`
	Head         *NodeView         `json:"head,omitempty"`
	Roots        []NodeView        `json:"roots"`
	Conversation *model.Discussion `json:"conversation,omitempty"`
}

func (s *Session) View(now time.Time) SessionView {
	s.mu.Lock()
	head := s.head
	roots := make([]*NodeController, len(s.roots))
	copy(roots, s.roots)
	var conv *model.Discussion
	if s.conversation != nil {
		c := s.conversation.Clone()
		conv = &c
	}
	s.mu.Unlock()

	v := SessionView{ID: s.ID, Viewer: s.Viewer, Roots: make([]NodeView, 0, len(roots)), Conversation: conv}
	if head != nil {
		hv := head.View(now)
		v.Head = &hv
	}
	for _, r := range roots {
		v.Roots = append(v.Roots, r.View(now))
	}
	return v
}

// Close 卸载所有控制器，重复调用无副作用
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	head := s.head
	roots := s.roots
	s.head = nil
	s.roots = nil
	s.mu.Unlock()

	if head != nil {
		head.Unmount()
	}
	for _, r := range roots {
		r.Unmount()
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// loadRoots 逐个加载根节点，单个失败只记录日志
func loadRoots(ctx context.Context, source ContentSource, keys []model.Key, log *zap.Logger) []model.Discussion {
	out := make([]model.Discussion, 0, len(keys))
	for _, k := range keys {
		node, err := source.GetContent(ctx, k.Author, k.Permlink)
		if err != nil {
			log.Warn("load root failed",
				zap.String("author", k.Author),
				zap.String("permlink", k.Permlink),
				zap.Error(err),
			)
			continue
		}
		out = append(out, node)
	}
	return out
}
