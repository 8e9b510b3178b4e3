package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snapfeed/internal/domain/discussion/content"
	"snapfeed/internal/domain/discussion/ledger"
	"snapfeed/internal/domain/discussion/model"
	"snapfeed/internal/domain/discussion/payout"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExpansionState 回复区展开状态
type ExpansionState int

const (
	Collapsed ExpansionState = iota
	LoadingChildren
	Expanded
)

func (s ExpansionState) String() string {
	switch s {
	case LoadingChildren:
		return "loading"
	case Expanded:
		return "expanded"
	default:
		return "collapsed"
	}
}

// EditState 编辑状态
type EditState int

const (
	Viewing EditState = iota
	Editing
	Saving
)

func (s EditState) String() string {
	switch s {
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	default:
		return "viewing"
	}
}

const maxVoteWeight = 10000

// NodeController 一个讨论节点的本地状态，子节点由它独占持有
// mu 不会在调用协作方（loader、voter、editor、opener）期间持有
type NodeController struct {
	env *Env

	mu      sync.Mutex
	node    model.Discussion
	mounted bool

	expansion      ExpansionState
	childrenLoaded bool
	serverReplies  []model.Discussion
	localReplies   []model.Discussion // 本地新发的回复，任何刷新都保留
	children       []*NodeController  // 仅在 Expanded 时存在
	composerOpen   bool

	edit  EditState
	draft string

	voted        bool
	voteInFlight bool
	rewardTotal  decimal.Decimal

	// rewards 子节点投票后的收益，重新展开时恢复
	rewards  map[model.Key]decimal.Decimal
	// onCommit 投票或保存成功后把节点回写到父节点持有的回复记录
	onCommit func(node model.Discussion, reward decimal.Decimal)
}

// NewNodeController 创建一个已挂载的控制器
func NewNodeController(env *Env, node model.Discussion) *NodeController {
	node = node.Clone()
	return &NodeController{
		env:         env,
		node:        node,
		mounted:     true,
		voted:       ledger.HasVoted(node.Votes, env.Viewer),
		rewardTotal: payout.InitialReward(node),
	}
}

// Key 节点标识
func (c *NodeController) Key() model.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.node.Key()
}

// Node 返回节点数据的副本
func (c *NodeController) Node() model.Discussion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.node.Clone()
}

func (c *NodeController) Expansion() ExpansionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expansion
}

func (c *NodeController) EditState() EditState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.edit
}

func (c *NodeController) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *NodeController) Voted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voted
}

func (c *NodeController) RewardTotal() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rewardTotal
}

func (c *NodeController) ComposerOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composerOpen
}

func (c *NodeController) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted
}

// Children 当前挂载的子控制器快照
func (c *NodeController) Children() []*NodeController {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*NodeController, len(c.children))
	copy(out, c.children)
	return out
}

// Replies 服务端回复在前，本地回复在后
func (c *NodeController) Replies() []model.Discussion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergedRepliesLocked()
}

// ToggleReplies "查看回复"
// depth 0 交给对话视图，自身状态不变；depth > 0 在本地展开或收起
func (c *NodeController) ToggleReplies(ctx context.Context) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrUnmounted
	}

	if c.node.Depth == 0 {
		node := c.node.Clone()
		c.mu.Unlock()
		if c.env.Conversations != nil {
			c.env.Conversations.OpenConversation(node)
		}
		return nil
	}

	switch c.expansion {
	case LoadingChildren:
		c.mu.Unlock()
		return nil
	case Expanded:
		c.collapseLocked()
		c.mu.Unlock()
		return nil
	}

	if c.childrenLoaded {
		c.expandLocked()
		c.mu.Unlock()
		return nil
	}

	c.mu.Unlock()
	return c.load(ctx, false)
}

// Reload 重新拉取服务端回复，本地回复保留；加载中时为空操作
func (c *NodeController) Reload(ctx context.Context) error {
	return c.load(ctx, true)
}

func (c *NodeController) load(ctx context.Context, reload bool) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrUnmounted
	}
	if c.expansion == LoadingChildren {
		c.mu.Unlock()
		return nil
	}
	if !reload && c.expansion != Collapsed {
		c.mu.Unlock()
		return nil
	}
	c.unmountChildrenLocked()
	c.expansion = LoadingChildren
	c.composerOpen = true
	key := c.node.Key()
	c.mu.Unlock()

	replies := c.env.Loader.LoadReplies(ctx, key.Author, key.Permlink)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		c.env.log().Debug("discarding replies for unmounted node",
			zap.String("author", key.Author),
			zap.String("permlink", key.Permlink),
		)
		return nil
	}
	// 只替换服务端部分，等待期间追加的本地回复不受影响
	c.serverReplies = c.asChildrenLocked(replies)
	for _, r := range c.serverReplies {
		delete(c.rewards, r.Key())
	}
	c.childrenLoaded = true
	c.expandLocked()
	return nil
}

// CloseComposer 关闭回复输入框，回复区随之收起；加载中时为空操作
func (c *NodeController) CloseComposer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expansion == Expanded {
		c.collapseLocked()
	}
}

// AppendLocalReply 把刚发出的回复追加到本地列表末尾，不触发刷新
func (c *NodeController) AppendLocalReply(reply model.Discussion) (model.Discussion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return model.Discussion{}, ErrUnmounted
	}

	child := c.asChildLocked(reply)
	if child.ParentAuthor == "" && child.ParentPermlink == "" {
		child.ParentAuthor = c.node.Author
		child.ParentPermlink = c.node.Permlink
	}
	if child.CreatedAt.IsZero() {
		child.CreatedAt = c.env.now()
	}
	c.localReplies = append(c.localReplies, child)
	if c.expansion == Expanded {
		c.children = append(c.children, c.newChildLocked(child))
	}
	return child.Clone(), nil
}

// CastVote 投票成功后才修改本地状态：标记已投、追加投票记录、累加估算收益
func (c *NodeController) CastVote(ctx context.Context, weight int64) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrUnmounted
	}
	viewer := c.env.Viewer
	switch {
	case viewer == "":
		c.mu.Unlock()
		return ErrAnonymous
	case weight == 0 || weight > maxVoteWeight || weight < -maxVoteWeight:
		c.mu.Unlock()
		return ErrInvalidWeight
	case c.voted:
		c.mu.Unlock()
		return ErrAlreadyVoted
	case c.voteInFlight:
		c.mu.Unlock()
		return ErrVoteInFlight
	}
	c.voteInFlight = true
	node := c.node.Clone()
	c.mu.Unlock()

	estimate, err := c.env.Voter.CastVote(ctx, node, viewer, weight)

	c.mu.Lock()
	c.voteInFlight = false
	if err != nil {
		c.mu.Unlock()
		c.env.log().Warn("vote failed",
			zap.String("author", node.Author),
			zap.String("permlink", node.Permlink),
			zap.String("voter", viewer),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrVoteFailed, err)
	}
	committed := c.node.Clone()
	committed.Votes = append(committed.Votes, model.VoteRecord{Voter: viewer, Weight: weight})
	reward := c.rewardTotal
	if !estimate.IsZero() {
		reward = payout.AddReward(reward, estimate)
	}
	// 已卸载的节点不再修改自身状态，但链上的投票仍要记到父节点的记录里
	if c.mounted {
		c.voted = true
		c.node = committed.Clone()
		c.rewardTotal = reward
	}
	commit := c.onCommit
	c.mu.Unlock()

	if commit != nil {
		commit(committed, reward)
	}
	return nil
}

// BeginEdit 只有作者本人可以进入编辑
func (c *NodeController) BeginEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return ErrUnmounted
	}
	if c.env.Viewer == "" || c.env.Viewer != c.node.Author {
		return ErrNotAuthor
	}
	switch c.edit {
	case Editing:
		return nil
	case Saving:
		return ErrInvalidState
	}
	c.edit = Editing
	c.draft = c.node.Body
	return nil
}

func (c *NodeController) UpdateDraft(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.edit != Editing {
		return ErrInvalidState
	}
	c.draft = text
	return nil
}

// CancelEdit 丢弃草稿；保存中不能取消
func (c *NodeController) CancelEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.edit {
	case Viewing:
		return nil
	case Saving:
		return ErrInvalidState
	}
	c.edit = Viewing
	c.draft = ""
	return nil
}

// SaveEdit 成功时替换正文并退出编辑；失败时回到 Editing，草稿保留
func (c *NodeController) SaveEdit(ctx context.Context) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrUnmounted
	}
	if c.edit != Editing {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.edit = Saving
	draft := c.draft
	node := c.node.Clone()
	c.mu.Unlock()

	err := c.env.Editor.SaveEdit(ctx, node, draft)

	c.mu.Lock()
	if err != nil {
		if c.mounted {
			c.edit = Editing
		}
		c.mu.Unlock()
		c.env.log().Warn("save edit failed",
			zap.String("author", node.Author),
			zap.String("permlink", node.Permlink),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrEditFailed, err)
	}
	committed := c.node.Clone()
	committed.Body = draft
	if c.mounted {
		c.node = committed.Clone()
		c.edit = Viewing
		c.draft = ""
	}
	reward := c.rewardTotal
	commit := c.onCommit
	c.mu.Unlock()

	if commit != nil {
		commit(committed, reward)
	}
	return nil
}

// Find 在以自身为根的已挂载子树中深度优先查找
func (c *NodeController) Find(key model.Key) *NodeController {
	if c.Key() == key {
		return c
	}
	for _, child := range c.Children() {
		if found := child.Find(key); found != nil {
			return found
		}
	}
	return nil
}

// Unmount 递归卸载，之后返回的异步结果被丢弃
func (c *NodeController) Unmount() {
	c.mu.Lock()
	c.mounted = false
	children := c.children
	c.children = nil
	c.mu.Unlock()

	for _, child := range children {
		child.Unmount()
	}
}

// NodeView 某一时刻的只读快照
type NodeView struct {
	Author         string             `json:"author"`
	Permlink       string             `json:"permlink"`
	ParentAuthor   string             `json:"parentAuthor,omitempty"`
	ParentPermlink string             `json:"parentPermlink,omitempty"`
	Title          string             `json:"title,omitempty"`
	Body           string             `json:"body"`
	Text           string             `json:"text"`
	Media          []content.Media    `json:"media"`
	Depth          int                `json:"depth"`
	CreatedAt      time.Time          `json:"createdAt"`
	ChildCount     int                `json:"childCount"`
	Votes          []model.VoteRecord `json:"votes"`
	VoteSummary    ledger.Summary     `json:"voteSummary"`
	Voted          bool               `json:"voted"`
	VoteInFlight   bool               `json:"voteInFlight"`
	Payout         payout.Breakdown   `json:"payout"`
	RewardTotal    decimal.Decimal    `json:"rewardTotal"`
	RewardDisplay  string             `json:"rewardDisplay"`
	CanEdit        bool               `json:"canEdit"`
	Edit           string             `json:"edit"`
	Draft          string             `json:"draft,omitempty"`
	Expansion      string             `json:"expansion"`
	ComposerOpen   bool               `json:"composerOpen"`
	LoadedReplies  int                `json:"loadedReplies"`
	Children       []NodeView         `json:"children,omitempty"`
}

// View 生成快照，收益数据按 now 重新计算
func (c *NodeController) View(now time.Time) NodeView {
	c.mu.Lock()
	node := c.node.Clone()
	v := NodeView{
		Voted:         c.voted,
		VoteInFlight:  c.voteInFlight,
		RewardTotal:   c.rewardTotal,
		CanEdit:       c.env.Viewer != "" && c.env.Viewer == node.Author,
		Edit:          c.edit.String(),
		Expansion:     c.expansion.String(),
		ComposerOpen:  c.composerOpen,
		LoadedReplies: len(c.serverReplies) + len(c.localReplies),
	}
	if c.edit != Viewing {
		v.Draft = c.draft
	}
	children := make([]*NodeController, len(c.children))
	copy(children, c.children)
	c.mu.Unlock()

	text, media := content.Split(node.Body)
	v.Author = node.Author
	v.Permlink = node.Permlink
	v.ParentAuthor = node.ParentAuthor
	v.ParentPermlink = node.ParentPermlink
	v.Title = node.Title
	v.Body = node.Body
	v.Text = text
	v.Media = content.MediaItems(media)
	v.Depth = node.Depth
	v.CreatedAt = node.CreatedAt
	v.ChildCount = node.ChildCount
	v.Votes = ledger.Deduplicate(node.Votes)
	v.VoteSummary = ledger.Summarize(node.Votes)
	v.Payout = payout.Estimate(node, now)
	v.RewardDisplay = payout.FormatUSD(v.RewardTotal)

	for _, child := range children {
		v.Children = append(v.Children, child.View(now))
	}
	return v
}

// asChildLocked 子节点深度总是父节点深度 + 1
func (c *NodeController) asChildLocked(reply model.Discussion) model.Discussion {
	child := reply.Clone()
	child.Depth = c.node.Depth + 1
	return child
}

func (c *NodeController) asChildrenLocked(replies []model.Discussion) []model.Discussion {
	out := make([]model.Discussion, 0, len(replies))
	for _, r := range replies {
		out = append(out, c.asChildLocked(r))
	}
	return out
}

func (c *NodeController) mergedRepliesLocked() []model.Discussion {
	out := make([]model.Discussion, 0, len(c.serverReplies)+len(c.localReplies))
	for _, r := range c.serverReplies {
		out = append(out, r.Clone())
	}
	for _, r := range c.localReplies {
		out = append(out, r.Clone())
	}
	return out
}

// newChildLocked 子控制器提交的结果回写到 c 持有的回复记录
func (c *NodeController) newChildLocked(reply model.Discussion) *NodeController {
	child := NewNodeController(c.env, reply)
	if reward, ok := c.rewards[reply.Key()]; ok {
		child.rewardTotal = reward
	}
	child.onCommit = c.commitChild
	return child
}

// commitChild 服务端列表和本地列表里同一个回复都要更新
func (c *NodeController) commitChild(node model.Discussion, reward decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := node.Key()
	for _, list := range [][]model.Discussion{c.serverReplies, c.localReplies} {
		for i := range list {
			if list[i].Key() == key {
				list[i] = node.Clone()
			}
		}
	}
	if c.rewards == nil {
		c.rewards = make(map[model.Key]decimal.Decimal)
	}
	c.rewards[key] = reward
}

func (c *NodeController) expandLocked() {
	c.unmountChildrenLocked()
	for _, reply := range c.mergedRepliesLocked() {
		c.children = append(c.children, c.newChildLocked(reply))
	}
	c.expansion = Expanded
	c.composerOpen = true
}

// collapseLocked 子控制器被销毁，回复数据保留
func (c *NodeController) collapseLocked() {
	c.unmountChildrenLocked()
	c.expansion = Collapsed
	c.composerOpen = false
}

func (c *NodeController) unmountChildrenLocked() {
	for _, child := range c.children {
		child.Unmount()
	}
	c.children = nil
}
