package main

import (
	"context"
	"fmt"
	"time"

	"snapfeed/internal/domain/discussion/ledger"
	"snapfeed/internal/domain/discussion/model"
	"snapfeed/internal/domain/discussion/payout"
	"snapfeed/internal/domain/discussion/service"

	"github.com/xlab/treeprint"
)

// noConversation 终端里没有对话视图，顶层节点的打开请求直接忽略
type noConversation struct{}

func (noConversation) OpenConversation(model.Discussion) {}

func label(d model.Discussion, now time.Time) string {
	s := ledger.Summarize(d.Votes)
	b := payout.Estimate(d, now)
	amount := payout.InitialReward(d)
	state := "paid"
	if b.Pending {
		state = fmt.Sprintf("%dd left", b.DaysRemaining)
	}
	return fmt.Sprintf("%s  [%d votes, %s, %s]", d.Key(), s.Voters, payout.FormatUSD(amount), state)
}

// BuildTree 像界面一样逐层展开：主帖的直接回复作为第一层，每个节点通过控制器加载下一层
func BuildTree(ctx context.Context, loader service.RepliesLoader, root model.Discussion, maxDepth int, now time.Time) treeprint.Tree {
	tree := treeprint.NewWithRoot(label(root, now))
	env := &service.Env{
		Loader:        loader,
		Conversations: noConversation{},
		Clock:         func() time.Time { return now },
	}

	for _, reply := range loader.LoadReplies(ctx, root.Author, root.Permlink) {
		reply.Depth = 1
		c := service.NewNodeController(env, reply)
		expand(ctx, c, tree, maxDepth, now)
	}
	return tree
}

func expand(ctx context.Context, c *service.NodeController, parent treeprint.Tree, maxDepth int, now time.Time) {
	node := c.Node()
	if node.Depth >= maxDepth || node.ChildCount == 0 {
		parent.AddNode(label(node, now))
		return
	}

	branch := parent.AddBranch(label(node, now))
	if err := c.ToggleReplies(ctx); err != nil {
		return
	}
	for _, child := range c.Children() {
		expand(ctx, child, branch, maxDepth, now)
	}
}
