package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"snapfeed/internal/domain/discussion/model"
)

// ErrNotFound 节点或账户不存在
var ErrNotFound = errors.New("not found")

// RPCError JSON-RPC 返回的错误对象
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Error 一次调用失败：HTTP 状态码 + 方法名 + 底层错误
type Error struct {
	StatusCode int
	Method     string
	Wrapped    error
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("hive %s: HTTP %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("hive %s: HTTP %d: %s", e.Method, e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// HiveClient Hive API 节点的 JSON-RPC 客户端
type HiveClient struct {
	endpoint string
	client   *http.Client
	nextID   atomic.Int64
}

// NewHiveClient client 一般由 httpclient.RobustHTTPClient 构造，超时与重试策略由它负责
func NewHiveClient(endpoint string, client *http.Client) *HiveClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HiveClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

// Call 执行一次 JSON-RPC 调用，result 为 nil 时丢弃返回值
func (c *HiveClient) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "snapfeed")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("hive %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var wrapped error
		if len(msg) > 0 {
			wrapped = errors.New(strings.TrimSpace(string(msg)))
		}
		return &Error{StatusCode: resp.StatusCode, Method: method, Wrapped: wrapped}
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Method: method, Wrapped: fmt.Errorf("decode response: %w", err)}
	}
	if out.Error != nil {
		return &Error{StatusCode: resp.StatusCode, Method: method, Wrapped: out.Error}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return &Error{StatusCode: resp.StatusCode, Method: method, Wrapped: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// FetchReplies flat=false 返回直接回复；flat=true 返回整个讨论（不含根节点），按深度优先顺序展开
func (c *HiveClient) FetchReplies(ctx context.Context, author, permlink string, flat bool) ([]model.Discussion, error) {
	if !flat {
		var posts []hivePost
		if err := c.Call(ctx, "condenser_api.get_content_replies", []string{author, permlink}, &posts); err != nil {
			return nil, err
		}
		out := make([]model.Discussion, 0, len(posts))
		for _, p := range posts {
			out = append(out, p.toDiscussion())
		}
		return out, nil
	}

	var thread map[string]hivePost
	params := map[string]string{"author": author, "permlink": permlink}
	if err := c.Call(ctx, "bridge.get_discussion", params, &thread); err != nil {
		return nil, err
	}
	return flattenDiscussion(thread, author+"/"+permlink), nil
}

func flattenDiscussion(thread map[string]hivePost, rootID string) []model.Discussion {
	out := make([]model.Discussion, 0, len(thread))
	visited := map[string]bool{rootID: true}

	var walk func(id string)
	walk = func(id string) {
		for _, childID := range thread[id].Replies {
			if visited[childID] {
				continue
			}
			child, ok := thread[childID]
			if !ok {
				continue
			}
			visited[childID] = true
			out = append(out, child.toDiscussion())
			walk(childID)
		}
	}
	walk(rootID)
	return out
}

// GetContent 获取单个节点
func (c *HiveClient) GetContent(ctx context.Context, author, permlink string) (model.Discussion, error) {
	var post hivePost
	if err := c.Call(ctx, "condenser_api.get_content", []string{author, permlink}, &post); err != nil {
		return model.Discussion{}, err
	}
	// 不存在时节点返回所有字段为空的对象
	if post.Author == "" {
		return model.Discussion{}, fmt.Errorf("content @%s/%s: %w", author, permlink, ErrNotFound)
	}
	return post.toDiscussion(), nil
}

// GetAccount 获取账户的 vesting 数据
func (c *HiveClient) GetAccount(ctx context.Context, name string) (model.Account, error) {
	var accounts []hiveAccount
	if err := c.Call(ctx, "condenser_api.get_accounts", [][]string{{name}}, &accounts); err != nil {
		return model.Account{}, err
	}
	if len(accounts) == 0 {
		return model.Account{}, fmt.Errorf("account %s: %w", name, ErrNotFound)
	}
	return accounts[0].toAccount(), nil
}

// GetRewardFund 获取 post 奖励池
func (c *HiveClient) GetRewardFund(ctx context.Context) (model.RewardFund, error) {
	var fund hiveRewardFund
	if err := c.Call(ctx, "condenser_api.get_reward_fund", []string{"post"}, &fund); err != nil {
		return model.RewardFund{}, err
	}
	return fund.toRewardFund(), nil
}

// GetMedianPrice 获取 HBD/HIVE 中位价
func (c *HiveClient) GetMedianPrice(ctx context.Context) (model.Price, error) {
	var price hivePrice
	if err := c.Call(ctx, "condenser_api.get_current_median_history_price", []interface{}{}, &price); err != nil {
		return model.Price{}, err
	}
	return price.toPrice(), nil
}
