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

	"snapfeed/internal/domain/discussion/model"
)

// ErrBroadcastRejected 签名中继拒绝了操作
var ErrBroadcastRejected = errors.New("broadcast rejected")

// VoteOperation Hive vote 操作
type VoteOperation struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int64  `json:"weight"`
}

// CommentOperation Hive comment 操作，编辑即用相同 author/permlink 重新发布
type CommentOperation struct {
	ParentAuthor   string `json:"parent_author"`
	ParentPermlink string `json:"parent_permlink"`
	Author         string `json:"author"`
	Permlink       string `json:"permlink"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	JSONMetadata   string `json:"json_metadata"`
}

type broadcastRequest struct {
	Account    string          `json:"account"`
	Operations [][]interface{} `json:"operations"`
}

type broadcastResponse struct {
	Success bool   `json:"success"`
	TxID    string `json:"txId"`
	Error   string `json:"error"`
}

// SignerClient 把需要签名的操作发给签名中继，由中继代表已授权的账户签名并广播
type SignerClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewSignerClient(baseURL, token string, client *http.Client) *SignerClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &SignerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// Vote 广播投票，返回交易 id
func (s *SignerClient) Vote(ctx context.Context, voter string, target model.Key, weight int64) (string, error) {
	op := VoteOperation{Voter: voter, Author: target.Author, Permlink: target.Permlink, Weight: weight}
	return s.broadcast(ctx, voter, "vote", op)
}

// SaveEdit 以原 author/permlink 重新发布 comment 操作
func (s *SignerClient) SaveEdit(ctx context.Context, node model.Discussion, body string) error {
	op := CommentOperation{
		ParentAuthor:   node.ParentAuthor,
		ParentPermlink: node.ParentPermlink,
		Author:         node.Author,
		Permlink:       node.Permlink,
		Title:          node.Title,
		Body:           body,
		JSONMetadata:   "{}",
	}
	_, err := s.broadcast(ctx, node.Author, "comment", op)
	return err
}

func (s *SignerClient) broadcast(ctx context.Context, account, opName string, op interface{}) (string, error) {
	payload, err := json.Marshal(broadcastRequest{
		Account:    account,
		Operations: [][]interface{}{{opName, op}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/broadcast", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast %s: %w", opName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("broadcast %s: read response: %w", opName, err)
	}

	var out broadcastResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 300 || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("broadcast %s (HTTP %d): %s: %w", opName, resp.StatusCode, msg, ErrBroadcastRejected)
	}
	return out.TxID, nil
}
