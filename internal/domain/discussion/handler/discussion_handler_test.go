package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"snapfeed/internal/domain/discussion/model"
	"snapfeed/internal/domain/discussion/repository"
	"snapfeed/internal/domain/discussion/service"
	"snapfeed/internal/pkg/middleware"
	"snapfeed/pkg/response"
	"snapfeed/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret-0123456789abcdef"

var testNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

type stubContent map[model.Key]model.Discussion

func (s stubContent) GetContent(_ context.Context, author, permlink string) (model.Discussion, error) {
	d, ok := s[model.Key{Author: author, Permlink: permlink}]
	if !ok {
		return model.Discussion{}, repository.ErrNotFound
	}
	return d, nil
}

type stubLoader map[model.Key][]model.Discussion

func (s stubLoader) LoadReplies(_ context.Context, author, permlink string) []model.Discussion {
	return s[model.Key{Author: author, Permlink: permlink}]
}

type stubVoter struct {
	value decimal.Decimal
	err   error
}

func (s stubVoter) CastVote(context.Context, model.Discussion, string, int64) (decimal.Decimal, error) {
	return s.value, s.err
}

type stubEditor struct {
	err error
}

func (s stubEditor) SaveEdit(context.Context, model.Discussion, string) error {
	return s.err
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Retryable bool            `json:"retryable"`
}

type harness struct {
	router *gin.Engine
}

func newHarness(t *testing.T, voter stubVoter, editor stubEditor) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	post := model.Discussion{Author: "alice", Permlink: "post", Body: "hello", CreatedAt: testNow.Add(-time.Hour)}
	reply := model.Discussion{Author: "bob", Permlink: "re-post", ParentAuthor: "alice", ParentPermlink: "post", Body: "first", CreatedAt: testNow}
	nested := model.Discussion{Author: "carol", Permlink: "re-re-post", ParentAuthor: "bob", ParentPermlink: "re-post", Body: "nested", CreatedAt: testNow}

	store := service.NewSessionStore(service.StoreDeps{
		Content: stubContent{post.Key(): post, reply.Key(): reply},
		Loader: stubLoader{
			post.Key():  {reply},
			reply.Key(): {nested},
		},
		Voter:  voter,
		Editor: editor,
		Clock:  func() time.Time { return testNow },
	})

	h := NewDiscussionHandler(store)
	r := gin.New()
	g := r.Group("/sessions", middleware.OptionalAuth(testSecret))
	g.POST("", h.CreateSession)
	g.GET("/:id", h.GetSession)
	g.DELETE("/:id", h.CloseSession)
	g.POST("/:id/roots", h.AddRoot)
	n := g.Group("/:id/nodes/:author/:permlink")
	n.GET("", h.GetNode)
	n.POST("/toggle", h.ToggleReplies)
	n.POST("/replies", h.AppendReply)
	n.POST("/vote", h.Vote)
	n.POST("/edit", h.BeginEdit)
	n.PUT("/edit", h.UpdateDraft)
	n.POST("/edit/save", h.SaveEdit)
	n.GET("/payout", h.GetPayout)
	return &harness{router: r}
}

func token(t *testing.T, username string) string {
	t.Helper()
	tok, _, err := utils.GenerateToken(testSecret, username, utils.RoleViewer, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, viewer string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if viewer != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, viewer))
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (h *harness) conversation(t *testing.T, viewer string) service.SessionView {
	t.Helper()
	code, env := h.do(t, http.MethodPost, "/sessions", viewer, gin.H{
		"conversation": gin.H{"author": "alice", "permlink": "post"},
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	var view service.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func nodeView(t *testing.T, env envelope) service.NodeView {
	t.Helper()
	var v service.NodeView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestDiscussionHandler_CreateSession(t *testing.T) {
	h := newHarness(t, stubVoter{}, stubEditor{})

	t.Run("conversation", func(t *testing.T) {
		view := h.conversation(t, "")
		require.NotNil(t, view.Head)
		assert.Equal(t, 0, view.Head.Depth)
		require.Len(t, view.Roots, 1)
		assert.Equal(t, "bob", view.Roots[0].Author)
		assert.Equal(t, 1, view.Roots[0].Depth)
	})

	t.Run("feed", func(t *testing.T) {
		code, env := h.do(t, http.MethodPost, "/sessions", "", gin.H{
			"feed": gin.H{"author": "alice", "permlink": "post"},
		})
		require.Equal(t, http.StatusOK, code)
		var view service.SessionView
		require.NoError(t, json.Unmarshal(env.Data, &view))
		require.Len(t, view.Roots, 1)
		assert.Equal(t, 0, view.Roots[0].Depth)
	})

	t.Run("missing source", func(t *testing.T) {
		code, env := h.do(t, http.MethodPost, "/sessions", "", gin.H{})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, response.ErrInvalidParam, env.Code)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		code, env := h.do(t, http.MethodPost, "/sessions", "", gin.H{
			"conversation": gin.H{"author": "nobody", "permlink": "nothing"},
		})
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, response.ErrNodeNotFound, env.Code)
	})
}

func TestDiscussionHandler_SessionAccess(t *testing.T) {
	h := newHarness(t, stubVoter{}, stubEditor{})
	view := h.conversation(t, "dave")

	code, env := h.do(t, http.MethodGet, "/sessions/"+view.ID, "erin", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, response.ErrNoPermission, env.Code)

	code, env = h.do(t, http.MethodGet, "/sessions/does-not-exist", "dave", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, response.ErrSessionNotFound, env.Code)

	code, _ = h.do(t, http.MethodDelete, "/sessions/"+view.ID, "dave", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = h.do(t, http.MethodGet, "/sessions/"+view.ID, "dave", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDiscussionHandler_ToggleExpandsInPlace(t *testing.T) {
	h := newHarness(t, stubVoter{}, stubEditor{})
	view := h.conversation(t, "")

	code, env := h.do(t, http.MethodPost, "/sessions/"+view.ID+"/nodes/bob/re-post/toggle", "", nil)
	require.Equal(t, http.StatusOK, code)

	var after service.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &after))
	require.Len(t, after.Roots, 1)
	root := after.Roots[0]
	assert.Equal(t, "expanded", root.Expansion)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "carol", root.Children[0].Author)
	assert.Equal(t, 2, root.Children[0].Depth)

	code, env = h.do(t, http.MethodGet, "/sessions/"+view.ID+"/nodes/carol/re-re-post", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, nodeView(t, env).Depth)
}

func TestDiscussionHandler_ToggleHeadOpensConversation(t *testing.T) {
	h := newHarness(t, stubVoter{}, stubEditor{})
	view := h.conversation(t, "")

	code, env := h.do(t, http.MethodPost, "/sessions/"+view.ID+"/nodes/alice/post/toggle", "", nil)
	require.Equal(t, http.StatusOK, code)

	var after service.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &after))
	require.NotNil(t, after.Conversation)
	assert.Equal(t, "post", after.Conversation.Permlink)
	assert.Equal(t, "collapsed", after.Head.Expansion)
}

func TestDiscussionHandler_Vote(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		h := newHarness(t, stubVoter{}, stubEditor{})
		view := h.conversation(t, "")
		code, env := h.do(t, http.MethodPost, "/sessions/"+view.ID+"/nodes/bob/re-post/vote", "", gin.H{"weight": 10000})
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, response.ErrAuthFailed, env.Code)
	})

	t.Run("success then already voted", func(t *testing.T) {
		h := newHarness(t, stubVoter{value: decimal.RequireFromString("0.5")}, stubEditor{})
		view := h.conversation(t, "dave")
		path := "/sessions/" + view.ID + "/nodes/bob/re-post/vote"

		code, env := h.do(t, http.MethodPost, path, "dave", gin.H{"weight": 10000})
		require.Equal(t, http.StatusOK, code, env.Message)
		v := nodeView(t, env)
		assert.True(t, v.Voted)
		assert.Equal(t, "$0.50", v.RewardDisplay)

		code, env = h.do(t, http.MethodPost, path, "dave", gin.H{"weight": 10000})
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, response.ErrAlreadyVoted, env.Code)
	})

	t.Run("invalid weight", func(t *testing.T) {
		h := newHarness(t, stubVoter{}, stubEditor{})
		view := h.conversation(t, "dave")
		code, env := h.do(t, http.MethodPost, "/sessions/"+view.ID+"/nodes/bob/re-post/vote", "dave", gin.H{"weight": 20000})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, response.ErrInvalidParam, env.Code)
	})

	t.Run("upstream failure is retryable", func(t *testing.T) {
		h := newHarness(t, stubVoter{err: errors.New("signer down")}, stubEditor{})
		view := h.conversation(t, "dave")
		path := "/sessions/" + view.ID + "/nodes/bob/re-post"

		code, env := h.do(t, http.MethodPost, path+"/vote", "dave", gin.H{"weight": 10000})
		assert.Equal(t, http.StatusBadGateway, code)
		assert.Equal(t, response.ErrVoteFailed, env.Code)
		assert.True(t, env.Retryable)

		_, env = h.do(t, http.MethodGet, path, "dave", nil)
		assert.False(t, nodeView(t, env).Voted)
	})
}

func TestDiscussionHandler_Edit(t *testing.T) {
	t.Run("author saves", func(t *testing.T) {
		h := newHarness(t, stubVoter{}, stubEditor{})
		view := h.conversation(t, "bob")
		path := "/sessions/" + view.ID + "/nodes/bob/re-post/edit"

		code, env := h.do(t, http.MethodPost, path, "bob", nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		assert.Equal(t, "first", nodeView(t, env).Draft)

		code, _ = h.do(t, http.MethodPut, path, "bob", gin.H{"body": "edited"})
		require.Equal(t, http.StatusOK, code)

		code, env = h.do(t, http.MethodPost, path+"/save", "bob", nil)
		require.Equal(t, http.StatusOK, code)
		v := nodeView(t, env)
		assert.Equal(t, "edited", v.Body)
		assert.Equal(t, "viewing", v.Edit)
	})

	t.Run("non author", func(t *testing.T) {
		h := newHarness(t, stubVoter{}, stubEditor{})
		view := h.conversation(t, "dave")
		code, env := h.do(t, http.MethodPost, "/sessions/"+view.ID+"/nodes/bob/re-post/edit", "dave", nil)
		assert.Equal(t, http.StatusForbidden, code)
		assert.Equal(t, response.ErrNotAuthor, env.Code)
	})

	t.Run("save failure keeps draft", func(t *testing.T) {
		h := newHarness(t, stubVoter{}, stubEditor{err: errors.New("rejected")})
		view := h.conversation(t, "bob")
		path := "/sessions/" + view.ID + "/nodes/bob/re-post/edit"

		h.do(t, http.MethodPost, path, "bob", nil)
		h.do(t, http.MethodPut, path, "bob", gin.H{"body": "edited"})
		code, env := h.do(t, http.MethodPost, path+"/save", "bob", nil)
		assert.Equal(t, http.StatusBadGateway, code)
		assert.Equal(t, response.ErrEditFailed, env.Code)

		_, env = h.do(t, http.MethodGet, "/sessions/"+view.ID+"/nodes/bob/re-post", "bob", nil)
		v := nodeView(t, env)
		assert.Equal(t, "editing", v.Edit)
		assert.Equal(t, "edited", v.Draft)
		assert.Equal(t, "first", v.Body)
	})
}

func TestDiscussionHandler_AppendReply(t *testing.T) {
	h := newHarness(t, stubVoter{}, stubEditor{})
	view := h.conversation(t, "dave")
	path := "/sessions/" + view.ID + "/nodes/bob/re-post"

	h.do(t, http.MethodPost, path+"/toggle", "dave", nil)

	code, env := h.do(t, http.MethodPost, path+"/replies", "dave", gin.H{"author": "dave", "permlink": "re-bob", "body": "me too"})
	require.Equal(t, http.StatusOK, code, env.Message)
	v := nodeView(t, env)
	require.Len(t, v.Children, 2)
	assert.Equal(t, "dave", v.Children[1].Author)
	assert.Equal(t, 2, v.Children[1].Depth)
	assert.True(t, testNow.Equal(v.Children[1].CreatedAt), "missing createdAt defaults to the clock")

	posted := testNow.Add(-30 * time.Second)
	code, env = h.do(t, http.MethodPost, path+"/replies", "dave", gin.H{"author": "dave", "permlink": "re-bob-2", "createdAt": posted.Format(time.RFC3339)})
	require.Equal(t, http.StatusOK, code, env.Message)
	v = nodeView(t, env)
	require.Len(t, v.Children, 3)
	assert.True(t, posted.Equal(v.Children[2].CreatedAt))

	code, env = h.do(t, http.MethodPost, path+"/replies", "dave", gin.H{"author": "dave", "permlink": "re-bob-3", "createdAt": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.ErrInvalidParam, env.Code)

	code, env = h.do(t, http.MethodPost, path+"/replies", "dave", gin.H{"author": "mallory", "permlink": "spoof"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, response.ErrNoPermission, env.Code)
}

func TestDiscussionHandler_Payout(t *testing.T) {
	h := newHarness(t, stubVoter{}, stubEditor{})
	view := h.conversation(t, "")

	code, env := h.do(t, http.MethodGet, "/sessions/"+view.ID+"/nodes/bob/re-post/payout", "", nil)
	require.Equal(t, http.StatusOK, code)

	var p PayoutView
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.True(t, p.Pending)
	assert.Equal(t, 7, p.DaysRemaining)
	assert.Equal(t, "$0.00", p.RewardDisplay)
}
