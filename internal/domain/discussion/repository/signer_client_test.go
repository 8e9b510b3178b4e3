package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"snapfeed/internal/domain/discussion/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerClient_Vote(t *testing.T) {
	var got broadcastRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/broadcast", r.URL.Path)
		assert.Equal(t, "Bearer relay-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success": true, "txId": "abc123"}`))
	}))
	defer srv.Close()

	s := NewSignerClient(srv.URL+"/", "relay-token", srv.Client())
	tx, err := s.Vote(context.Background(), "carol", model.Key{Author: "bob", Permlink: "re-1"}, 5000)
	require.NoError(t, err)
	assert.Equal(t, "abc123", tx)

	assert.Equal(t, "carol", got.Account)
	require.Len(t, got.Operations, 1)
	assert.Equal(t, "vote", got.Operations[0][0])
	op := got.Operations[0][1].(map[string]interface{})
	assert.Equal(t, "bob", op["author"])
	assert.Equal(t, float64(5000), op["weight"])
}

func TestSignerClient_SaveEdit(t *testing.T) {
	var got broadcastRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	node := model.Discussion{Author: "bob", Permlink: "re-1", ParentAuthor: "alice", ParentPermlink: "root"}
	require.NoError(t, NewSignerClient(srv.URL, "", srv.Client()).SaveEdit(context.Background(), node, "new body"))

	assert.Equal(t, "comment", got.Operations[0][0])
	op := got.Operations[0][1].(map[string]interface{})
	assert.Equal(t, "new body", op["body"])
	assert.Equal(t, "alice", op["parent_author"])
	assert.Equal(t, "re-1", op["permlink"])
}

func TestSignerClient_Rejected(t *testing.T) {
	t.Run("success false", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success": false, "error": "missing posting authority"}`))
		}))
		defer srv.Close()

		_, err := NewSignerClient(srv.URL, "", srv.Client()).Vote(context.Background(), "a", model.Key{Author: "b", Permlink: "c"}, 100)
		assert.ErrorIs(t, err, ErrBroadcastRejected)
		assert.Contains(t, err.Error(), "missing posting authority")
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		err := NewSignerClient(srv.URL, "", srv.Client()).SaveEdit(context.Background(), model.Discussion{Author: "a"}, "x")
		assert.ErrorIs(t, err, ErrBroadcastRejected)
	})
}
