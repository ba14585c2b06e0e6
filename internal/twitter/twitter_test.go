package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)
	return NewWithHTTPClient("test", s.Client(), s.URL)
}

func TestPublish(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["text"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"1790","text":"hello"}}`)
	})

	id, err := c.Publish(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "1790", id)
}

func TestPublish_Duplicate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content.","status":403}`)
	})

	_, err := c.Publish(context.Background(), "hello")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, err.Error(), "duplicate content")
	assert.False(t, apiErr.Forbidden())
}

func TestClientForbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"title":"Client Forbidden","detail":"This request must be made using an approved developer account","type":"https://api.twitter.com/2/problems/client-forbidden"}`)
	})

	_, err := c.Me(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Forbidden())
}

func TestRateLimit(t *testing.T) {
	reset := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("x-rate-limit-reset", "1714564800")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"title":"Too Many Requests","detail":"Too Many Requests","status":429}`)
	})

	_, err := c.LikingUsers(context.Background(), "1")
	require.Error(t, err)

	at, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.True(t, reset.Equal(at))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr, "rate limit errors unwrap to APIError")
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestMe_RemembersUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/users/me", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"id":"42","name":"Bot","username":"newsbot"}}`)
	})

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "newsbot", u.Username)
	assert.Equal(t, "42", c.UserID())
}

func TestFollow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/users/42/following", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "7", body["target_user_id"])

		_, _ = io.WriteString(w, `{"data":{"following":true,"pending_follow":false}}`)
	})

	require.Error(t, c.Follow(context.Background(), "7"), "user id is needed")

	c.SetUserID("42")
	require.NoError(t, c.Follow(context.Background(), "7"))
}

func TestUsers_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/9/retweeted_by", r.URL.Path)
		_, _ = io.WriteString(w, `{"meta":{"result_count":0}}`)
	})

	users, err := c.RetweetedBy(context.Background(), "9")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestUsers_Pagination(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("pagination_token") {
		case "":
			_, _ = io.WriteString(w, `{"data":[{"id":"1"},{"id":"2"}],"meta":{"result_count":2,"next_token":"p2"}}`)
		case "p2":
			_, _ = io.WriteString(w, `{"data":[{"id":"3"}],"meta":{"result_count":1}}`)
		default:
			t.Errorf("unexpected token %q", r.URL.Query().Get("pagination_token"))
		}
	})

	users, err := c.LikingUsers(context.Background(), "9")
	require.NoError(t, err)
	assert.Len(t, users, 2, "one page by default")

	c.MaxPages = 5
	users, err = c.LikingUsers(context.Background(), "9")
	require.NoError(t, err)
	assert.Len(t, users, 3)
	assert.Equal(t, 3, calls)
}

func TestReplies(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "conversation_id:9", r.URL.Query().Get("query"))
		assert.Equal(t, "author_id", r.URL.Query().Get("tweet.fields"))
		_, _ = io.WriteString(w, `{"data":[{"id":"10","text":"nice","author_id":"5"}],"meta":{"result_count":1}}`)
	})

	replies, err := c.Replies(context.Background(), "9")
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "5", replies[0].AuthorID)
}

func TestTransportError(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	c := NewWithHTTPClient("test", s.Client(), s.URL)
	s.Close()

	_, err := c.Publish(context.Background(), "x")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestNew_SignsRequests(t *testing.T) {
	var auth string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"data":{"id":"42"}}`)
	}))
	defer s.Close()

	c := New("a", Credentials{AppKey: "ck", AppSecret: "cs", AccessToken: "at", AccessSecret: "as"}, s.URL, time.Second)
	_, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Contains(t, auth, "OAuth ")
	assert.Contains(t, auth, `oauth_consumer_key="ck"`)
	assert.Contains(t, auth, `oauth_token="at"`)
}
