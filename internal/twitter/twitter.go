// Package twitter is a small X API v2 client covering what the bot needs:
// posting, engagement lookups and follows.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

const DefaultBaseURL = "https://api.twitter.com"

// Credentials are OAuth 1.0a user-context keys for one account.
type Credentials struct {
	AppKey       string
	AppSecret    string
	AccessToken  string
	AccessSecret string
}

// User is the subset of the user object the bot reads.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Tweet is the subset of the post object the bot reads.
type Tweet struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
}

// Client talks to the API as one account.
type Client struct {
	HTTP     *http.Client
	BaseURL  string
	Label    string // for logs, e.g. "account1"
	MaxPages int    // pages read per lookup, 1 by default

	userID string
}

// New signs every request with creds. timeout bounds each request.
func New(label string, creds Credentials, baseURL string, timeout time.Duration) *Client {
	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	cfg := oauth1.NewConfig(creds.AppKey, creds.AppSecret)
	hc := cfg.Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessSecret))
	hc.Timeout = timeout
	return NewWithHTTPClient(label, hc, baseURL)
}

// NewWithHTTPClient uses hc as is; tests pass an unsigned client.
func NewWithHTTPClient(label string, hc *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{HTTP: hc, BaseURL: strings.TrimRight(baseURL, "/"), Label: label, MaxPages: 1}
}

// SetUserID skips the /2/users/me lookup.
func (c *Client) SetUserID(id string) { c.userID = id }

// UserID is the authenticated account's id, empty before Me or SetUserID.
func (c *Client) UserID() string { return c.userID }

// Me confirms the credentials and remembers the account's user id.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out struct {
		Data User `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/2/users/me", nil, nil, &out); err != nil {
		return User{}, err
	}
	if c.userID == "" {
		c.userID = out.Data.ID
	}
	return out.Data, nil
}

// Publish creates a post and returns its id.
func (c *Client) Publish(ctx context.Context, text string) (string, error) {
	var out struct {
		Data Tweet `json:"data"`
	}
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, "/2/tweets", nil, body, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", errors.New("twitter: post created without id")
	}
	return out.Data.ID, nil
}

// LikingUsers lists accounts that liked the post.
func (c *Client) LikingUsers(ctx context.Context, postID string) ([]User, error) {
	return c.users(ctx, "/2/tweets/"+url.PathEscape(postID)+"/liking_users")
}

// RetweetedBy lists accounts that reposted the post.
func (c *Client) RetweetedBy(ctx context.Context, postID string) ([]User, error) {
	return c.users(ctx, "/2/tweets/"+url.PathEscape(postID)+"/retweeted_by")
}

// Replies searches recent posts in the post's conversation.
func (c *Client) Replies(ctx context.Context, conversationID string) ([]Tweet, error) {
	q := url.Values{}
	q.Set("query", "conversation_id:"+conversationID)
	q.Set("tweet.fields", "author_id")

	var all []Tweet
	err := c.paginate(ctx, "/2/tweets/search/recent", q, "next_token", func(raw json.RawMessage) error {
		var page []Tweet
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		all = append(all, page...)
		return nil
	})
	return all, err
}

// Follow makes this account follow targetID.
func (c *Client) Follow(ctx context.Context, targetID string) error {
	if c.userID == "" {
		return errors.New("twitter: user id unknown, call Me first")
	}
	body := map[string]string{"target_user_id": targetID}
	var out struct {
		Data struct {
			Following     bool `json:"following"`
			PendingFollow bool `json:"pending_follow"`
		} `json:"data"`
	}
	return c.do(ctx, http.MethodPost, "/2/users/"+url.PathEscape(c.userID)+"/following", nil, body, &out)
}

func (c *Client) users(ctx context.Context, path string) ([]User, error) {
	var all []User
	err := c.paginate(ctx, path, url.Values{}, "pagination_token", func(raw json.RawMessage) error {
		var page []User
		if err := json.Unmarshal(raw, &page); err != nil {
			return err
		}
		all = append(all, page...)
		return nil
	})
	return all, err
}

type page struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

// paginate follows meta.next_token for up to MaxPages pages.
func (c *Client) paginate(ctx context.Context, path string, q url.Values, tokenParam string, add func(json.RawMessage) error) error {
	pages := c.MaxPages
	if pages <= 0 {
		pages = 1
	}
	for i := 0; i < pages; i++ {
		var p page
		if err := c.do(ctx, http.MethodGet, path, q, nil, &p); err != nil {
			return err
		}
		if len(p.Data) > 0 && string(p.Data) != "null" {
			if err := add(p.Data); err != nil {
				return fmt.Errorf("twitter: decode %s: %w", path, err)
			}
		}
		if p.Meta.NextToken == "" {
			return nil
		}
		q.Set(tokenParam, p.Meta.NextToken)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("twitter: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("twitter: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("twitter: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("twitter: decode %s: %w", path, err)
	}
	return nil
}
