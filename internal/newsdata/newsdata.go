// Package newsdata is a client for the NewsData.io latest-news endpoint.
package newsdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/newsbot/internal/news"
)

const DefaultBaseURL = "https://newsdata.io"

// Client fetches articles from NewsData.io.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

var _ news.Provider = (*Client)(nil)

// New builds a client whose requests give up after timeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type response struct {
	Status       string          `json:"status"`
	TotalResults int             `json:"totalResults"`
	Results      json.RawMessage `json:"results"`
	NextPage     string          `json:"nextPage"`
}

type result struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	SourceID    string   `json:"source_id"`
	Category    []string `json:"category"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	PubDate     string   `json:"pubDate"`
}

// errorResult is the shape of results when status is "error".
type errorResult struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

const pubDateLayout = "2006-01-02 15:04:05"

// Fetch queries the latest news for one country and category. Errors are
// *news.FetchError; Reached is set once an HTTP response came back.
func (c *Client) Fetch(ctx context.Context, region, category string) ([]news.Article, error) {
	fail := func(reached bool, status int, err error) error {
		return &news.FetchError{Region: region, Category: category, Reached: reached, Status: status, Err: err}
	}

	q := url.Values{}
	q.Set("apikey", c.APIKey)
	q.Set("country", region)
	q.Set("category", category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/1/news?"+q.Encode(), nil)
	if err != nil {
		return nil, fail(false, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fail(false, 0, redact(err, c.APIKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fail(true, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	var r response
	decodeErr := json.Unmarshal(body, &r)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(true, resp.StatusCode, upstreamError(r, decodeErr))
	}
	if decodeErr != nil {
		return nil, fail(true, resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr))
	}
	if r.Status != "success" {
		return nil, fail(true, resp.StatusCode, upstreamError(r, nil))
	}

	var results []result
	if len(r.Results) > 0 && string(r.Results) != "null" {
		if err := json.Unmarshal(r.Results, &results); err != nil {
			return nil, fail(true, resp.StatusCode, fmt.Errorf("decode results: %w", err))
		}
	}

	articles := make([]news.Article, 0, len(results))
	for _, res := range results {
		a := news.Article{
			Title:       res.Title,
			Link:        res.Link,
			SourceID:    res.SourceID,
			Region:      region,
			Description: res.Description,
			ImageURL:    res.ImageURL,
		}
		if len(res.Category) > 0 {
			a.Category = res.Category[0]
		}
		if t, err := time.Parse(pubDateLayout, res.PubDate); err == nil {
			a.Published = t
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func upstreamError(r response, decodeErr error) error {
	if decodeErr != nil {
		return errors.New("upstream returned non-2xx")
	}
	var e errorResult
	if json.Unmarshal(r.Results, &e) == nil && e.Message != "" {
		return fmt.Errorf("newsdata %s: %s", e.Code, e.Message)
	}
	return fmt.Errorf("newsdata status %q", r.Status)
}

// redact keeps the API key out of logged URL errors.
func redact(err error, key string) error {
	if key == "" {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: strings.ReplaceAll(ue.URL, key, "REDACTED"), Err: ue.Err}
	}
	return err
}
