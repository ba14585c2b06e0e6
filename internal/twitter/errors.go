package twitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status int
	Title  string
	Detail string
	Type   string
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Detail
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("twitter: status %d: %s", e.Status, msg)
}

// Forbidden reports the "Client Forbidden" answer given when the app is
// not attached to a developer project.
func (e *APIError) Forbidden() bool {
	return e.Title == "Client Forbidden"
}

// RateLimitError is returned when the API answers Too Many Requests.
// Reset is when the window reopens, zero when the header was missing.
type RateLimitError struct {
	APIError
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return e.APIError.Error()
	}
	return fmt.Sprintf("%s (resets %s)", e.APIError.Error(), e.Reset.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return &e.APIError }

// IsRateLimited reports whether err carries a rate-limit answer and, if
// so, when it resets.
func IsRateLimited(err error) (time.Time, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Reset, true
	}
	return time.Time{}, false
}

type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func parseError(resp *http.Response, raw []byte) error {
	e := APIError{Status: resp.StatusCode}
	var p problem
	if json.Unmarshal(raw, &p) == nil {
		e.Title, e.Detail, e.Type = p.Title, p.Detail, p.Type
		if e.Detail == "" && len(p.Errors) > 0 {
			e.Detail = p.Errors[0].Message
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests || e.Title == "Too Many Requests" {
		rl := &RateLimitError{APIError: e}
		if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
			if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
				rl.Reset = time.Unix(sec, 0)
			}
		}
		return rl
	}
	return &e
}
