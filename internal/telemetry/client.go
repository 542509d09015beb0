// Package telemetry downloads channel feeds from a ThingSpeak-compatible API
// and stores them as CSV files the loader understands.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://api.thingspeak.com"
	DefaultMaxResults = 8000
	// requestTimeLayout is the window format the feeds endpoint expects.
	requestTimeLayout = "2006-01-02 15:04:05"
)

// Options configures a Client. Zero values take defaults.
type Options struct {
	BaseURL          string
	ChannelID        string
	ReadAPIKey       string
	Timeout          time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	Logger           *slog.Logger
}

// Client reads channel feeds.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	channelID        string
	readAPIKey       string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	log              *slog.Logger
}

// NewClient returns a client with default timeouts and retry strategy applied
// to any unset option.
func NewClient(opt Options) *Client {
	if opt.BaseURL == "" {
		opt.BaseURL = DefaultBaseURL
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	if opt.RetryMaxAttempts <= 0 {
		opt.RetryMaxAttempts = 3
	}
	if opt.RetryBaseDelay <= 0 {
		opt.RetryBaseDelay = 5 * time.Second
	}
	if opt.RetryMaxDelay <= 0 {
		opt.RetryMaxDelay = 20 * time.Second
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient:       &http.Client{Timeout: opt.Timeout},
		baseURL:          strings.TrimRight(opt.BaseURL, "/"),
		channelID:        opt.ChannelID,
		readAPIKey:       opt.ReadAPIKey,
		retryMaxAttempts: opt.RetryMaxAttempts,
		retryBaseDelay:   opt.RetryBaseDelay,
		retryMaxDelay:    opt.RetryMaxDelay,
		log:              log,
	}
}

// FeedRequest selects the window to download.
type FeedRequest struct {
	Start   time.Time
	End     time.Time
	Results int
}

// Channel is the channel metadata returned alongside feeds.
type Channel struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Field1      string `json:"field1"`
	Field2      string `json:"field2"`
	Field3      string `json:"field3"`
	Field4      string `json:"field4"`
	LastEntryID int64  `json:"last_entry_id"`
}

// Feed is one channel entry. ThingSpeak sends field values as strings and
// omits or nulls fields that were not written.
type Feed struct {
	CreatedAt string     `json:"created_at"`
	EntryID   int64      `json:"entry_id"`
	Field1    FieldValue `json:"field1"`
	Field2    FieldValue `json:"field2"`
	Field3    FieldValue `json:"field3"`
	Field4    FieldValue `json:"field4"`
}

// FeedResponse is the decoded body of the feeds endpoint.
type FeedResponse struct {
	Channel Channel `json:"channel"`
	Feeds   []Feed  `json:"feeds"`
}

// FieldValue accepts a JSON string, number or null.
type FieldValue struct {
	Value string
	Valid bool
}

func (f *FieldValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*f = FieldValue{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(str)
		*f = FieldValue{Value: str, Valid: str != ""}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("field value %s: %w", s, err)
	}
	*f = FieldValue{Value: n.String(), Valid: true}
	return nil
}

func (c *Client) feedsURL(req FeedRequest) string {
	q := url.Values{}
	if c.readAPIKey != "" {
		q.Set("api_key", c.readAPIKey)
	}
	if !req.Start.IsZero() {
		q.Set("start", req.Start.UTC().Format(requestTimeLayout))
	}
	if !req.End.IsZero() {
		q.Set("end", req.End.UTC().Format(requestTimeLayout))
	}
	results := req.Results
	if results <= 0 {
		results = DefaultMaxResults
	}
	q.Set("results", strconv.Itoa(results))
	return fmt.Sprintf("%s/channels/%s/feeds.json?%s", c.baseURL, url.PathEscape(c.channelID), q.Encode())
}

// Feeds downloads the channel entries in req's window. Network errors, 429
// and 5xx responses are retried with exponential backoff and jitter,
// honoring Retry-After.
func (c *Client) Feeds(ctx context.Context, req FeedRequest) (*FeedResponse, error) {
	if c.channelID == "" {
		return nil, errors.New("channel id is missing")
	}
	endpoint := c.feedsURL(req)
	backoff := c.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, retry, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			c.log.Debug("feeds fetched", "channel", c.channelID, "entries", len(out.Feeds), "attempt", attempt)
			return out, nil
		}
		lastErr = err
		if !retry || attempt == c.retryMaxAttempts {
			break
		}
		wait := withJitter(backoff)
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			wait = rl.RetryAfter
		}
		wait = min(wait, c.retryMaxDelay)
		c.log.Warn("feed request failed, retrying", "attempt", attempt, "wait", wait, "err", err)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, lastErr
}

// fetchOnce performs one request. retry reports whether the failure is transient.
func (c *Client) fetchOnce(ctx context.Context, endpoint string) (out *FeedResponse, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, isRetryableNetErr(err), fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body), URL: redact(endpoint)}
		typed := classifyAPIError(apiErr, resp)
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, transient, typed
	}
	// A private channel read with a bad key answers a bare -1.
	if bytes.Equal(bytes.TrimSpace(body), []byte("-1")) {
		return nil, false, &AuthError{APIError: &APIError{StatusCode: resp.StatusCode, Message: "read API key rejected", URL: redact(endpoint)}}
	}
	var fr FeedResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	return &fr, false, nil
}

func errorMessage(body []byte) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err == nil {
		for _, k := range []string{"error", "message", "status"} {
			if v, ok := raw[k].(string); ok && v != "" {
				return v
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// redact strips the api key from a URL before it lands in an error.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	switch sc := apiErr.StatusCode; {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case sc == http.StatusTooManyRequests:
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	case sc == http.StatusNotFound:
		return &NotFoundError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	case sc >= 400:
		return &BadRequestError{APIError: apiErr}
	}
	return apiErr
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// parseRetryAfterSeconds interprets a Retry-After value as seconds or an HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		return int(max(time.Until(t), 0).Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// withJitter returns d with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	out := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if out <= 0 {
		return d
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
