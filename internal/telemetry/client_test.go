package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/airlens-cli/internal/dataset"
)

const feedBody = `{
  "channel": {"id": 42, "name": "balcony", "field1": "Humidity", "field2": "Temperature", "field3": "PM2.5", "field4": "PM10", "last_entry_id": 3},
  "feeds": [
    {"created_at": "2024-01-01T00:00:00Z", "entry_id": 1, "field1": "55.0", "field2": "21.5", "field3": "12.0", "field4": "30.0"},
    {"created_at": "2024-01-01T01:00:00Z", "entry_id": 2, "field1": null, "field2": 22, "field3": "14.0", "field4": "34.0"},
    {"created_at": "2024-01-01T02:00:00Z", "entry_id": 3, "field1": "60.0", "field2": "23.0", "field3": "", "field4": "38.0"}
  ]
}`

func newTestClient(url string) *Client {
	return NewClient(Options{
		BaseURL:          url,
		ChannelID:        "42",
		ReadAPIKey:       "SECRET",
		Timeout:          2 * time.Second,
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    5 * time.Millisecond,
	})
}

func TestFeedsDecodesMixedFieldValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels/42/feeds.json", r.URL.Path)
		require.Equal(t, "SECRET", r.URL.Query().Get("api_key"))
		require.Equal(t, "100", r.URL.Query().Get("results"))
		require.Equal(t, "2024-01-01 00:00:00", r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fr, err := newTestClient(srv.URL).Feeds(context.Background(), FeedRequest{Start: start, End: start.Add(24 * time.Hour), Results: 100})
	require.NoError(t, err)
	require.Equal(t, "balcony", fr.Channel.Name)
	require.Len(t, fr.Feeds, 3)
	require.Equal(t, FieldValue{Value: "55.0", Valid: true}, fr.Feeds[0].Field1)
	require.False(t, fr.Feeds[1].Field1.Valid)
	require.Equal(t, "22", fr.Feeds[1].Field2.Value)
	require.False(t, fr.Feeds[2].Field3.Valid)
}

func TestFeedsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	fr, err := newTestClient(srv.URL).Feeds(context.Background(), FeedRequest{})
	require.NoError(t, err)
	require.Len(t, fr.Feeds, 3)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFeedsRateLimitExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "slow down"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Feeds(context.Background(), FeedRequest{})
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	require.Equal(t, time.Second, rl.RetryAfter)
	require.Equal(t, "slow down", rl.Message)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFeedsClassifiesWithoutRetry(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, `{"status": "404"}`, func(err error) bool { var e *NotFoundError; return errors.As(err, &e) }},
		{"unauthorized", http.StatusUnauthorized, `{}`, func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{"rejected key", http.StatusOK, "-1", func(err error) bool { var e *AuthError; return errors.As(err, &e) }},
		{"bad request", http.StatusBadRequest, `{}`, func(err error) bool { var e *BadRequestError; return errors.As(err, &e) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Feeds(context.Background(), FeedRequest{})
			require.Error(t, err)
			require.True(t, tc.check(err), "unexpected error type %T: %v", err, err)
			require.NotContains(t, err.Error(), "SECRET")
			require.EqualValues(t, 1, atomic.LoadInt32(&calls))
		})
	}
}

func TestFeedsHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)
	c.retryBaseDelay, c.retryMaxDelay = time.Hour, time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Feeds(ctx, FeedRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchAndSaveWritesLoadableCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "data", "air_quality_data.csv")
	res := newTestClient(srv.URL).FetchAndSave(context.Background(), FetchOptions{Span: 24 * time.Hour, Output: out})
	require.True(t, res.Success)
	require.Nil(t, res.Error)
	require.Equal(t, 3, res.Records)
	require.Equal(t, "2024-01-01 00:00:00", *res.DateRange.Start)
	require.Equal(t, "2024-01-01 02:00:00", *res.DateRange.End)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), strings.Join(CSVHeader, ",")+"\n"))

	ds, err := dataset.Load(out, dataset.LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	require.Equal(t, "pm25", ds.Mapping.Column(dataset.PM25))
	require.Equal(t, []float64{12, 14}, ds.Values(dataset.PM25))
	require.Equal(t, []float64{21.5, 22, 23}, ds.Values(dataset.Temperature))
}

func TestFetchAndSaveReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"channel": {"id": 42}, "feeds": []}`))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "feed.csv")
	res := newTestClient(srv.URL).FetchAndSave(context.Background(), FetchOptions{Output: out})
	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	require.Equal(t, ErrNoFeeds.Error(), *res.Error)
	require.NoFileExists(t, out)
}

func TestFetchAndSaveCheckOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "feed.csv")
	res := newTestClient(srv.URL).FetchAndSave(context.Background(), FetchOptions{Output: out, CheckOnly: true})
	require.True(t, res.Success)
	require.True(t, res.CheckOnly)
	require.NoFileExists(t, out)
}
