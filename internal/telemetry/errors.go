package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoFeeds is returned when the channel has no entries in the requested window.
var ErrNoFeeds = errors.New("no data retrieved")

// APIError represents a non-2xx response from the telemetry API.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d", e.StatusCode)
}

// AuthError indicates a rejected or missing read API key (401/403, or the
// channel answering -1).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// NotFoundError indicates an unknown channel.
type NotFoundError struct{ *APIError }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("channel not found: %s", e.APIError.Error())
}

// BadRequestError indicates a 4xx request problem such as a malformed window.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the API.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string {
	return fmt.Sprintf("telemetry server error: %s", e.APIError.Error())
}
