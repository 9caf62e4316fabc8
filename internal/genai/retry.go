package genai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

const defaultMaxRetries = 2

var (
	rateLimitWaitTimes   = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}
	serverErrorWaitTimes = []time.Duration{500 * time.Millisecond, 2 * time.Second, 5 * time.Second}
)

// withRetry runs fn, retrying rate-limit and server errors up to maxRetries
// additional times. Waiting stops as soon as ctx is done.
func withRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		if attempt >= maxRetries {
			return zero, err
		}

		var wait time.Duration
		switch {
		case isRateLimitError(err):
			wait = rateLimitWaitTimes[min(attempt, len(rateLimitWaitTimes)-1)]
		case isServerError(err):
			wait = serverErrorWaitTimes[min(attempt, len(serverErrorWaitTimes)-1)]
		default:
			return zero, err
		}

		slog.Warn("GenAI.withRetry: transient failure, retrying", "error", err, "attempt", attempt+1, "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if statusCode(err) == 429 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	if code := statusCode(err); code >= 500 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
