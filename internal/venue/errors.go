package venue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var (
	// ErrNotFound reports a ticket the venue does not know.
	ErrNotFound = errors.New("venue: position not found")

	// ErrRejected reports an order the venue refused. Rejections are final;
	// retrying the same request will not help.
	ErrRejected = errors.New("venue: order rejected")

	// ErrUnavailable reports a venue that could not be reached.
	ErrUnavailable = errors.New("venue: unavailable")
)

// apiError carries the venue's HTTP status and message.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("venue: api error %d: %s", e.Status, e.Message)
}

// isTransient reports whether an error is worth retrying. Network failures
// and 5xx/429 responses are transient; rejections and 4xx are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError ||
			apiErr.Status == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrUnavailable)
}

// withRetry runs fn up to maxRetries+1 times with linear backoff, giving up
// early on non-transient errors or context cancellation.
func withRetry(ctx context.Context, maxRetries int, backoff time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * backoff):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
	}
	return err
}
