package tikiapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoProductID is returned when a target URL carries no extractable
// product ID.
var ErrNoProductID = errors.New("no product id in url")

// ErrFetchFailed marks a request abandoned after its retry budget ran
// out; the last attempt's error stays in the chain.
var ErrFetchFailed = errors.New("fetch failed")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Code, e.URL)
}

// retryable decides whether an attempt may be repeated. Throttling and
// transport failures are transient; every other upstream status is
// terminal, as is a cancelled context.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests
	}
	// everything else is a transport failure of some kind
	return true
}
