package timecamp

import (
	"errors"
	"fmt"
)

// ErrRetryBudgetExceeded reports that a request kept hitting the rate
// limit through every allowed attempt.
var ErrRetryBudgetExceeded = errors.New("retry budget exceeded")

// errRateLimited marks a single 429 response inside the retry loop.
var errRateLimited = errors.New("rate limited")

// APIError is a non-2xx response from the TimeCamp API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("timecamp api: %s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
