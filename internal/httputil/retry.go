package httputil

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/menta2k/vision-nav/internal/monitoring"
)

// RetryPolicy describes how outbound calls to public APIs are retried
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// BackoffBase is the wait before the first retry; it doubles per retry
	BackoffBase time.Duration
	// BackoffMax caps a single wait
	BackoffMax time.Duration
	// StatusCodes are the response codes that trigger a retry
	StatusCodes []int
}

// DefaultRetryPolicy retries three times on gateway and server errors
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BackoffBase: time.Second,
		BackoffMax:  8 * time.Second,
		StatusCodes: []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// NewRetryClient returns an HTTPClient that retries transport errors and the
// policy's status codes. timeout bounds every single attempt. Once the retries
// are used up Do returns an error instead of the last failed response.
func NewRetryClient(policy RetryPolicy, timeout time.Duration) *StandardClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = policy.MaxRetries
	rc.RetryWaitMin = policy.BackoffBase
	rc.RetryWaitMax = policy.BackoffMax
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.CheckRetry = policy.checkRetry
	rc.Logger = nil
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			monitoring.Logger.Warnf("retrying %s %s (attempt %d)", req.Method, req.URL.Host, attempt+1)
		}
	}
	rc.HTTPClient.Timeout = timeout
	return NewStandardClient(rc.StandardClient())
}

func (p RetryPolicy) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		// defer to the library for which transport errors are worth retrying
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	for _, code := range p.StatusCodes {
		if resp.StatusCode == code {
			return true, nil
		}
	}
	return false, nil
}
