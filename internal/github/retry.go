package github

import (
	"context"
	"net/http"
	"time"

	"github.com/vantagesign/signdeck/internal/logging"
)

const (
	// Requests get at most this many attempts in total.
	maxAttempts = 3

	baseBackoff = 1 * time.Second
)

// retryTransport retries transient GitHub failures: transport errors,
// 5xx responses and 429 rate limiting. Other 4xx responses are returned
// to the caller untouched. Requests whose bodies cannot be replayed
// (GetBody unset) are never retried.
type retryTransport struct {
	base http.RoundTripper
	log  logging.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(base http.RoundTripper, log logging.Logger) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &retryTransport{
		base:  base,
		log:   log.WithComponent("github.retry"),
		sleep: sleepCtx,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)

	attempts := maxAttempts
	if req.Body != nil && req.GetBody == nil {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return resp, err
				}
				req.Body = body
			}

			delay := baseBackoff * time.Duration(attempt-1)
			t.log.Warn(req.Context(), err, "retrying github request",
				"attempt", attempt, "method", req.Method, "url", req.URL.Path, "delay", delay.String())
			if sleepErr := t.sleep(req.Context(), delay); sleepErr != nil {
				return nil, sleepErr
			}
		}

		resp, err = t.base.RoundTrip(req)
		if err != nil {
			continue
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		// Drain so the connection can be reused before the next attempt.
		if attempt < attempts {
			resp.Body.Close()
		}
	}

	return resp, err
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
