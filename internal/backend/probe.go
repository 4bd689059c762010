// Package backend manages the local Convex backend process used by
// the deploy stage: starting it, waiting for it to become healthy,
// and guaranteeing termination and log cleanup on every exit path.
package backend

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// probeBaseDelay is the backoff unit: the delay after attempt n is
	// min(probeBaseDelay * 2^n, remaining budget).
	probeBaseDelay = 100 * time.Millisecond

	// DefaultProbeTimeout caps the total time spent waiting for the
	// backend to answer its health endpoint.
	DefaultProbeTimeout = 10 * time.Second
)

// TimeoutError indicates the health probe deadline elapsed before the
// target responded successfully. It carries the last observed error
// as diagnostic detail.
type TimeoutError struct {
	URL     string
	Elapsed time.Duration
	LastErr error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("health probe of %s timed out after %s: %v", e.URL, e.Elapsed.Round(time.Millisecond), e.LastErr)
}

// Unwrap returns the last probe error.
func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// WaitHealthy polls url with GET requests until it answers with a 2xx
// status or the timeout budget is exhausted. Any connection failure
// or non-success status counts as "not yet ready". The first attempt
// fires immediately; the backoff delay applies only after a failed
// attempt n, doubling from 100ms and never sleeping past the
// remaining budget. No jitter, since this polls a local resource.
func WaitHealthy(client *http.Client, url string, timeout time.Duration) error {
	start := time.Now()
	deadline := start.Add(timeout)

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := client.Get(url)
		if err != nil {
			lastErr = err
		} else {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = fmt.Errorf("unexpected status %s", resp.Status)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &TimeoutError{URL: url, Elapsed: time.Since(start), LastErr: lastErr}
		}

		delay := backoffDelay(attempt)
		if delay > remaining {
			delay = remaining
		}
		time.Sleep(delay)
	}
}

// backoffDelay returns probeBaseDelay * 2^attempt, saturating so the
// shift cannot overflow.
func backoffDelay(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	return probeBaseDelay << uint(attempt)
}
