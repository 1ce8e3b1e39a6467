// Package httpenvelope is the single choke point every outbound call flows
// through: retry with exponential backoff and jitter, retryable/fatal
// classification, and a per-host circuit breaker (spec §4.1).
package httpenvelope

import (
	"context"
	"errors"
	"net/http"
)

// Outcome classifies a result or error as ok, retryable, or fatal.
type Outcome int

// Outcome values.
const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

// Classifier maps a response/error pair to an Outcome. Each client
// supplies its own, per §9's "consolidate the duplicated envelope"
// redesign note.
type Classifier func(resp *http.Response, err error) Outcome

// ClassifyHTTPStatus is the default classifier shared by most HTTP
// clients: timeouts/connection errors and 5xx/429 are retryable; other
// 4xx are fatal; 2xx is ok.
func ClassifyHTTPStatus(resp *http.Response, err error) Outcome {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return OutcomeRetryable
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return OutcomeRetryable
		}
		return OutcomeRetryable
	}
	if resp == nil {
		return OutcomeFatal
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeOK
	case resp.StatusCode == http.StatusTooManyRequests:
		return OutcomeRetryable
	case resp.StatusCode >= 500:
		return OutcomeRetryable
	default:
		return OutcomeFatal
	}
}
