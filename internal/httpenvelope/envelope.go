package httpenvelope

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// Envelope is the single choke point every outbound call flows through.
type Envelope struct {
	client        *http.Client
	maxRetries    int
	backoffFactor float64
	breakers      *Manager
}

// Config configures an Envelope's retry and circuit-breaker behavior.
type Config struct {
	MaxRetries              int
	BackoffFactor           float64
	CircuitBreakerThreshold int
	CircuitBreakerRecovery  time.Duration
	RequestTimeout          time.Duration
	OnCircuitStateChange    func(host string, state domain.CircuitState)
}

// New builds an Envelope. The underlying transport is wrapped in
// otelhttp so every outbound call is traced.
func New(cfg Config) *Envelope {
	return &Envelope{
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries:    cfg.MaxRetries,
		backoffFactor: cfg.BackoffFactor,
		breakers:      NewManager(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerRecovery, cfg.OnCircuitStateChange),
	}
}

// RetryableError wraps an error that the envelope's retry loop gave up on
// after exhausting the retry budget.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// FatalError wraps a non-retryable error (4xx, schema invalid, etc).
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Do issues req, retrying with the backoff formula
// (backoff_factor^attempt + uniform jitter in [0, 0.1*base]) on results
// classify marks retryable, and gating the call through the per-host
// circuit breaker. The response body is fully read and the response
// closed; callers receive body bytes rather than an open reader so retries
// can safely reissue the request.
func (e *Envelope) Do(req *http.Request, classify Classifier) (*http.Response, []byte, error) {
	host := req.URL.Host
	cb := e.breakers.Get(host)

	allowed, isTrial := cb.Allow()
	if !allowed {
		return nil, nil, &FatalError{Err: fmt.Errorf("%w: host=%s", domain.ErrCircuitOpen, host)}
	}
	if isTrial {
		defer cb.Release()
	}

	var lastResp *http.Response
	var lastBody []byte

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), uint64(e.maxRetries))
	attempt := 0
	op := func() error {
		r := req.Clone(req.Context())
		resp, err := e.client.Do(r)
		outcome := classify(resp, err)

		switch outcome {
		case OutcomeOK:
			body, readErr := drain(resp)
			lastResp, lastBody = resp, body
			cb.RecordSuccess()
			if readErr != nil {
				return backoff.Permanent(readErr)
			}
			return nil
		case OutcomeFatal:
			cb.RecordFailure()
			if resp != nil {
				body, _ := drain(resp)
				lastResp, lastBody = resp, body
			}
			if err == nil {
				err = fmt.Errorf("fatal status %d", statusOf(resp))
			}
			return backoff.Permanent(&FatalError{Err: err})
		default: // retryable
			cb.RecordFailure()
			if resp != nil {
				body, _ := drain(resp)
				lastResp, lastBody = resp, body
			}
			if err == nil {
				err = fmt.Errorf("retryable status %d", statusOf(resp))
			}
			attempt++
			if attempt > e.maxRetries {
				return backoff.Permanent(&RetryableError{Err: err})
			}
			sleepAttemptBackoff(e.backoffFactor, attempt-1)
			return err
		}
	}

	if err := backoff.Retry(op, bo); err != nil {
		return lastResp, lastBody, err
	}
	return lastResp, lastBody, nil
}

// sleepAttemptBackoff sleeps backoff_factor^attempt seconds plus uniform
// jitter in [0, 0.1*base], matching utils/retry.py's formula.
func sleepAttemptBackoff(factor float64, attempt int) {
	base := 1.0
	for i := 0; i < attempt; i++ {
		base *= factor
	}
	jitter := rand.Float64() * 0.1 * base
	time.Sleep(time.Duration((base + jitter) * float64(time.Second)))
}

func drain(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
