// Package syncer drains the delivery queue: it builds requests from
// queued records, performs the HTTP delivery with circuit-breaker
// protection, and marks records sent or failed. Backoff between drain
// attempts is driven by an explicit scheduler rather than recursive
// callbacks, so the retry state stays inspectable.
package syncer

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Transport errors.
var (
	// ErrCircuitOpen is returned when the delivery circuit breaker is open.
	ErrCircuitOpen = errors.New("delivery circuit breaker is open")
)

// StatusError reports a non-2xx response. The engine treats every
// non-2xx the same as a network failure: retryable. Whether 4xx should
// be split from 5xx is an open product question; the engine does not
// assume either policy.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d", e.StatusCode)
}

// Sender performs one delivery request. A nil error means the endpoint
// acknowledged with a 2xx.
type Sender interface {
	Send(req *http.Request) error
}

// TransportConfig holds configuration for the delivery transport.
type TransportConfig struct {
	// Name identifies the circuit breaker for logging.
	Name string

	// Timeout is the per-request timeout. Default: 30 seconds.
	Timeout time.Duration

	// BreakerTimeout is how long the circuit stays open before probing
	// again. Default: 60 seconds.
	BreakerTimeout time.Duration

	// ReadyToTrip overrides the default trip condition (5+ requests with
	// a 50% failure rate).
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// Transport is the HTTP delivery boundary: a timeout-bounded client
// behind a circuit breaker. Retrying is not done here — the engine's
// drain schedule owns retries, so a failed request surfaces immediately.
type Transport struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[int]
}

// NewTransport creates a delivery transport.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		}
	}

	breaker := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: readyToTrip,
	})

	return &Transport{
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// Send executes one delivery request. Returns nil on 2xx, a StatusError
// on any other status, ErrCircuitOpen while the breaker is open, or the
// underlying network error.
func (t *Transport) Send(req *http.Request) error {
	_, err := t.breaker.Execute(func() (int, error) {
		resp, err := t.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		// Responses are not interpreted beyond the status code; drain the
		// body so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode}
		}
		return resp.StatusCode, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrCircuitOpen
		}
		return err
	}
	return nil
}

// BreakerState returns the current circuit breaker state.
func (t *Transport) BreakerState() gobreaker.State {
	return t.breaker.State()
}

// Ensure Transport implements Sender interface.
var _ Sender = (*Transport)(nil)
