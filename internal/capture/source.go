package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoFix is returned by platform readers when no position is
// currently available. The polled source skips the tick and tries
// again on the next one.
var ErrNoFix = errors.New("no fix available")

// FixReader reads one fix from the underlying platform provider.
type FixReader func(ctx context.Context) (Fix, error)

// fallbackPollInterval stands in for a non-positive registration
// interval, which would otherwise panic time.NewTicker.
const fallbackPollInterval = time.Second

// PolledSource is the location-manager style fix source: it polls a
// platform reader on the requested interval.
type PolledSource struct {
	read FixReader

	mu      sync.Mutex
	cancel  context.CancelFunc
	last    Fix
	hasLast bool
}

// NewPolledSource creates a source that polls read at the requested
// interval.
func NewPolledSource(read FixReader) *PolledSource {
	return &PolledSource{read: read}
}

// RequestUpdates starts polling. A second call replaces the previous
// registration.
func (s *PolledSource) RequestUpdates(ctx context.Context, interval time.Duration, _ float64) (<-chan Fix, error) {
	if interval <= 0 {
		interval = fallbackPollInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	out := make(chan Fix, 1)
	go s.poll(runCtx, interval, out)
	return out, nil
}

func (s *PolledSource) poll(ctx context.Context, interval time.Duration, out chan<- Fix) {
	defer close(out)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fix, err := s.read(ctx)
			if err != nil {
				continue
			}

			s.mu.Lock()
			s.last = fix
			s.hasLast = true
			s.mu.Unlock()

			select {
			case out <- fix:
			case <-ctx.Done():
				return
			}
		}
	}
}

// LastKnown returns the most recent polled fix.
func (s *PolledSource) LastKnown() (Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Cancel stops polling and closes the active channel. A later
// RequestUpdates starts a fresh registration.
func (s *PolledSource) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// PushSource is the fused-provider style fix source: fixes are pushed in
// by the platform callback via Publish and fanned out to the active
// registration, honouring the registration's minimum-distance hint.
type PushSource struct {
	mu          sync.Mutex
	out         chan Fix
	cancel      context.CancelFunc
	last        Fix
	hasLast     bool
	minInterval time.Duration
	lastEmit    time.Time
}

// NewPushSource creates an empty push source. Publish feeds it.
func NewPushSource() *PushSource {
	return &PushSource{}
}

// RequestUpdates registers for pushed fixes. The interval acts as a rate
// cap: pushes arriving faster than it are dropped.
func (s *PushSource) RequestUpdates(ctx context.Context, interval time.Duration, _ float64) (<-chan Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		close(s.out)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.out = make(chan Fix, 8)
	s.minInterval = interval
	s.lastEmit = time.Time{}

	out := s.out
	go func() {
		<-runCtx.Done()
		s.mu.Lock()
		if s.out == out {
			close(s.out)
			s.out = nil
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	return out, nil
}

// Publish delivers one fix from the platform callback.
func (s *PushSource) Publish(fix Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = fix
	s.hasLast = true

	if s.out == nil {
		return
	}
	if s.minInterval > 0 && !s.lastEmit.IsZero() && time.Since(s.lastEmit) < s.minInterval {
		return
	}

	select {
	case s.out <- fix:
		s.lastEmit = time.Now()
	default:
		// Consumer is behind; drop rather than block the platform callback.
	}
}

// LastKnown returns the most recent pushed fix.
func (s *PushSource) LastKnown() (Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Cancel stops delivery and closes the active channel. A later
// RequestUpdates starts a fresh registration.
func (s *PushSource) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
}

var (
	_ FixSource = (*PolledSource)(nil)
	_ FixSource = (*PushSource)(nil)
)
