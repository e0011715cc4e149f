package capture

import (
	"sync"
	"time"

	"github.com/waypost/waypost/internal/record"
)

// CachedBatteryProvider wraps another provider and serves a cached
// reading for a short TTL, so stamping every accepted fix does not turn
// into a system call per fix.
type CachedBatteryProvider struct {
	inner BatteryProvider
	ttl   time.Duration

	mu      sync.Mutex
	reading BatteryReading
	readAt  time.Time
}

// NewCachedBatteryProvider creates a caching wrapper around inner.
func NewCachedBatteryProvider(inner BatteryProvider, ttl time.Duration) *CachedBatteryProvider {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CachedBatteryProvider{inner: inner, ttl: ttl}
}

// Read returns the cached reading, refreshing it when the TTL expired.
func (p *CachedBatteryProvider) Read() BatteryReading {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.readAt) > p.ttl || p.readAt.IsZero() {
		p.reading = p.inner.Read()
		p.readAt = time.Now()
	}
	return p.reading
}

// StaticBatteryProvider reports a fixed reading. Used in tests and as a
// fallback when no platform battery source is wired up.
type StaticBatteryProvider struct {
	mu      sync.RWMutex
	reading BatteryReading
}

// NewStaticBatteryProvider creates a provider with the given reading.
func NewStaticBatteryProvider(level int, status record.BatteryStatus) *StaticBatteryProvider {
	return &StaticBatteryProvider{reading: BatteryReading{Level: level, Status: status}}
}

// Read returns the current reading.
func (p *StaticBatteryProvider) Read() BatteryReading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reading
}

// Set replaces the reading.
func (p *StaticBatteryProvider) Set(level int, status record.BatteryStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reading = BatteryReading{Level: level, Status: status}
}

var (
	_ BatteryProvider = (*CachedBatteryProvider)(nil)
	_ BatteryProvider = (*StaticBatteryProvider)(nil)
)
