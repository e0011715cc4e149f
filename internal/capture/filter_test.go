package capture_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypost/waypost/internal/capture"
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/settings"
)

func newFilter(t *testing.T, mutate func(*settings.Settings)) (*capture.Filter, *settings.Store) {
	t.Helper()

	base := settings.Default()
	if mutate != nil {
		mutate(&base)
	}
	store := settings.NewStore(base)
	battery := capture.NewStaticBatteryProvider(64, record.BatteryDischarging)
	return capture.NewFilter(store, battery), store
}

func fixAt(lat, lon, accuracy float64) capture.Fix {
	return capture.Fix{
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  accuracy,
		Time:      time.Now(),
	}
}

func TestFilter_FirstFixAlwaysAccepted(t *testing.T) {
	filter, _ := newFilter(t, func(s *settings.Settings) {
		s.DistanceMeters = 500
	})

	loc, reason := filter.Accept(fixAt(52.0, 4.0, 10))
	require.Equal(t, capture.Accepted, reason)
	require.NotNil(t, loc)
	assert.Equal(t, 52.0, loc.Latitude)
	assert.Equal(t, 64, loc.BatteryLevel)
	assert.Equal(t, record.BatteryDischarging, loc.BatteryStatus)
}

func TestFilter_AccuracyGate(t *testing.T) {
	filter, _ := newFilter(t, func(s *settings.Settings) {
		s.AccuracyFilter = true
		s.AccuracyMeters = 25
	})

	loc, reason := filter.Accept(fixAt(52.0, 4.0, 80))
	assert.Nil(t, loc)
	assert.Equal(t, capture.RejectedAccuracy, reason)

	loc, reason = filter.Accept(fixAt(52.0, 4.0, 20))
	assert.NotNil(t, loc)
	assert.Equal(t, capture.Accepted, reason)
}

func TestFilter_AccuracyGateDisabled(t *testing.T) {
	filter, _ := newFilter(t, func(s *settings.Settings) {
		s.AccuracyFilter = false
		s.AccuracyMeters = 25
	})

	loc, reason := filter.Accept(fixAt(52.0, 4.0, 500))
	assert.NotNil(t, loc)
	assert.Equal(t, capture.Accepted, reason)
}

func TestFilter_DistanceGate(t *testing.T) {
	filter, _ := newFilter(t, func(s *settings.Settings) {
		s.DistanceMeters = 100
	})

	_, reason := filter.Accept(fixAt(52.0, 4.0, 10))
	require.Equal(t, capture.Accepted, reason)

	// Roughly 50m north of the first fix.
	loc, reason := filter.Accept(fixAt(52.00045, 4.0, 10))
	assert.Nil(t, loc)
	assert.Equal(t, capture.RejectedDistance, reason)

	// Roughly 150m north of the first fix: far enough.
	loc, reason = filter.Accept(fixAt(52.00135, 4.0, 10))
	assert.NotNil(t, loc)
	assert.Equal(t, capture.Accepted, reason)
}

func TestFilter_DistanceZeroAcceptsDuplicates(t *testing.T) {
	filter, _ := newFilter(t, func(s *settings.Settings) {
		s.DistanceMeters = 0
	})

	same := fixAt(52.0, 4.0, 10)

	_, reason := filter.Accept(same)
	assert.Equal(t, capture.Accepted, reason)

	_, reason = filter.Accept(same)
	assert.Equal(t, capture.Accepted, reason, "distance 0 accepts every fix that passes accuracy filtering")
}

func TestFilter_RejectedFixDoesNotMoveReference(t *testing.T) {
	filter, _ := newFilter(t, func(s *settings.Settings) {
		s.DistanceMeters = 100
	})

	_, reason := filter.Accept(fixAt(52.0, 4.0, 10))
	require.Equal(t, capture.Accepted, reason)

	// Two consecutive 60m hops. Each is under the threshold relative to
	// the last accepted fix until the cumulative movement crosses 100m.
	_, reason = filter.Accept(fixAt(52.00054, 4.0, 10))
	assert.Equal(t, capture.RejectedDistance, reason)

	_, reason = filter.Accept(fixAt(52.00108, 4.0, 10))
	assert.Equal(t, capture.Accepted, reason, "distance accumulates against the last accepted fix, not the last seen fix")
}

func TestFilter_HotSwapKeepsReference(t *testing.T) {
	filter, store := newFilter(t, func(s *settings.Settings) {
		s.DistanceMeters = 100
	})

	_, reason := filter.Accept(fixAt(52.0, 4.0, 10))
	require.Equal(t, capture.Accepted, reason)

	// Profile push tightens the distance threshold mid-run.
	dist := 10.0
	store.SetOverride(&settings.Override{DistanceMeters: &dist})

	// 50m hop: rejected under the old threshold, accepted under the new
	// one. The reference point from before the swap still applies.
	loc, reason := filter.Accept(fixAt(52.00045, 4.0, 10))
	assert.NotNil(t, loc)
	assert.Equal(t, capture.Accepted, reason)
}

func TestFilter_ResetClearsReference(t *testing.T) {
	filter, _ := newFilter(t, func(s *settings.Settings) {
		s.DistanceMeters = 1000
	})

	_, reason := filter.Accept(fixAt(52.0, 4.0, 10))
	require.Equal(t, capture.Accepted, reason)

	_, reason = filter.Accept(fixAt(52.0, 4.0, 10))
	require.Equal(t, capture.RejectedDistance, reason)

	filter.Reset()

	_, reason = filter.Accept(fixAt(52.0, 4.0, 10))
	assert.Equal(t, capture.Accepted, reason, "first fix after restart has no reference point")
}

func TestCachedBatteryProvider_TTL(t *testing.T) {
	inner := capture.NewStaticBatteryProvider(90, record.BatteryCharging)
	cached := capture.NewCachedBatteryProvider(inner, 50*time.Millisecond)

	first := cached.Read()
	assert.Equal(t, 90, first.Level)

	inner.Set(10, record.BatteryDischarging)

	assert.Equal(t, 90, cached.Read().Level, "cached reading served inside TTL")

	time.Sleep(60 * time.Millisecond)
	refreshed := cached.Read()
	assert.Equal(t, 10, refreshed.Level)
	assert.Equal(t, record.BatteryDischarging, refreshed.Status)
}
