// Package record defines the location record captured by the tracking
// pipeline and persisted in the delivery queue.
package record

// BatteryStatus describes the device battery state at capture time.
type BatteryStatus string

const (
	BatteryUnknown     BatteryStatus = "unknown"
	BatteryDischarging BatteryStatus = "discharging"
	BatteryCharging    BatteryStatus = "charging"
	BatteryFull        BatteryStatus = "full"
)

// DeliveryState describes where a record sits in its delivery lifecycle.
// Transitions are forward-only: queued -> sent or queued -> failed.
type DeliveryState string

const (
	// StateQueued means the record still needs to be delivered.
	StateQueued DeliveryState = "queued"

	// StateSent means the record was delivered. Sent records are immutable
	// and retained only for statistics and export; they are never resent.
	StateSent DeliveryState = "sent"

	// StateFailed means the record exhausted its retry budget and will not
	// be retried automatically.
	StateFailed DeliveryState = "failed"
)

// Location is one captured position fix together with the device state at
// capture time and its delivery bookkeeping.
//
// ID is assigned at insert and is strictly monotonic; insertion order, ID
// order and delivery priority are the same order. Altitude, Speed and
// Bearing are nil when the source fix did not carry them — absence is
// meaningful on the wire and must not collapse to zero.
type Location struct {
	ID            int64
	Latitude      float64
	Longitude     float64
	Altitude      *float64
	Accuracy      float64
	Speed         *float64
	Bearing       *float64
	BatteryLevel  int
	BatteryStatus BatteryStatus
	Timestamp     int64

	State         DeliveryState
	Attempts      int
	LastAttemptAt *int64
}

// QueueStats summarizes the delivery queue for the status surface.
type QueueStats struct {
	Queued int64 `json:"queued"`
	Sent   int64 `json:"sent"`
	Failed int64 `json:"failed"`
}
