// Package queue provides the durable FIFO delivery queue for captured
// location records. The queue is the single source of truth for what
// still needs to be sent and the only shared mutable state between the
// capture path and the sync path.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/waypost/waypost/internal/record"
)

// Repository errors.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrEmptyBatch     = errors.New("empty id batch")
)

// Repository defines the persistence contract for the delivery queue.
//
// Enqueue, MarkSent and MarkFailed are each a single atomic unit; a crash
// mid-operation never leaves a record half-written or double-counted.
// Insertion order, ID order and delivery priority are the same order.
type Repository interface {
	// Enqueue durably appends a queued record and returns its assigned ID.
	// The write is durable before Enqueue returns.
	Enqueue(ctx context.Context, loc *record.Location) (int64, error)

	// PeekBatch returns up to max of the oldest queued records in ID order
	// without mutating any state.
	PeekBatch(ctx context.Context, max int) ([]*record.Location, error)

	// MarkSent atomically transitions the given records to sent.
	MarkSent(ctx context.Context, ids []int64) error

	// MarkFailed atomically increments the attempt count and last-attempt
	// timestamp of the given records. When permanent is true the records
	// transition to failed and leave the drain set for good; otherwise they
	// stay queued and are retried on the normal schedule.
	MarkFailed(ctx context.Context, ids []int64, permanent bool) error

	// PurgeSent deletes sent records older than the given time. Not part of
	// the sync-critical path.
	PurgeSent(ctx context.Context, olderThan time.Time) (int64, error)

	// Stats returns queue counts by delivery state.
	Stats(ctx context.Context) (record.QueueStats, error)
}
