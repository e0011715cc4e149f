package queue_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypost/waypost/internal/queue"
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/storage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testLocation(lat, lon float64) *record.Location {
	return &record.Location{
		Latitude:      lat,
		Longitude:     lon,
		Accuracy:      8.5,
		BatteryLevel:  73,
		BatteryStatus: record.BatteryDischarging,
		Timestamp:     time.Now().Unix(),
	}
}

func TestSQLiteRepository_EnqueueAssignsMonotonicIDs(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	var prev int64
	for i := 0; i < 10; i++ {
		id, err := repo.Enqueue(ctx, testLocation(52.0, 4.0))
		require.NoError(t, err)
		assert.Greater(t, id, prev, "ids must be strictly increasing")
		prev = id
	}
}

func TestSQLiteRepository_PeekBatchOrdering(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := repo.Enqueue(ctx, testLocation(52.0+float64(i), 4.0))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	batch, err := repo.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 5)

	for i, loc := range batch {
		assert.Equal(t, ids[i], loc.ID)
		assert.Equal(t, record.StateQueued, loc.State)
	}

	// Peek must not mutate state.
	again, err := repo.PeekBatch(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, again, 5)
}

func TestSQLiteRepository_PeekBatchRespectsLimit(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := repo.Enqueue(ctx, testLocation(52.0, 4.0))
		require.NoError(t, err)
	}

	batch, err := repo.PeekBatch(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestSQLiteRepository_MarkSentHidesFromPeek(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	id1, err := repo.Enqueue(ctx, testLocation(52.0, 4.0))
	require.NoError(t, err)
	id2, err := repo.Enqueue(ctx, testLocation(52.1, 4.1))
	require.NoError(t, err)

	require.NoError(t, repo.MarkSent(ctx, []int64{id1}))

	batch, err := repo.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, id2, batch[0].ID)
}

func TestSQLiteRepository_MarkSentIsImmutable(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testLocation(52.0, 4.0))
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(ctx, []int64{id}))

	// A sent record must not move backwards, even through MarkFailed.
	require.NoError(t, repo.MarkFailed(ctx, []int64{id}, true))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestSQLiteRepository_MarkFailedTransientKeepsQueued(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testLocation(52.0, 4.0))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.MarkFailed(ctx, []int64{id}, false))

		batch, err := repo.PeekBatch(ctx, 10)
		require.NoError(t, err)
		require.Len(t, batch, 1, "transient failure must leave the record queued")
		assert.Equal(t, i, batch[0].Attempts)
		require.NotNil(t, batch[0].LastAttemptAt)
	}
}

func TestSQLiteRepository_MarkFailedPermanentRemovesFromDrain(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	id, err := repo.Enqueue(ctx, testLocation(52.0, 4.0))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, []int64{id}, true))

	batch, err := repo.PeekBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestSQLiteRepository_EmptyBatchRejected(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, repo.MarkSent(ctx, nil), queue.ErrEmptyBatch)
	assert.ErrorIs(t, repo.MarkFailed(ctx, nil, false), queue.ErrEmptyBatch)
}

func TestSQLiteRepository_PurgeSent(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	old := testLocation(52.0, 4.0)
	old.Timestamp = time.Now().Add(-48 * time.Hour).Unix()
	oldID, err := repo.Enqueue(ctx, old)
	require.NoError(t, err)

	fresh := testLocation(52.1, 4.1)
	freshID, err := repo.Enqueue(ctx, fresh)
	require.NoError(t, err)

	_, err = repo.Enqueue(ctx, testLocation(52.2, 4.2))
	require.NoError(t, err)

	require.NoError(t, repo.MarkSent(ctx, []int64{oldID, freshID}))

	purged, err := repo.PurgeSent(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged, "only sent records past retention are purged")

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.Queued)
}

func TestSQLiteRepository_OptionalFieldsRoundTrip(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	alt := 12.5
	bear := 271.0
	withOptionals := testLocation(52.0, 4.0)
	withOptionals.Altitude = &alt
	withOptionals.Bearing = &bear

	_, err := repo.Enqueue(ctx, withOptionals)
	require.NoError(t, err)

	_, err = repo.Enqueue(ctx, testLocation(52.1, 4.1))
	require.NoError(t, err)

	batch, err := repo.PeekBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	require.NotNil(t, batch[0].Altitude)
	assert.Equal(t, alt, *batch[0].Altitude)
	require.NotNil(t, batch[0].Bearing)
	assert.Equal(t, bear, *batch[0].Bearing)
	assert.Nil(t, batch[0].Speed)

	assert.Nil(t, batch[1].Altitude, "absent altitude must stay absent, not become zero")
	assert.Nil(t, batch[1].Bearing)
}

func TestSQLiteRepository_ConcurrentEnqueueAndMark(t *testing.T) {
	repo := queue.NewSQLiteRepository(newTestDB(t))
	ctx := context.Background()

	// Seed records for the "sync path" to mark while the "capture path"
	// keeps enqueueing.
	var seeded []int64
	for i := 0; i < 20; i++ {
		id, err := repo.Enqueue(ctx, testLocation(52.0, 4.0))
		require.NoError(t, err)
		seeded = append(seeded, id)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if _, err := repo.Enqueue(ctx, testLocation(53.0, 5.0)); err != nil {
				t.Errorf("concurrent enqueue: %v", err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for _, id := range seeded {
			if err := repo.MarkSent(ctx, []int64{id}); err != nil {
				t.Errorf("concurrent mark sent: %v", err)
				return
			}
		}
	}()

	wg.Wait()

	batch, err := repo.PeekBatch(ctx, 100)
	require.NoError(t, err)
	require.Len(t, batch, 20)

	// Ordering survives interleaved sync activity.
	for i := 1; i < len(batch); i++ {
		assert.Greater(t, batch[i].ID, batch[i-1].ID)
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), stats.Sent)
	assert.Equal(t, int64(20), stats.Queued)
}
