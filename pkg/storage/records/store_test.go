package records

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"gitevents/pkg/events"
	"gitevents/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "events.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(value string) *string {
	return &value
}

func pushRecord(timestamp string) events.Record {
	return events.Record{
		RequestID:  strPtr("sha-" + timestamp),
		Author:     strPtr("alice"),
		Action:     events.ActionPush,
		FromBranch: strPtr(""),
		ToBranch:   strPtr("main"),
		Timestamp:  strPtr(timestamp),
	}
}

// TestRecentEventsLimitAndOrder tests that the window is bounded and newest first.
func TestRecentEventsLimitAndOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Insert out of order so the result depends on the query, not insertion.
	for _, i := range []int{3, 17, 0, 24, 9, 12, 21, 5, 1, 19, 8, 14, 22, 2, 11, 16, 6, 23, 10, 4, 18, 13, 7, 20, 15} {
		require.NoError(t, store.InsertEvent(ctx, pushRecord(fmt.Sprintf("2024-01-01T00:00:%02dZ", i))))
	}

	recent, err := store.RecentEvents(ctx, storage.DefaultRecentLimit)
	require.NoError(t, err)
	require.Len(t, recent, 20)

	timestamps := make([]string, 0, len(recent))
	for _, record := range recent {
		timestamps = append(timestamps, *record.Timestamp)
	}
	assert.True(t, sort.SliceIsSorted(timestamps, func(i, j int) bool { return timestamps[i] > timestamps[j] }))
	assert.Equal(t, "2024-01-01T00:00:24Z", timestamps[0])
	assert.Equal(t, "2024-01-01T00:00:05Z", timestamps[19])
}

// TestRecentEventsRoundTrip tests that stored fields come back unchanged,
// including null values.
func TestRecentEventsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	merge := events.Record{
		RequestID:  strPtr("42"),
		Author:     nil,
		Action:     events.ActionMerge,
		FromBranch: strPtr("feature"),
		ToBranch:   strPtr("main"),
		Timestamp:  strPtr("2024-02-01T00:00:00Z"),
	}
	require.NoError(t, store.InsertEvent(ctx, merge))

	recent, err := store.RecentEvents(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, merge, recent[0])
}

// TestRecentEventsNullTimestampsLast tests that records without a timestamp
// never displace timestamped ones.
func TestRecentEventsNullTimestampsLast(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	untimed := pushRecord("")
	untimed.Timestamp = nil
	require.NoError(t, store.InsertEvent(ctx, untimed))
	require.NoError(t, store.InsertEvent(ctx, pushRecord("2024-01-01T00:00:00Z")))
	require.NoError(t, store.InsertEvent(ctx, pushRecord("2023-01-01T00:00:00Z")))

	recent, err := store.RecentEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "2024-01-01T00:00:00Z", *recent[0].Timestamp)
	assert.Equal(t, "2023-01-01T00:00:00Z", *recent[1].Timestamp)
	assert.Nil(t, recent[2].Timestamp)
}

// TestInsertEventDuplicates tests that repeated deliveries are all kept.
func TestInsertEventDuplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record := pushRecord("2024-01-01T00:00:00Z")
	require.NoError(t, store.InsertEvent(ctx, record))
	require.NoError(t, store.InsertEvent(ctx, record))

	recent, err := store.RecentEvents(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

// TestInsertEventRejectsUnknownAction tests the closed action set at the store.
func TestInsertEventRejectsUnknownAction(t *testing.T) {
	store := openTestStore(t)

	err := store.InsertEvent(context.Background(), events.Record{Action: "DELETE"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrInvalidAction))

	recent, err := store.RecentEvents(context.Background(), 20)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

// TestRecentEventsNonPositiveLimit tests that a zero window is empty, not nil.
func TestRecentEventsNonPositiveLimit(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.InsertEvent(context.Background(), pushRecord("2024-01-01T00:00:00Z")))

	recent, err := store.RecentEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, recent)
	assert.Empty(t, recent)
}

// TestOpenValidation tests configuration errors reported by Open.
func TestOpenValidation(t *testing.T) {
	_, err := Open(Config{Driver: "sqlite"})
	assert.Error(t, err)

	_, err = Open(Config{Driver: "mongodb", DSN: "mongodb://localhost"})
	assert.Error(t, err)
}

// TestNormalizeDriver tests the accepted driver aliases.
func TestNormalizeDriver(t *testing.T) {
	assert.Equal(t, "postgres", normalizeDriver("PostgreSQL"))
	assert.Equal(t, "postgres", normalizeDriver("pgx"))
	assert.Equal(t, "mysql", normalizeDriver(" mysql "))
	assert.Equal(t, "sqlite", normalizeDriver("sqlite3"))
	assert.Equal(t, "", normalizeDriver("mongo"))
}
