package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newCard(now time.Time, title, url string) *models.Entity {
	return models.NewEntity(models.EntityCard, models.NewCard("ws1", url, title), now)
}

func setupStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "pawkit.db"), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestPutAndGet(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))

	got, err := s.Get(ctx, models.EntityCard, card.ID)
	require.NoError(t, err)
	assert.Equal(t, "Example", got.Fields[models.FieldTitle])
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.Synced)

	_, err = s.Get(ctx, models.EntityCard, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateBumpsVersionAndQueues(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))

	updated, err := s.Update(ctx, models.EntityCard, card.ID, models.Fields{models.FieldTitle: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "Renamed", updated.Fields[models.FieldTitle])
	assert.Equal(t, "https://example.com", updated.Fields[models.FieldURL])

	items, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.OpCreate, items[0].Op)
	assert.Equal(t, "Renamed", items[0].Payload[models.FieldTitle])
}

func TestSoftDeleteHidesFromQuery(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))
	require.NoError(t, s.SoftDelete(ctx, models.EntityCard, card.ID))

	live, err := s.Query(ctx, models.EntityCard, QueryOptions{WorkspaceID: "ws1"})
	require.NoError(t, err)
	assert.Empty(t, live)

	deleted, err := s.Query(ctx, models.EntityCard, QueryOptions{OnlyDeleted: true})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.True(t, deleted[0].Deleted)
	require.NotNil(t, deleted[0].DeletedAt)

	got, err := s.Get(ctx, models.EntityCard, card.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
}

func TestRestoreWithinRetention(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))
	require.NoError(t, s.SoftDelete(ctx, models.EntityCard, card.ID))

	clock.Advance(24 * time.Hour)
	require.NoError(t, s.Restore(ctx, models.EntityCard, card.ID))

	got, err := s.Get(ctx, models.EntityCard, card.ID)
	require.NoError(t, err)
	assert.False(t, got.Deleted)
	assert.Nil(t, got.DeletedAt)

	live, err := s.Query(ctx, models.EntityCard, QueryOptions{WorkspaceID: "ws1"})
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestPurgeDeletedRespectsRetention(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	old := newCard(s.now(), "Old", "https://old.example.com")
	require.NoError(t, s.Put(ctx, old))
	require.NoError(t, s.SoftDelete(ctx, models.EntityCard, old.ID))

	clock.Advance(20 * 24 * time.Hour)
	fresh := newCard(s.now(), "Fresh", "https://fresh.example.com")
	require.NoError(t, s.Put(ctx, fresh))
	require.NoError(t, s.SoftDelete(ctx, models.EntityCard, fresh.ID))

	clock.Advance(15 * 24 * time.Hour)
	purged, err := s.PurgeDeleted(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = s.Get(ctx, models.EntityCard, old.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.Get(ctx, models.EntityCard, fresh.ID)
	assert.NoError(t, err)
}

func TestQueueCoalescesUpdates(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))
	_, err := s.Update(ctx, models.EntityCard, card.ID, models.Fields{models.FieldTitle: "First"})
	require.NoError(t, err)
	_, err = s.Update(ctx, models.EntityCard, card.ID, models.Fields{models.FieldTitle: "Second"})
	require.NoError(t, err)

	items, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.OpCreate, items[0].Op)
	assert.Equal(t, "Second", items[0].Payload[models.FieldTitle])
	assert.Equal(t, int64(3), items[0].Seq)
}

func TestDeleteCancelsPendingCreate(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))
	require.NoError(t, s.SoftDelete(ctx, models.EntityCard, card.ID))

	items, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)

	// nothing is pending, so the tombstone must not read as unsynced
	got, err := s.Get(ctx, models.EntityCard, card.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.True(t, got.Synced)
}

func TestDeleteWinsOverPendingUpdate(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	// an already-synced entity arriving from the server
	card := newCard(s.now(), "Example", "https://example.com")
	card.Version = 3
	require.NoError(t, s.ApplyRemote(ctx, card))

	_, err := s.Update(ctx, models.EntityCard, card.ID, models.Fields{models.FieldTitle: "Edited"})
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, models.EntityCard, card.ID))

	items, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.OpDelete, items[0].Op)
	assert.Nil(t, items[0].Payload)
}

func TestAckSkipsWhenSequenceMoved(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))

	items, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	inflight := items[0]

	// a mutation lands while the push is in flight
	_, err = s.Update(ctx, models.EntityCard, card.ID, models.Fields{models.FieldTitle: "Newer"})
	require.NoError(t, err)

	require.NoError(t, s.AckItem(ctx, inflight))

	remaining, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "Newer", remaining[0].Payload[models.FieldTitle])
}

func TestMutationRevivesParkedItem(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))

	items, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, s.ParkItem(ctx, items[0], "server rejected payload"))

	due, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	parked, err := s.ParkedItems(ctx)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, "server rejected payload", parked[0].LastError)

	clock.Advance(time.Minute)
	_, err = s.Update(ctx, models.EntityCard, card.ID, models.Fields{models.FieldTitle: "Retry me"})
	require.NoError(t, err)

	due, err = s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 0, due[0].RetryCount)
}

func TestRescheduleHidesUntilDue(t *testing.T) {
	s, clock := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))

	items, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	next := clock.Now().Add(5 * time.Second)
	require.NoError(t, s.RescheduleItem(ctx, items[0], next, "connection refused"))

	due, err := s.DueItems(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Advance(6 * time.Second)
	due, err = s.DueItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].RetryCount)
	assert.Equal(t, "connection refused", due[0].LastError)
}

func TestApplyRemoteDoesNotQueue(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "From server", "https://example.com")
	card.Version = 7
	require.NoError(t, s.ApplyRemote(ctx, card))

	got, err := s.Get(ctx, models.EntityCard, card.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, int64(7), got.ServerVersion)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkSyncedAdoptsServerVersion(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))

	serverTime := s.now().Add(time.Second)
	require.NoError(t, s.MarkSynced(ctx, models.EntityCard, card.ID, 1, 4, serverTime))

	got, err := s.Get(ctx, models.EntityCard, card.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, int64(4), got.ServerVersion)
}

func TestMarkSyncedKeepsDirtyWhenVersionMoved(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))
	_, err := s.Update(ctx, models.EntityCard, card.ID, models.Fields{models.FieldTitle: "Newer"})
	require.NoError(t, err)

	// ack for the version-1 push arrives after the version-2 edit
	require.NoError(t, s.MarkSynced(ctx, models.EntityCard, card.ID, 1, 4, s.now()))

	got, err := s.Get(ctx, models.EntityCard, card.ID)
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, int64(4), got.ServerVersion)
}

func TestSubscribeReceivesCommittedEvents(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	var events []Event
	unsubscribe := s.Subscribe(func(ev Event) { events = append(events, ev) })

	card := newCard(s.now(), "Example", "https://example.com")
	require.NoError(t, s.Put(ctx, card))
	require.Len(t, events, 1)
	assert.Equal(t, EventPut, events[0].Kind)
	assert.Equal(t, card.ID, events[0].ID)

	unsubscribe()
	require.NoError(t, s.SoftDelete(ctx, models.EntityCard, card.ID))
	assert.Len(t, events, 1)
}

func TestPullWatermarkRoundTrip(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	at, err := s.LastPulledAt(ctx)
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	mark := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetLastPulledAt(ctx, mark))

	at, err = s.LastPulledAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, mark, at)
}
