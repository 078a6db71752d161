package device

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheVisher/pawkit-sync/internal/store"
)

func setupTracker(t *testing.T) (*Tracker, *store.Store, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	dsn := filepath.Join(t.TempDir(), "pawkit.db")
	s, err := store.Open(context.Background(), dsn, store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tr, err := NewTracker(context.Background(), s.DB(), clock)
	require.NoError(t, err)
	return tr, s, &now
}

func TestDeviceIDStableAcrossRestarts(t *testing.T) {
	tr, s, _ := setupTracker(t)
	id := tr.DeviceID()
	require.NotEmpty(t, id)

	again, err := NewTracker(context.Background(), s.DB(), time.Now)
	require.NoError(t, err)
	assert.Equal(t, id, again.DeviceID())
}

func TestRecentlyActiveWindow(t *testing.T) {
	tr, _, now := setupTracker(t)
	assert.False(t, tr.RecentlyActive())

	require.NoError(t, tr.MarkActive(context.Background()))
	assert.True(t, tr.RecentlyActive())

	*now = now.Add(4 * time.Minute)
	assert.True(t, tr.RecentlyActive())

	*now = now.Add(2 * time.Minute)
	assert.False(t, tr.RecentlyActive())
}

func TestMarkActiveDebouncesWrites(t *testing.T) {
	tr, s, now := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.MarkActive(ctx))
	first := readLastActive(t, s)

	*now = now.Add(2 * time.Second)
	require.NoError(t, tr.MarkActive(ctx))
	assert.Equal(t, first, readLastActive(t, s))

	*now = now.Add(15 * time.Second)
	require.NoError(t, tr.MarkActive(ctx))
	assert.NotEqual(t, first, readLastActive(t, s))
}

func TestMetadataSnapshot(t *testing.T) {
	tr, _, now := setupTracker(t)
	require.NoError(t, tr.MarkActive(context.Background()))

	meta := tr.Metadata()
	assert.Equal(t, tr.DeviceID(), meta.DeviceID)
	assert.True(t, meta.Active)
	assert.Equal(t, *now, meta.LastActive)
}

func readLastActive(t *testing.T, s *store.Store) string {
	t.Helper()
	var raw string
	err := s.DB().QueryRowContext(context.Background(),
		`SELECT last_active FROM device_info WHERE id = 1`).Scan(&raw)
	require.NoError(t, err)
	return raw
}
