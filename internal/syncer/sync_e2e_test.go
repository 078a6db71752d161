package syncer

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheVisher/pawkit-sync/internal/broadcast"
	"github.com/TheVisher/pawkit-sync/internal/conflict"
	"github.com/TheVisher/pawkit-sync/internal/models"
	"github.com/TheVisher/pawkit-sync/internal/queue"
	"github.com/TheVisher/pawkit-sync/internal/remote"
	"github.com/TheVisher/pawkit-sync/internal/server/entities"
	"github.com/TheVisher/pawkit-sync/internal/server/handlers"
	"github.com/TheVisher/pawkit-sync/internal/server/users"
	"github.com/TheVisher/pawkit-sync/internal/store"
)

// syncDevice bundles one device's full client stack against a shared
// server: its own store, clock, remote client and orchestrator.
type syncDevice struct {
	store  *store.Store
	client *remote.Client
	syncer *Syncer
	clock  *time.Time
}

func setupSyncServer(t *testing.T) (string, string) {
	t.Helper()

	usersSvc := users.NewService(users.NewMemoryRepository(), []byte("test-secret"), time.Hour)
	entitiesSvc := entities.NewService(entities.NewMemoryRepository())
	h := handlers.New(usersSvc, entitiesSvc, nil)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	bootstrap := remote.NewClient(srv.URL, remote.StaticTokenSource(""),
		func() models.DeviceMetadata { return models.DeviceMetadata{} }, nil)
	token, err := bootstrap.Register(context.Background(), "pair@example.com", "correct-horse-battery")
	require.NoError(t, err)
	return srv.URL, token
}

func newSyncDevice(t *testing.T, serverURL, token, deviceID string, active bool, start time.Time) *syncDevice {
	t.Helper()

	now := start
	d := &syncDevice{clock: &now}

	s, err := store.Open(context.Background(),
		filepath.Join(t.TempDir(), deviceID+".db"),
		store.WithClock(func() time.Time { return *d.clock }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	dev := &fakeDevice{meta: models.DeviceMetadata{DeviceID: deviceID, Active: active}}
	d.store = s
	d.client = remote.NewClient(serverURL, remote.StaticTokenSource(token), dev.Metadata, nil)

	resolver := conflict.NewResolver(nil)
	engine := queue.NewEngine(s, d.client, resolver, dev)
	d.syncer = New(s, engine, d.client, resolver, dev, broadcast.NewBus(), DefaultConfig(), nil)
	return d
}

func TestTwoDevicesConvergeOnActiveEdit(t *testing.T) {
	ctx := context.Background()
	serverURL, token := setupSyncServer(t)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	laptop := newSyncDevice(t, serverURL, token, "device-laptop", false, start)
	phone := newSyncDevice(t, serverURL, token, "device-phone", true, start)

	// the laptop creates the card offline, then comes online and pushes
	card := models.NewEntity(models.EntityCard,
		models.NewCard("w1", "https://example.com/milk", "Milk"), *laptop.clock)
	require.NoError(t, laptop.store.Put(ctx, card))
	require.NoError(t, laptop.syncer.SyncNow(ctx))

	// the phone pulls the card and renames it while in the foreground
	require.NoError(t, phone.syncer.SyncNow(ctx))
	pulled, err := phone.store.Get(ctx, models.EntityCard, card.ID)
	require.NoError(t, err)
	require.Equal(t, "Milk", pulled.Fields[models.FieldTitle])

	*phone.clock = phone.clock.Add(time.Minute)
	_, err = phone.store.Update(ctx, models.EntityCard, card.ID,
		models.Fields{models.FieldTitle: "2% Milk"})
	require.NoError(t, err)
	require.NoError(t, phone.syncer.SyncNow(ctx))

	// the idle laptop edits its stale copy, even later on the wall clock;
	// the rename from the device in active use still wins
	*laptop.clock = laptop.clock.Add(2 * time.Minute)
	_, err = laptop.store.Update(ctx, models.EntityCard, card.ID,
		models.Fields{models.FieldTitle: "Whole Milk"})
	require.NoError(t, err)
	require.NoError(t, laptop.syncer.SyncNow(ctx))
	require.NoError(t, phone.syncer.SyncNow(ctx))

	for name, d := range map[string]*syncDevice{"laptop": laptop, "phone": phone} {
		cards, err := d.store.Query(ctx, models.EntityCard, store.QueryOptions{})
		require.NoError(t, err, name)
		require.Len(t, cards, 1, name)
		assert.Equal(t, "2% Milk", cards[0].Fields[models.FieldTitle], name)
		assert.True(t, cards[0].Synced, name)

		pending, err := d.store.PendingCount(ctx)
		require.NoError(t, err, name)
		assert.Zero(t, pending, name)
	}

	// the server also holds exactly one copy
	resp, err := laptop.client.Pull(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "2% Milk", resp.Records[0].Fields[models.FieldTitle])
	assert.Equal(t, "device-phone", resp.Records[0].DeviceID)
}
