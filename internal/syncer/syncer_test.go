package syncer

import (
	"context"
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
	"github.com/TheVisher/pawkit-sync/internal/store"
)

type fakePuller struct {
	pull    func(since time.Time) (*remote.PullResponse, error)
	pingErr error
	pulls   int
}

func (f *fakePuller) Pull(ctx context.Context, since time.Time) (*remote.PullResponse, error) {
	f.pulls++
	if f.pull != nil {
		return f.pull(since)
	}
	return &remote.PullResponse{ServerTime: time.Now().UTC()}, nil
}

func (f *fakePuller) Ping(ctx context.Context) error { return f.pingErr }

type fakeDrainer struct {
	report queue.Report
	err    error
	drains int
}

func (f *fakeDrainer) Drain(ctx context.Context) (queue.Report, error) {
	f.drains++
	return f.report, f.err
}

type fakeDevice struct {
	meta models.DeviceMetadata
}

func (f *fakeDevice) Metadata() models.DeviceMetadata { return f.meta }

type env struct {
	store   *store.Store
	puller  *fakePuller
	drainer *fakeDrainer
	bus     *broadcast.Bus
	syncer  *Syncer
	clock   *time.Time
}

func setup(t *testing.T) *env {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := &env{clock: &now}

	s, err := store.Open(context.Background(),
		filepath.Join(t.TempDir(), "pawkit.db"),
		store.WithClock(func() time.Time { return *e.clock }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e.store = s
	e.puller = &fakePuller{}
	e.drainer = &fakeDrainer{}
	e.bus = broadcast.NewBus()
	e.syncer = New(s, e.drainer, e.puller, conflict.NewResolver(nil),
		&fakeDevice{meta: models.DeviceMetadata{DeviceID: "device-local", Active: true}},
		e.bus, DefaultConfig(), nil)
	return e
}

func record(title string, version int64, modified time.Time) remote.Record {
	return remote.Record{
		Type:       models.EntityCard,
		ID:         "c1",
		Fields:     models.Fields{models.FieldTitle: title, models.FieldURL: "https://example.com"},
		Version:    version,
		ModifiedAt: modified,
		DeviceID:   "device-remote",
	}
}

func TestPassAppliesPulledRecords(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	serverTime := e.clock.Add(time.Second)
	e.puller.pull = func(time.Time) (*remote.PullResponse, error) {
		return &remote.PullResponse{
			Records:    []remote.Record{record("From server", 3, *e.clock)},
			ServerTime: serverTime,
		}, nil
	}

	signals, cancel := e.bus.Subscribe()
	defer cancel()

	require.NoError(t, e.syncer.syncOnce(ctx))
	assert.Equal(t, 1, e.drainer.drains)

	got, err := e.store.Get(ctx, models.EntityCard, "c1")
	require.NoError(t, err)
	assert.Equal(t, "From server", got.Fields[models.FieldTitle])
	assert.True(t, got.Synced)

	mark, err := e.store.LastPulledAt(ctx)
	require.NoError(t, err)
	assert.Equal(t, serverTime, mark)

	kinds := drainSignals(signals)
	assert.Contains(t, kinds, broadcast.KindDataChanged)
}

func TestPassSkipsRecordsLocalIsAheadOf(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	base := record("Base", 3, *e.clock)
	require.NoError(t, e.store.ApplyRemote(ctx, base.Entity()))
	_, err := e.store.Update(ctx, models.EntityCard, "c1", models.Fields{models.FieldTitle: "Local edit"})
	require.NoError(t, err)

	// the server echoes the base version back; it must not clobber the
	// pending local edit
	e.puller.pull = func(time.Time) (*remote.PullResponse, error) {
		return &remote.PullResponse{Records: []remote.Record{base}}, nil
	}
	require.NoError(t, e.syncer.syncOnce(ctx))

	got, err := e.store.Get(ctx, models.EntityCard, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Local edit", got.Fields[models.FieldTitle])
	assert.False(t, got.Synced)
}

func TestPassResolvesPulledConflict(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	base := record("Base", 3, *e.clock)
	require.NoError(t, e.store.ApplyRemote(ctx, base.Entity()))
	_, err := e.store.Update(ctx, models.EntityCard, "c1", models.Fields{models.FieldTitle: "Milk"})
	require.NoError(t, err)

	// a newer server write from a device that was active
	serverRec := record("2% Milk", 5, e.clock.Add(time.Minute))
	serverRec.DeviceActive = true
	e.syncer.device = &fakeDevice{meta: models.DeviceMetadata{DeviceID: "device-local", Active: false}}
	e.puller.pull = func(time.Time) (*remote.PullResponse, error) {
		return &remote.PullResponse{Records: []remote.Record{serverRec}}, nil
	}
	require.NoError(t, e.syncer.syncOnce(ctx))

	got, err := e.store.Get(ctx, models.EntityCard, "c1")
	require.NoError(t, err)
	assert.Equal(t, "2% Milk", got.Fields[models.FieldTitle])
	assert.True(t, got.Synced)

	// the obsolete local push is gone
	n, err := e.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPassKeepsLocalWinAndRequeues(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	base := record("Base", 3, *e.clock)
	require.NoError(t, e.store.ApplyRemote(ctx, base.Entity()))
	_, err := e.store.Update(ctx, models.EntityCard, "c1", models.Fields{models.FieldTitle: "Milk"})
	require.NoError(t, err)

	serverRec := record("2% Milk", 5, e.clock.Add(-time.Minute))
	e.puller.pull = func(time.Time) (*remote.PullResponse, error) {
		return &remote.PullResponse{Records: []remote.Record{serverRec}}, nil
	}
	require.NoError(t, e.syncer.syncOnce(ctx))

	got, err := e.store.Get(ctx, models.EntityCard, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Milk", got.Fields[models.FieldTitle])
	assert.False(t, got.Synced)

	item, err := e.store.GetQueueItem(ctx, models.EntityCard, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.BaseVersion)
}

func TestOfflineEnteredOnNetworkFailure(t *testing.T) {
	e := setup(t)

	e.puller.pull = func(time.Time) (*remote.PullResponse, error) {
		return nil, &remote.Error{Kind: remote.KindRetryable, Message: "dial tcp: connection refused"}
	}
	e.syncer.runPass(context.Background())
	assert.Equal(t, StateOffline, e.syncer.State())
}

func TestSyncErrorPublishedOnRejection(t *testing.T) {
	e := setup(t)

	signals, cancel := e.bus.Subscribe()
	defer cancel()

	e.puller.pull = func(time.Time) (*remote.PullResponse, error) {
		return nil, &remote.Error{Status: 401, Kind: remote.KindUnauthorized}
	}
	e.syncer.runPass(context.Background())
	assert.Equal(t, StateIdle, e.syncer.State())

	kinds := drainSignals(signals)
	assert.Contains(t, kinds, broadcast.KindSyncError)
}

func TestTriggerSyncCoalesces(t *testing.T) {
	e := setup(t)

	// bursts never block and collapse to one queued trigger
	for i := 0; i < 10; i++ {
		e.syncer.TriggerSync()
	}
	assert.Equal(t, 1, len(e.syncer.trigger))
}

func TestRunProcessesTriggerThenStops(t *testing.T) {
	e := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.syncer.Run(ctx) }()

	require.Eventually(t, func() bool { return e.puller.pulls >= 1 },
		2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func drainSignals(ch <-chan broadcast.Signal) []broadcast.Kind {
	var kinds []broadcast.Kind
	for {
		select {
		case s := <-ch:
			kinds = append(kinds, s.Kind)
		default:
			return kinds
		}
	}
}
