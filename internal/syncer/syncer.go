// Package syncer orchestrates sync passes: drain the outbound queue, pull
// server changes, reconcile them against local state, keep the offline
// state machine and tell the rest of the app when data moved.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/broadcast"
	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/conflict"
	"github.com/TheVisher/pawkit-sync/internal/logging"
	"github.com/TheVisher/pawkit-sync/internal/models"
	"github.com/TheVisher/pawkit-sync/internal/queue"
	"github.com/TheVisher/pawkit-sync/internal/remote"
	"github.com/TheVisher/pawkit-sync/internal/store"
)

// State is where the orchestrator currently is.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateOffline State = "offline"
)

// Puller is the server-facing surface the orchestrator needs beyond the
// drain engine.
type Puller interface {
	Pull(ctx context.Context, since time.Time) (*remote.PullResponse, error)
	Ping(ctx context.Context) error
}

// Drainer pushes the outbound queue.
type Drainer interface {
	Drain(ctx context.Context) (queue.Report, error)
}

// Config tunes the orchestrator loops.
type Config struct {
	// SyncInterval is the cadence of background passes while online.
	SyncInterval time.Duration

	// OnlineCheckInterval is how often a reconnect probe runs while
	// offline.
	OnlineCheckInterval time.Duration

	// PurgeInterval is how often expired tombstones are dropped.
	PurgeInterval time.Duration

	// TombstoneRetention is how long soft-deleted rows stay restorable.
	TombstoneRetention time.Duration
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		SyncInterval:        time.Minute,
		OnlineCheckInterval: 15 * time.Second,
		PurgeInterval:       time.Hour,
		TombstoneRetention:  30 * 24 * time.Hour,
	}
}

// Syncer runs sync passes. One pass at a time; triggers received mid-pass
// coalesce into exactly one follow-up pass.
type Syncer struct {
	store    *store.Store
	engine   Drainer
	client   Puller
	resolver *conflict.Resolver
	device   queue.DeviceInfo
	bus      *broadcast.Bus
	cfg      Config
	logger   logging.Logger

	trigger chan struct{}

	mu    sync.Mutex
	state State
}

func New(s *store.Store, engine Drainer, client Puller, resolver *conflict.Resolver,
	dev queue.DeviceInfo, bus *broadcast.Bus, cfg Config, logger logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Syncer{
		store:    s,
		engine:   engine,
		client:   client,
		resolver: resolver,
		device:   dev,
		bus:      bus,
		cfg:      cfg,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		state:    StateIdle,
	}
}

// State reports the current orchestrator state.
func (y *Syncer) State() State {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.state
}

func (y *Syncer) setState(s State) {
	y.mu.Lock()
	y.state = s
	y.mu.Unlock()
}

// TriggerSync requests a pass without blocking. Bursts coalesce: at most
// one pass is ever queued behind the running one.
func (y *Syncer) TriggerSync() {
	select {
	case y.trigger <- struct{}{}:
	default:
	}
}

// Run drives the orchestrator until ctx is cancelled. Local mutations
// trigger passes through the store subscription; an interval timer covers
// changes made elsewhere.
func (y *Syncer) Run(ctx context.Context) error {
	unsubscribe := y.store.Subscribe(func(ev store.Event) {
		if ev.Kind != store.EventApplied {
			y.TriggerSync()
		}
	})
	defer unsubscribe()

	interval := time.NewTicker(y.cfg.SyncInterval)
	defer interval.Stop()
	purge := time.NewTicker(y.cfg.PurgeInterval)
	defer purge.Stop()

	y.TriggerSync()

	for {
		if y.State() == StateOffline {
			if err := y.waitForReconnect(ctx); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-y.trigger:
			y.runPass(ctx)
		case <-interval.C:
			y.runPass(ctx)
		case <-purge.C:
			y.purgeTombstones(ctx)
		}
	}
}

// waitForReconnect probes the server until it answers, then leaves the
// offline state and schedules a catch-up pass.
func (y *Syncer) waitForReconnect(ctx context.Context) error {
	probe := time.NewTicker(y.cfg.OnlineCheckInterval)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-probe.C:
			if err := y.client.Ping(ctx); err == nil {
				y.logger.Info(ctx, "server reachable again")
				y.setState(StateIdle)
				y.TriggerSync()
				return nil
			}
		}
	}
}

func (y *Syncer) runPass(ctx context.Context) {
	y.setState(StateSyncing)
	err := y.syncOnce(ctx)
	switch {
	case err == nil:
		y.setState(StateIdle)
		y.bus.Publish(broadcast.Signal{Kind: broadcast.KindSyncCompleted, At: y.store.Now()})
	case isOffline(err):
		y.logger.Warn(ctx, "server unreachable, entering offline state", "error", err)
		y.setState(StateOffline)
	default:
		y.logger.Error(ctx, "sync pass failed", "error", err)
		y.setState(StateIdle)
		y.bus.Publish(broadcast.Signal{
			Kind: broadcast.KindSyncError, Message: err.Error(), At: y.store.Now(),
		})
	}
}

// SyncNow runs one foreground push-then-pull pass and returns its error
// directly instead of folding it into the background state machine.
func (y *Syncer) SyncNow(ctx context.Context) error {
	return y.syncOnce(ctx)
}

func (y *Syncer) syncOnce(ctx context.Context) error {
	report, err := y.engine.Drain(ctx)
	if err != nil {
		return err
	}
	y.logger.Debug(ctx, "queue drained",
		"pushed", report.Pushed, "rescheduled", report.Rescheduled,
		"conflicts", report.Conflicts, "parked", report.Parked)

	changed, err := y.pull(ctx)
	if err != nil {
		return err
	}
	if changed > 0 {
		y.bus.Publish(broadcast.Signal{Kind: broadcast.KindDataChanged, At: y.store.Now()})
	}

	// a merged conflict re-queued a push; finish it now rather than
	// waiting for the next interval
	if report.Conflicts > 0 {
		y.TriggerSync()
	}
	return nil
}

// pull fetches server changes since the watermark and reconciles each
// record against local state.
func (y *Syncer) pull(ctx context.Context) (int, error) {
	since, err := y.store.LastPulledAt(ctx)
	if err != nil {
		return 0, err
	}
	resp, err := y.client.Pull(ctx, since)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, rec := range resp.Records {
		applied, err := y.applyRecord(ctx, rec)
		if err != nil {
			y.logger.Error(ctx, "failed to apply pulled record",
				"entity_type", rec.Type, "entity_id", rec.ID, "error", err)
			continue
		}
		if applied {
			changed++
		}
	}

	if !resp.ServerTime.IsZero() {
		if err := y.store.SetLastPulledAt(ctx, resp.ServerTime); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func (y *Syncer) applyRecord(ctx context.Context, rec remote.Record) (bool, error) {
	local, err := y.store.Get(ctx, rec.Type, rec.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return false, err
	}

	switch conflict.Classify(local, rec.Version) {
	case conflict.ClassClean:
		return true, y.store.ApplyRemote(ctx, rec.Entity())
	case conflict.ClassLocalAhead:
		return false, nil
	}

	return y.resolvePulled(ctx, local, rec)
}

func (y *Syncer) resolvePulled(ctx context.Context, local *models.Entity, rec remote.Record) (bool, error) {
	item, err := y.store.GetQueueItem(ctx, rec.Type, rec.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return false, err
	}

	server := rec.Entity()
	res, err := y.resolver.Resolve(ctx, conflict.Input{
		Local:       local,
		LocalDevice: y.device.Metadata(),
		Server:      server,
		ServerDevice: models.DeviceMetadata{
			DeviceID: rec.DeviceID,
			Active:   rec.DeviceActive,
		},
		SkipConflictCheck: item != nil && item.SkipConflictCheck,
	})
	if errors.Is(err, common.ErrAmbiguousMerge) {
		if logErr := y.store.LogConflict(ctx, rec.Type, rec.ID,
			local.Version, server.Version, "none"); logErr != nil {
			y.logger.Error(ctx, "failed to log conflict", "error", logErr)
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if logErr := y.store.LogConflict(ctx, rec.Type, rec.ID,
		local.Version, server.Version, string(res.Outcome)); logErr != nil {
		y.logger.Error(ctx, "failed to log conflict", "error", logErr)
	}

	if res.Outcome == conflict.OutcomeServer {
		if err := y.store.RemoveItem(ctx, rec.Type, rec.ID); err != nil {
			return false, err
		}
		return true, y.store.SaveResolved(ctx, res.Record)
	}

	if err := y.store.SaveResolved(ctx, res.Record); err != nil {
		return false, err
	}
	if item != nil {
		err := y.store.ReplaceItemPayload(ctx, item, res.Push, server.Version)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return true, err
		}
	}
	return true, nil
}

func (y *Syncer) purgeTombstones(ctx context.Context) {
	purged, err := y.store.PurgeDeleted(ctx, y.cfg.TombstoneRetention)
	if err != nil {
		y.logger.Error(ctx, "tombstone purge failed", "error", err)
		return
	}
	if purged > 0 {
		y.logger.Info(ctx, "purged expired tombstones", "count", purged)
	}
}

// isOffline reports whether the error means the server is unreachable as
// opposed to rejecting us.
func isOffline(err error) bool {
	var re *remote.Error
	if errors.As(err, &re) {
		return re.Kind == remote.KindRetryable && re.Status == 0
	}
	return false
}
