// Package queue drains the outbound change queue: due items are pushed to
// the server with bounded concurrency, transient failures reschedule with
// exponential backoff, version conflicts run through the resolver, and
// permanent failures park.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/conflict"
	"github.com/TheVisher/pawkit-sync/internal/logging"
	"github.com/TheVisher/pawkit-sync/internal/models"
	"github.com/TheVisher/pawkit-sync/internal/remote"
	"github.com/TheVisher/pawkit-sync/internal/store"
)

const (
	// DefaultMaxAttempts is the retry budget before an item parks.
	DefaultMaxAttempts = 8

	// DefaultConcurrency bounds parallel pushes per drain pass.
	DefaultConcurrency = 3
)

// Pusher sends one queue item to the server.
type Pusher interface {
	Push(ctx context.Context, item *models.QueueItem) (*remote.PushResponse, error)
}

// DeviceInfo snapshots local device metadata for conflict resolution.
type DeviceInfo interface {
	Metadata() models.DeviceMetadata
}

// Report summarises one drain pass.
type Report struct {
	Pushed      int
	Rescheduled int
	Conflicts   int
	Parked      int
}

// Engine drains the queue. Safe for concurrent Drain calls, though the
// orchestrator serialises them.
type Engine struct {
	store       *store.Store
	client      Pusher
	resolver    *conflict.Resolver
	device      DeviceInfo
	backoff     Backoff
	maxAttempts int
	concurrency int
	logger      logging.Logger
}

// Option configures the engine.
type Option func(*Engine)

func WithBackoff(b Backoff) Option       { return func(e *Engine) { e.backoff = b } }
func WithMaxAttempts(n int) Option       { return func(e *Engine) { e.maxAttempts = n } }
func WithConcurrency(n int) Option       { return func(e *Engine) { e.concurrency = n } }
func WithLogger(l logging.Logger) Option { return func(e *Engine) { e.logger = l } }

func NewEngine(s *store.Store, client Pusher, resolver *conflict.Resolver, dev DeviceInfo, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		client:      client,
		resolver:    resolver,
		device:      dev,
		backoff:     DefaultBackoff(),
		maxAttempts: DefaultMaxAttempts,
		concurrency: DefaultConcurrency,
		logger:      logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Drain pushes every due item once. Items left pending (rescheduled or
// conflicted) surface on a later pass.
func (e *Engine) Drain(ctx context.Context) (Report, error) {
	items, err := e.store.DueItems(ctx, 0)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
		sem    = make(chan struct{}, e.concurrency)
	)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(item *models.QueueItem) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := e.pushOne(ctx, item)
			mu.Lock()
			switch outcome {
			case outcomePushed:
				report.Pushed++
			case outcomeRescheduled:
				report.Rescheduled++
			case outcomeConflict:
				report.Conflicts++
			case outcomeParked:
				report.Parked++
			}
			mu.Unlock()
		}(item)
	}
	wg.Wait()
	return report, ctx.Err()
}

type pushOutcome int

const (
	outcomePushed pushOutcome = iota
	outcomeRescheduled
	outcomeConflict
	outcomeParked
	outcomeSkipped
)

func (e *Engine) pushOne(ctx context.Context, item *models.QueueItem) pushOutcome {
	local, err := e.store.Get(ctx, item.EntityType, item.EntityID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		e.logger.Error(ctx, "failed to load entity for push",
			"entity_type", item.EntityType, "entity_id", item.EntityID, "error", err)
		return outcomeSkipped
	}
	var pushedVersion int64
	if local != nil {
		pushedVersion = local.Version
	}

	resp, err := e.client.Push(ctx, item)
	if err == nil {
		return e.ackPush(ctx, item, pushedVersion, resp)
	}

	var re *remote.Error
	if !errors.As(err, &re) {
		re = &remote.Error{Kind: remote.KindRetryable, Message: err.Error()}
	}

	switch re.Kind {
	case remote.KindRetryable:
		return e.reschedule(ctx, item, re.Error())
	case remote.KindConflict:
		return e.resolveConflict(ctx, item, local, re)
	default:
		e.logger.Warn(ctx, "push rejected",
			"entity_type", item.EntityType, "entity_id", item.EntityID,
			"kind", re.Kind.String(), "error", re.Error())
		if err := e.store.ParkItem(ctx, item, re.Error()); err != nil {
			e.logger.Error(ctx, "failed to park item", "error", err)
		}
		if local != nil {
			if err := e.store.SetLastError(ctx, item.EntityType, item.EntityID, re.Error()); err != nil {
				e.logger.Error(ctx, "failed to record push error", "error", err)
			}
		}
		return outcomeParked
	}
}

func (e *Engine) ackPush(ctx context.Context, item *models.QueueItem, pushedVersion int64, resp *remote.PushResponse) pushOutcome {
	if err := e.store.AckItem(ctx, item); err != nil {
		e.logger.Error(ctx, "failed to ack queue item", "error", err)
		return outcomeSkipped
	}
	if item.Op != models.OpDelete || pushedVersion > 0 {
		err := e.store.MarkSynced(ctx, item.EntityType, item.EntityID, pushedVersion, resp.Version, resp.ModifiedAt)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			e.logger.Error(ctx, "failed to mark entity synced", "error", err)
		}
	}
	e.logger.Debug(ctx, "pushed change",
		"entity_type", item.EntityType, "entity_id", item.EntityID,
		"op", item.Op, "server_version", resp.Version)
	return outcomePushed
}

func (e *Engine) reschedule(ctx context.Context, item *models.QueueItem, cause string) pushOutcome {
	if item.RetryCount+1 >= e.maxAttempts {
		e.logger.Warn(ctx, "retry budget exhausted, parking item",
			"entity_type", item.EntityType, "entity_id", item.EntityID,
			"attempts", item.RetryCount+1)
		if err := e.store.ParkItem(ctx, item, cause); err != nil {
			e.logger.Error(ctx, "failed to park item", "error", err)
		}
		return outcomeParked
	}

	next := e.store.Now().Add(e.backoff.Delay(item.RetryCount))
	if err := e.store.RescheduleItem(ctx, item, next, cause); err != nil {
		e.logger.Error(ctx, "failed to reschedule item", "error", err)
		return outcomeSkipped
	}
	return outcomeRescheduled
}

// resolveConflict runs the resolver against the record the 409 carried and
// applies its verdict: server wins drop the local push, local or merged
// wins rewrite the queued payload against the server's version.
func (e *Engine) resolveConflict(ctx context.Context, item *models.QueueItem, local *models.Entity, re *remote.Error) pushOutcome {
	if local == nil || re.ServerRecord == nil {
		if err := e.store.ParkItem(ctx, item, re.Error()); err != nil {
			e.logger.Error(ctx, "failed to park item", "error", err)
		}
		return outcomeParked
	}

	server := re.ServerRecord.Entity()
	res, err := e.resolver.Resolve(ctx, conflict.Input{
		Local:       local,
		LocalDevice: e.device.Metadata(),
		Server:      server,
		ServerDevice: models.DeviceMetadata{
			DeviceID: re.ServerRecord.DeviceID,
			Active:   re.ServerRecord.DeviceActive,
		},
		SkipConflictCheck: item.SkipConflictCheck,
	})

	if errors.Is(err, common.ErrAmbiguousMerge) {
		if logErr := e.store.LogConflict(ctx, item.EntityType, item.EntityID,
			local.Version, server.Version, "none"); logErr != nil {
			e.logger.Error(ctx, "failed to log conflict", "error", logErr)
		}
		return e.reschedule(ctx, item, err.Error())
	}
	if err != nil {
		e.logger.Error(ctx, "conflict resolution failed", "error", err)
		return outcomeSkipped
	}

	if logErr := e.store.LogConflict(ctx, item.EntityType, item.EntityID,
		local.Version, server.Version, string(res.Outcome)); logErr != nil {
		e.logger.Error(ctx, "failed to log conflict", "error", logErr)
	}

	if res.Outcome == conflict.OutcomeServer {
		if err := e.store.RemoveItem(ctx, item.EntityType, item.EntityID); err != nil {
			e.logger.Error(ctx, "failed to drop queue item", "error", err)
		}
		if err := e.store.SaveResolved(ctx, res.Record); err != nil {
			e.logger.Error(ctx, "failed to apply server record", "error", err)
		}
		return outcomeConflict
	}

	if err := e.store.SaveResolved(ctx, res.Record); err != nil {
		e.logger.Error(ctx, "failed to save merged record", "error", err)
		return outcomeSkipped
	}
	err = e.store.ReplaceItemPayload(ctx, item, res.Push, server.Version)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		e.logger.Error(ctx, "failed to requeue merged payload", "error", err)
	}
	return outcomeConflict
}
