// Package cli is the pawkit command-line client: local-first card
// management backed by the sync engine.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/TheVisher/pawkit-sync/internal/blob"
	"github.com/TheVisher/pawkit-sync/internal/broadcast"
	"github.com/TheVisher/pawkit-sync/internal/config"
	"github.com/TheVisher/pawkit-sync/internal/conflict"
	"github.com/TheVisher/pawkit-sync/internal/device"
	"github.com/TheVisher/pawkit-sync/internal/logging"
	"github.com/TheVisher/pawkit-sync/internal/queue"
	"github.com/TheVisher/pawkit-sync/internal/remote"
	"github.com/TheVisher/pawkit-sync/internal/store"
	"github.com/TheVisher/pawkit-sync/internal/syncer"
)

type App struct {
	cfg       *config.Config
	store     *store.Store
	tracker   *device.Tracker
	client    *remote.Client
	engine    *queue.Engine
	syncer    *syncer.Syncer
	bus       *broadcast.Bus
	blobs     blob.Provider
	logger    logging.Logger
	tokenPath string

	out    io.Writer
	reader *bufio.Reader
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	tracker, err := device.NewTracker(ctx, st.DB(), time.Now)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialise device identity: %w", err)
	}

	tokenPath := cfg.DatabasePath + ".token"
	tokens := &remote.CheckedTokenSource{Source: fileTokenSource(tokenPath)}
	client := remote.NewClient(cfg.ServerURL, tokens, tracker.Metadata, logger)

	resolver := conflict.NewResolver(logger)
	engine := queue.NewEngine(st, client, resolver, tracker,
		queue.WithLogger(logger),
		queue.WithConcurrency(cfg.QueueConcurrency),
		queue.WithMaxAttempts(cfg.MaxAttempts))

	var blobs blob.Provider
	if cfg.Blob != nil {
		if blobs, err = blob.New(*cfg.Blob); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to configure attachment storage: %w", err)
		}
	}

	bus := broadcast.NewBus()
	syncCfg := syncer.DefaultConfig()
	syncCfg.SyncInterval = cfg.SyncInterval
	syncCfg.OnlineCheckInterval = cfg.OnlineCheckInterval
	syncCfg.TombstoneRetention = cfg.TombstoneRetention

	return &App{
		cfg:       cfg,
		store:     st,
		tracker:   tracker,
		client:    client,
		engine:    engine,
		syncer:    syncer.New(st, engine, client, resolver, tracker, bus, syncCfg, logger),
		bus:       bus,
		blobs:     blobs,
		logger:    logger,
		tokenPath: tokenPath,
		out:       os.Stdout,
		reader:    bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// Run dispatches one subcommand. The remaining args belong to the command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return fmt.Errorf("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx)
	case "add":
		return a.Add(ctx, rest)
	case "list":
		return a.List(ctx, rest)
	case "delete":
		return a.Delete(ctx, rest)
	case "restore":
		return a.Restore(ctx, rest)
	case "attach":
		return a.Attach(ctx, rest)
	case "detach":
		return a.Detach(ctx, rest)
	case "sync":
		return a.Sync(ctx)
	case "status":
		return a.Status(ctx)
	case "enrich":
		return a.Enrich(ctx, rest)
	case "daemon":
		return a.Daemon(ctx)
	case "help":
		a.usage()
		return nil
	default:
		a.usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, `Usage: pawkit [flags] <command>

Commands:
  register            create an account on the sync server
  login               sign in and store an access token
  add <url> [title]   save a bookmark card
  list                show cards in the local replica
  delete <id>         soft-delete a card
  restore <id>        undo a recent delete
  attach <id> <file>  upload a file and link it to a card
  detach <id>         remove a card's attachment
  sync                run one foreground sync pass
  status              show queue and sync state
  enrich <id>         fetch page metadata for a card
  daemon              run background sync and the change-signal socket`)
}

func (a *App) touch(ctx context.Context) {
	if err := a.tracker.MarkActive(ctx); err != nil {
		a.logger.Warn(ctx, "failed to record device activity", "error", err)
	}
}
