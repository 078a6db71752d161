package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheVisher/pawkit-sync/internal/cli"
	"github.com/TheVisher/pawkit-sync/internal/config"
	"github.com/TheVisher/pawkit-sync/internal/flagx"
	"github.com/TheVisher/pawkit-sync/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pawkit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// config flags are shared with the subcommand line; everything else
	// belongs to the command itself
	args := flagx.ExcludeArgs(os.Args[1:],
		[]string{"-a", "-d", "-s", "-i", "-b", "-c", "-config"})
	return app.Run(ctx, args)
}
