package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/substrate/internal/config"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/internal/core/observability/tracing"
	"github.com/zeusync/substrate/internal/core/world"
	"github.com/zeusync/substrate/internal/injector"
)

func main() {
	var flags config.Flags
	flags.Register(flag.CommandLine)
	demo := flag.Bool("demo", true, "Spawn the demo scene")
	flag.Parse()

	if err := run(flags, *demo); err != nil {
		fmt.Fprintln(os.Stderr, "substrate:", err)
		os.Exit(1)
	}
}

func run(flags config.Flags, demo bool) error {
	cfg, err := flags.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()
	logger := app.Logger

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer tracing.Shutdown(context.Background(), shutdownTracing, 5*time.Second, logger)

	if demo {
		spawnScene(app.World, logger)
	}

	logger.Info("substrate starting",
		log.Stringer("world", app.World.ID()),
		log.Duration("tick_interval", cfg.World.TickInterval),
		log.String("addr", cfg.Server.Addr))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return simulate(ctx, app.World, cfg.World.TickInterval, logger)
	})
	g.Go(func() error {
		return app.Server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		app.Hub.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("substrate stopped", log.Uint64("ticks", app.World.Stats().Ticks))
	return nil
}

// simulate ticks w at a fixed interval until ctx is done. Tick errors are
// transient replication failures and only get logged.
func simulate(ctx context.Context, w *world.World, interval time.Duration, logger log.Log) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("tick failed", log.Error(err))
			}
		}
	}
}
