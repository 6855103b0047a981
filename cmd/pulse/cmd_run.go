package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mindmesh/pulse/internal/engine"
	"github.com/mindmesh/pulse/internal/logging"
	"github.com/mindmesh/pulse/internal/server"
	"github.com/mindmesh/pulse/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tick engine",
		Long: `Run the tick engine for every configured graph until interrupted.

Stimuli arrive through the drop directory, the control API, or both,
depending on configuration. Telemetry is written to the configured
sinks as JSON lines and/or a SQLite event database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)

			var sinks []telemetry.Sink
			var eventDB *telemetry.SQLiteSink
			if cfg.Telemetry.Dir != "" {
				sink, err := telemetry.NewJSONLSink(cfg.Telemetry.Dir)
				if err != nil {
					return err
				}
				sinks = append(sinks, sink)
			}
			if cfg.Telemetry.SQLitePath != "" {
				eventDB, err = telemetry.NewSQLiteSink(cfg.Telemetry.SQLitePath)
				if err != nil {
					return err
				}
				sinks = append(sinks, eventDB)
			}
			bus := telemetry.NewBus(sinks...)
			defer bus.Close()

			fleet, err := engine.NewFleet(cfg, logger, bus)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return fleet.Run(ctx) })
			if cfg.Server.Addr != "" {
				srv := server.New(fleet, logger)
				g.Go(func() error { return srv.Run(ctx, cfg.Server.Addr) })
			}

			err = g.Wait()

			// Export the final state of every graph before the sinks close.
			if eventDB != nil {
				for _, name := range fleet.Names() {
					snap := fleet.Engine(name).Snapshot()
					if werr := eventDB.WriteSnapshot(name, snap); werr != nil {
						logger.Warn("snapshot export failed", "graph", name, "error", werr)
					}
				}
			}

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	return cmd
}
