package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mindmesh/pulse/internal/config"
	"github.com/mindmesh/pulse/internal/stimulus"
	"github.com/mindmesh/pulse/internal/telemetry"
)

// routePoll is how often the fleet router sweeps the shared inbox for
// envelopes that arrived without an interrupt flag.
const routePoll = 100 * time.Millisecond

// Run drives the tick loop until the context is cancelled. The wall
// interval between ticks follows the speed controller's decision; an
// interrupt-flagged stimulus cuts the wait short.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting",
		"nodes", e.store.NodeCount(), "entities", len(e.store.EntityIDs()))

	timer := time.NewTimer(e.cfg.Tick.MinInterval.Std())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", "tick", e.tick)
			return ctx.Err()
		case <-timer.C:
		case <-e.queue.Wake():
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		d := e.Step(time.Now())
		timer.Reset(d.Interval)
	}
}

// Fleet runs one engine per configured graph and routes stimuli between
// them by the envelope's graph selector.
type Fleet struct {
	cfg     *config.Config
	logger  *slog.Logger
	engines map[string]*Engine
	inbox   *stimulus.Queue
}

// NewFleet builds an engine for every configured graph. All engines share
// the telemetry bus; each stamps its own graph name on log records.
func NewFleet(cfg *config.Config, logger *slog.Logger, bus *telemetry.Bus) (*Fleet, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	engines := make(map[string]*Engine, len(cfg.Graphs))
	for _, name := range cfg.Graphs {
		e, err := New(name, cfg, logger, bus)
		if err != nil {
			return nil, err
		}
		engines[name] = e
	}
	return &Fleet{
		cfg:     cfg,
		logger:  logger,
		engines: engines,
		inbox:   stimulus.NewQueue(cfg.Stimulus.QueueLimit),
	}, nil
}

// Engine returns the named engine, or nil if no such graph is configured.
func (f *Fleet) Engine(name string) *Engine {
	return f.engines[name]
}

// Names lists the configured graphs in sorted order.
func (f *Fleet) Names() []string {
	names := make([]string, 0, len(f.engines))
	for name := range f.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status reports every engine's state keyed by graph name.
func (f *Fleet) Status() map[string]Status {
	out := make(map[string]Status, len(f.engines))
	for name, e := range f.engines {
		out[name] = e.Status()
	}
	return out
}

// Route delivers one envelope to the engine its graph selector names.
func (f *Fleet) Route(env stimulus.Envelope) error {
	e, ok := f.engines[env.Graph]
	if !ok {
		return fmt.Errorf("no graph %q", env.Graph)
	}
	return e.Inject(env)
}

// Run starts every engine plus, when a drop directory is configured, the
// file watcher and the router that dispatches watched envelopes. The first
// failure cancels the rest.
func (f *Fleet) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, e := range f.engines {
		e := e
		g.Go(func() error { return e.Run(ctx) })
	}

	if f.cfg.Stimulus.DropDir != "" {
		watcher := stimulus.NewWatcher(f.cfg.Stimulus.DropDir, f.inbox, f.logger)
		g.Go(func() error { return watcher.Run(ctx) })
		g.Go(func() error { return f.route(ctx) })
	}

	return g.Wait()
}

// route sweeps the shared inbox and hands each envelope to its engine.
// Interrupt envelopes wake the sweep immediately; the rest ride the poll.
func (f *Fleet) route(ctx context.Context) error {
	ticker := time.NewTicker(routePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-f.inbox.Wake():
		}

		for _, env := range f.inbox.Drain(0) {
			if err := f.Route(env); err != nil {
				f.logger.Warn("stimulus dropped", "id", env.ID, "graph", env.Graph, "error", err)
			}
		}
	}
}
