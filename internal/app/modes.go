package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"devctl/internal/mcpcontrol"
	"devctl/internal/reporting"
	"devctl/internal/tui"
	"devctl/pkg/logging"
)

// eventBuffer sizes the presentation subscriptions. A slow consumer loses
// events rather than stalling a publisher.
const eventBuffer = 1024

// runCLIMode renders the event stream on the console until the run ends.
func (a *Application) runCLIMode(ctx context.Context) error {
	s := a.services
	consoleSub := s.Bus.SubscribeChannel(nil, eventBuffer)
	storeSub := s.Bus.SubscribeChannel(reporting.StoreEvents(), eventBuffer)

	reporter := reporting.NewConsoleReporter(a.config.Out, processNames(*a.config.DevctlConfig)...)
	reporter.SetVerbose(a.config.LogLevel == logging.LevelDebug)

	return a.run(ctx,
		func(ctx context.Context) error {
			reporter.Run(ctx, consoleSub)
			return nil
		},
		func(ctx context.Context) error {
			feed(ctx, storeSub, s.Store, s.Tail)
			return nil
		},
	)
}

// runTUIMode shows the dashboard. The dashboard folds events into the
// shared store and tail itself.
func (a *Application) runTUIMode(ctx context.Context) error {
	s := a.services

	// Switch logging to channel-based system for TUI integration
	logChan := logging.InitForTUI(a.config.LogLevel)
	defer logging.CloseTUIChannel()

	sub := s.Bus.SubscribeChannel(nil, eventBuffer)
	return a.run(ctx, func(ctx context.Context) error {
		err := tui.Run(ctx, s.Controller, sub, s.Store, s.Tail, logChan)
		if err != nil {
			logging.Error("TUI-Lifecycle", err, "Error running TUI program")
			return err
		}
		logging.Info("TUI-Lifecycle", "TUI exited.")
		return nil
	})
}

// run starts the controller with the plan and runs the presentation
// surfaces next to it. Surfaces are cancelled once the controller is
// Stopped; a failing surface interrupts the run.
func (a *Application) run(ctx context.Context, surfaces ...func(context.Context) error) error {
	s := a.services
	defer s.Bus.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Controller.Start(s.Plan); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var runErr error
	g.Go(func() error {
		defer cancel()
		runErr = s.Controller.Run(gctx)
		return nil
	})

	if a.config.MCPPort > 0 {
		srv := mcpcontrol.NewServer(mcpcontrol.Config{
			Host:    "localhost",
			Port:    a.config.MCPPort,
			Version: a.config.Version,
		}, s.Store, s.Tail, s.Controller)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	for _, surface := range surfaces {
		surface := surface
		g.Go(func() error {
			return surface(gctx)
		})
	}

	if err := g.Wait(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

// feed folds events into store and tail until ctx is done, then drains
// what is buffered.
func feed(ctx context.Context, sub *reporting.EventSubscription, store *reporting.StateStore, tail *reporting.LogTail) {
	apply := func(ev reporting.Event) {
		store.Apply(ev)
		tail.Observe(ev)
	}
	for {
		select {
		case ev, ok := <-sub.Channel:
			if !ok {
				return
			}
			apply(ev)
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-sub.Channel:
					if !ok {
						return
					}
					apply(ev)
				default:
					return
				}
			}
		}
	}
}
