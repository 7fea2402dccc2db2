package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/propgen/internal/dev"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate on every change",
		Long: `Watch the project and run an incremental pass on every Go change.

Only changed declarations are rescanned and only types whose resolved
properties changed are re-emitted. Editing propgen.yaml restarts the
session with the new configuration.

With --addr (or watch.addr in propgen.yaml) a status server is started:
  /healthz      pass count and artifact count
  /metrics      Prometheus metrics
  /artifacts    current artifacts (JSON); /artifacts/<type> serves the source
  /events       WebSocket stream of pass events

Examples:
  propgen watch
  propgen watch --addr localhost:7070
  propgen watch --interval 250ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				err := runWatch(ctx, flags, addr, interval)
				if err == dev.ErrConfigChanged {
					info("Configuration changed, restarting...")
					continue
				}
				if ctx.Err() != nil {
					fmt.Println("\n  Shutting down...")
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Status server address (default from propgen.yaml; empty disables)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Polling interval (default from propgen.yaml)")

	return cmd
}

func runWatch(ctx context.Context, flags *globalFlags, addr string, interval time.Duration) error {
	p, err := loadProject(flags)
	if err != nil {
		return err
	}
	cfg := p.cfg
	if addr == "" {
		addr = cfg.Watch.Addr
	}
	if interval <= 0 {
		interval = cfg.WatchInterval()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctrl, err := p.controller(reg)
	if err != nil {
		return err
	}
	loader, err := p.loader(nil)
	if err != nil {
		return err
	}
	watcher, err := dev.NewWatcher(dev.WatcherConfig{
		Root:     cfg.Dir(),
		Paths:    dev.CollectWatchPaths(cfg),
		Ignore:   cfg.Watch.Ignore,
		Interval: interval,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hub *dev.Hub
	serverErr := make(chan error, 1)
	if addr != "" {
		hub = dev.NewHub(p.logger)
		srv := dev.NewServer(dev.ServerOptions{
			Addr:      addr,
			Artifacts: ctrl,
			Gatherer:  reg,
			Hub:       hub,
			Logger:    p.logger,
		})
		go func() {
			serverErr <- srv.Start(ctx)
		}()
		info("Status server at http://%s", addr)
	}

	session := dev.NewSession(dev.SessionOptions{
		Watcher:    watcher,
		Loader:     loader,
		Controller: ctrl,
		Builder:    p.builder(false),
		Hub:        hub,
		Logger:     p.logger,
		OnPass:     printPass,
	})

	info("Watching %s (every %s)", cfg.Dir(), interval)

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- session.Run(ctx)
	}()

	select {
	case err := <-sessionErr:
		// The server must release its address before a restart binds it.
		cancel()
		if addr != "" {
			<-serverErr
		}
		return err
	case err := <-serverErr:
		cancel()
		if sessErr := <-sessionErr; err == nil {
			err = sessErr
		}
		return err
	}
}

func printPass(r dev.PassReport) {
	if r.Err != nil {
		errorMsg("%s", r.Err)
		return
	}
	for _, d := range r.Result.Diagnostics {
		if d.IsWarning() {
			warn("%s", d.FormatCompact())
		} else {
			errorMsg("%s", d.FormatCompact())
		}
	}
	for _, p := range r.Build.Written {
		success("Generated %s", p)
	}
	for _, p := range r.Build.Removed {
		info("Removed %s", p)
	}
	s := r.Result.Stats
	info("Pass %d: %d/%d member(s) rescanned, %d emitted, %d reused in %s",
		r.Result.Pass, s.Scanned, s.Members, s.Emitted, s.Reused, r.Result.Duration.Round(time.Millisecond))
}
