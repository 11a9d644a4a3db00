package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/scansync/internal/connectivity"
	"github.com/roach88/scansync/internal/syncer"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	AssumeOnline bool
}

// WatchEvent is one line of watch output.
type WatchEvent struct {
	Event     string         `json:"event"`
	Seq       int64          `json:"seq,omitempty"`
	Container string         `json:"container,omitempty"`
	Shipment  string         `json:"shipment,omitempty"`
	Outcome   string         `json:"outcome,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Report    *syncer.Report `json:"report,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Deliver queued scans whenever the API becomes reachable",
		Long: `Run until interrupted, probing the tracking API and draining the
queue every time it becomes reachable. Any backlog is drained at start.

With --assume-online no probing is done: the queue is drained once at
start and the process then waits.

Example:
  scansync watch --config ./scansync.cue -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.AssumeOnline, "assume-online", false, "skip connectivity probing")

	return cmd
}

// eventPrinter writes drain notifications as they arrive.
type eventPrinter struct {
	mu sync.Mutex
	f  *OutputFormatter
}

func (p *eventPrinter) Notify(n syncer.Notification) {
	var ev WatchEvent
	var text string
	switch n.Kind {
	case syncer.RecordSynced:
		ev = WatchEvent{Event: "synced", Seq: n.Record.Seq, Container: n.Record.ContainerID, Shipment: n.Record.ShipmentID, Outcome: n.Outcome.Kind.String()}
		text = fmt.Sprintf("synced #%d %s / %s (%s)", ev.Seq, ev.Container, ev.Shipment, ev.Outcome)
	case syncer.RecordQuarantined:
		ev = WatchEvent{Event: "quarantined", Seq: n.Record.Seq, Container: n.Record.ContainerID, Shipment: n.Record.ShipmentID, Reason: n.Outcome.Reason}
		text = fmt.Sprintf("rejected #%d %s / %s: %s", ev.Seq, ev.Container, ev.Shipment, ev.Reason)
	case syncer.DrainFinished:
		if n.Report == nil || (n.Report.Synced == 0 && n.Report.Quarantined == 0) {
			return
		}
		ev = WatchEvent{Event: "drain", Report: n.Report}
		text = "drain finished: " + describeReport(*n.Report)
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.f.Success(ev, text); err != nil {
		slog.Error("write watch event", "error", err)
	}
}

func (opts *WatchOptions) monitor(rt *runtime) connectivity.Monitor {
	if opts.AssumeOnline {
		return connectivity.NewSwitch(connectivity.StateOnline)
	}
	probe, err := connectivity.NewHTTPProbe(rt.cfg.APIBase, rt.cfg.ProbeTimeout, nil)
	if err != nil {
		slog.Warn("cannot probe tracking API", "api", rt.cfg.APIBase, "error", err)
		return connectivity.Unavailable{}
	}
	return connectivity.NewPoller(probe,
		connectivity.WithInterval(rt.cfg.ProbeInterval),
		connectivity.WithStablePolls(rt.cfg.StablePolls),
	)
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	printer := &eventPrinter{f: newFormatter(opts.RootOptions, cmd)}
	rt, err := openRuntime(opts.RootOptions, cmd, syncer.WithNotifier(printer))
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		return rt.coord.Run(gctx, opts.monitor(rt))
	})

	slog.Info("watch starting", "api", rt.cfg.APIBase, "db", rt.cfg.Database, "assume_online", opts.AssumeOnline)
	if opts.Format != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "Watching for connectivity. Press Ctrl-C to stop.")
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "watch error", err)
	}

	slog.Info("watch stopped")
	return nil
}
