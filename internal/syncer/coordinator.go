package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/scansync/internal/connectivity"
	"github.com/roach88/scansync/internal/record"
	"github.com/roach88/scansync/internal/telemetry"
)

// Coordinator owns draining of the pending queue.
//
// Thread-safety model:
//   - DrainIfIdle, Trigger, State: safe from any goroutine
//   - Run: call from one goroutine
//   - Close: call once; later triggers are ignored
type Coordinator struct {
	queue     Queue
	submitter Submitter
	notifier  Notifier
	metrics   *telemetry.SyncMetrics
	locker    Locker
	now       func() time.Time

	state atomic.Int32
	rerun atomic.Bool

	// lifecycle guards closed and wg.Add so Close cannot race Trigger.
	lifecycle sync.Mutex
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

// WithMetrics sets the sync metrics. nil disables metrics.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLocker sets a cross-process lock held for each drain pass.
func WithLocker(l Locker) Option {
	return func(c *Coordinator) {
		c.locker = l
	}
}

// New creates an idle Coordinator.
func New(q Queue, s Submitter, opts ...Option) *Coordinator {
	c := &Coordinator{
		queue:     q,
		submitter: s,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current coordinator state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Trigger starts a drain in the background if none is running.
// The drain runs on a context detached from any caller; in-flight attempts
// end by completing or timing out. No-op after Close.
func (c *Coordinator) Trigger(trigger Trigger) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.closed.Load() {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.DrainIfIdle(context.Background(), trigger)
	}()
}

// Wait blocks until every background drain started by Trigger has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops accepting triggers and waits for background drains. A running
// drain finishes its current attempt and stops before the next one.
func (c *Coordinator) Close() {
	c.lifecycle.Lock()
	c.closed.Store(true)
	c.lifecycle.Unlock()

	c.wg.Wait()
}

// DrainIfIdle runs a drain pass synchronously.
// Returns started=false if a drain was already running (the trigger is
// dropped), if another process holds the lock, or after Close.
func (c *Coordinator) DrainIfIdle(ctx context.Context, trigger Trigger) (report Report, started bool) {
	for {
		if c.closed.Load() {
			return report, started
		}

		if !c.state.CompareAndSwap(int32(StateIdle), int32(StateDraining)) {
			// Ask the running pass to re-examine the queue before it idles.
			c.rerun.Store(true)
			if !started {
				slog.Debug("drain already running, trigger dropped", "trigger", trigger)
				c.metrics.RecordDrain(ctx, string(trigger), "skipped", 0)
			}
			return report, started
		}

		next, ran := c.pass(ctx, trigger)
		c.state.Store(int32(StateIdle))

		if !ran {
			return report, started
		}
		report = report.add(next)
		started = true

		// A trigger that arrived between the final empty peek and the
		// return to Idle was dropped; honour it now.
		if report.Stopped != StopEmpty || !c.rerun.Swap(false) {
			return report, started
		}
	}
}

// pass holds the cross-process lock and drains. Must be called in the
// Draining state.
func (c *Coordinator) pass(ctx context.Context, trigger Trigger) (Report, bool) {
	if c.locker != nil {
		ok, err := c.locker.TryLock()
		if err != nil {
			slog.Warn("drain lock unavailable, trigger dropped", "trigger", trigger, "error", err)
			c.metrics.RecordDrain(ctx, string(trigger), "skipped", 0)
			return Report{}, false
		}
		if !ok {
			slog.Debug("drain running in another process, trigger dropped", "trigger", trigger)
			c.metrics.RecordDrain(ctx, string(trigger), "skipped", 0)
			return Report{}, false
		}
		defer func() {
			if err := c.locker.Unlock(); err != nil {
				slog.Error("release drain lock", "error", err)
			}
		}()
	}

	c.rerun.Store(false)
	report := c.drain(ctx, trigger)

	c.metrics.RecordDrain(ctx, string(trigger), string(report.Stopped), report.Duration)
	c.notify(Notification{Kind: DrainFinished, Report: &report})
	return report, true
}

// drain is the loop body of a pass.
func (c *Coordinator) drain(ctx context.Context, trigger Trigger) Report {
	start := c.now()
	report := Report{Trigger: trigger}

	slog.Debug("drain starting", "trigger", trigger)

loop:
	for {
		if c.closed.Load() {
			report.Stopped = StopClosed
			break
		}

		rec, ok, err := c.queue.PeekOldest(ctx)
		if err != nil {
			slog.Error("peek pending queue", "error", err)
			report.Stopped, report.Err = StopStorageError, err
			break
		}
		if !ok {
			if c.rerun.Swap(false) {
				continue
			}
			report.Stopped = StopEmpty
			break
		}

		out := c.submitter.Attempt(ctx, rec)
		c.metrics.RecordAttempt(ctx, "drain", out.Kind.String())

		switch out.Kind {
		case record.OutcomeAccepted, record.OutcomeDuplicate:
			if err := c.queue.Remove(ctx, rec.Seq); err != nil {
				// Left in place; the next pass resubmits and the server
				// answers Duplicate.
				slog.Error("remove synced record", "seq", rec.Seq, "id", rec.ID, "error", err)
				report.Stopped, report.Err = StopStorageError, err
				break loop
			}
			report.Synced++
			if out.Kind == record.OutcomeDuplicate {
				report.Duplicates++
			}
			slog.Info("record synced", "seq", rec.Seq, "id", rec.ID, "outcome", out.Kind.String(), "note", out.Note)
			c.notify(Notification{Kind: RecordSynced, Record: rec, Outcome: out})

		case record.OutcomeRejected:
			if err := c.queue.Quarantine(ctx, rec, out.Reason, out.StatusCode); err != nil {
				slog.Error("quarantine rejected record", "seq", rec.Seq, "id", rec.ID, "error", err)
				report.Stopped, report.Err = StopStorageError, err
				break loop
			}
			report.Quarantined++
			slog.Warn("record rejected by server, quarantined",
				"seq", rec.Seq,
				"id", rec.ID,
				"status", out.StatusCode,
				"reason", out.Reason,
			)
			c.notify(Notification{Kind: RecordQuarantined, Record: rec, Outcome: out})

		default:
			// TransportFailure, and any kind this loop does not know,
			// leaves the head in place.
			slog.Info("drain stopped, will retry on next trigger", "seq", rec.Seq, "id", rec.ID, "error", out.Err)
			report.Stopped, report.Err = StopTransportFailure, out.Err
			break loop
		}
	}

	if n, err := c.queue.Len(ctx); err == nil {
		report.Remaining = n
		c.metrics.RecordQueueDepth(ctx, n)
	}
	report.Duration = c.now().Sub(start)

	slog.Debug("drain finished",
		"trigger", trigger,
		"stopped", report.Stopped,
		"synced", report.Synced,
		"quarantined", report.Quarantined,
		"remaining", report.Remaining,
	)
	return report
}

func (c *Coordinator) notify(n Notification) {
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}

// HandleEvent reacts to one connectivity transition: became-online triggers
// a drain, became-offline is only logged.
func (c *Coordinator) HandleEvent(ev connectivity.Event) {
	slog.Info("connectivity changed", "state", ev.State.String())
	if ev.BecameOnline() {
		c.Trigger(TriggerConnectivity)
	}
}

// Run resumes any backlog and then drains on every became-online event
// until ctx is done.
//
// If the monitor is unavailable the coordinator assumes online: it drains
// once and then waits, relying on manual triggers.
func (c *Coordinator) Run(ctx context.Context, monitor connectivity.Monitor) error {
	backlog, err := c.queue.LoadAll(ctx)
	if err != nil {
		slog.Error("load pending backlog", "error", err)
	} else if len(backlog) > 0 {
		slog.Info("resuming pending backlog", "records", len(backlog), "oldest_seq", backlog[0].Seq)
	}
	c.metrics.RecordQueueDepth(ctx, len(backlog))

	if monitor.Current() != connectivity.StateOffline {
		c.Trigger(TriggerStartup)
	}

	for {
		events, err := monitor.Subscribe(ctx)
		if err != nil {
			if !errors.Is(err, connectivity.ErrUnavailable) {
				slog.Error("subscribe to connectivity", "error", err)
			}
			slog.Warn("connectivity monitor unavailable, assuming online; use manual sync")
			<-ctx.Done()
			return nil
		}

		for ev := range events {
			c.HandleEvent(ev)
		}

		if ctx.Err() != nil {
			return nil
		}
		slog.Debug("connectivity stream ended, resubscribing")
	}
}
