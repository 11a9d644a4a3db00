package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/scansync/internal/connectivity"
	"github.com/roach88/scansync/internal/intake"
	"github.com/roach88/scansync/internal/record"
	"github.com/roach88/scansync/internal/store"
	"github.com/roach88/scansync/internal/submit"
	"github.com/roach88/scansync/internal/syncer"
	"github.com/roach88/scansync/internal/testutil"
)

// harnessEpoch is the fixed start of the store clock.
var harnessEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness executes one scenario.
//
// The real intake, store and coordinator are used. Drains triggered by
// intake are deferred until the step finishes and then run synchronously,
// so attempts never interleave with harness bookkeeping.
type Harness struct {
	dbPath string
	clock  *testutil.StepClock
	api    *apiServer
	client *submit.Client
	trace  *traceLog

	store   *store.Store
	coord   *syncer.Coordinator
	intake  *intake.Intake
	pending *deferredTrigger
}

// deferredTrigger collects triggers from intake.
type deferredTrigger struct {
	mu       sync.Mutex
	triggers []syncer.Trigger
}

func (d *deferredTrigger) Trigger(t syncer.Trigger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.triggers {
		if existing == t {
			return
		}
	}
	d.triggers = append(d.triggers, t)
}

func (d *deferredTrigger) take() []syncer.Trigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.triggers
	d.triggers = nil
	return out
}

// recordingSubmitter traces every attempt.
type recordingSubmitter struct {
	next   syncer.Submitter
	source string
	trace  *traceLog
}

func (r *recordingSubmitter) Attempt(ctx context.Context, rec record.PendingRecord) record.Outcome {
	out := r.next.Attempt(ctx, rec)
	r.trace.add(TraceEvent{
		Type:      EventAttempt,
		Seq:       rec.Seq,
		Container: rec.ContainerID,
		Outcome:   out.Kind.String(),
		Detail:    r.source,
	})
	return out
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh SQLite file in a temporary directory and a fresh
// scripted API server.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "scansync-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	online := scenario.Setup.Online == nil || *scenario.Setup.Online
	api := newAPIServer(online)
	defer api.Close()

	h := &Harness{
		dbPath: filepath.Join(dir, "queue.db"),
		clock:  testutil.NewStepClock(harnessEpoch, time.Second),
		api:    api,
		trace:  &traceLog{},
	}
	if err := h.open(); err != nil {
		return nil, err
	}
	defer func() { _ = h.close() }()

	ctx := context.Background()
	if err := h.setup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		h.settle(ctx)
	}
	result.Trace = h.trace.snapshot()

	actx := &AssertionContext{Store: h.store, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) open() error {
	st, err := store.Open(h.dbPath, store.WithClock(h.clock.Now))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	h.store = st
	h.client = submit.NewClient(h.api.URL(), st, submit.WithTimeout(2*time.Second))
	h.coord = syncer.New(st,
		&recordingSubmitter{next: h.client, source: "drain", trace: h.trace},
		syncer.WithNotifier(h.trace),
	)
	h.pending = &deferredTrigger{}
	h.intake = intake.New(
		&recordingSubmitter{next: h.client, source: "intake", trace: h.trace},
		st,
		h.pending,
	)
	return nil
}

func (h *Harness) close() error {
	h.coord.Close()
	if err := h.store.Close(); err != nil {
		slog.Error("error closing scenario database", "path", h.dbPath, "error", err)
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

func (h *Harness) setup(ctx context.Context, setup Setup) error {
	if !setup.LoggedOut {
		sess := record.Session{Token: harnessToken, Operator: "harness", Role: "operator"}
		if err := h.store.SaveSession(ctx, sess); err != nil {
			return err
		}
	}
	for _, scan := range setup.Pending {
		rec := record.FromScan(record.Normalize(scanOf(scan)))
		if _, err := h.store.Append(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// settle waits for background drains, then runs deferred triggers.
func (h *Harness) settle(ctx context.Context) {
	h.coord.Wait()
	for _, t := range h.pending.take() {
		h.coord.DrainIfIdle(ctx, t)
	}
}

func (h *Harness) execute(ctx context.Context, i int, step FlowStep, result *Result) error {
	switch step.action() {
	case "submit":
		res, err := h.intake.Submit(ctx, scanOf(*step.Submit))
		if err != nil {
			return err
		}
		h.trace.add(TraceEvent{
			Type:      EventSubmit,
			Seq:       res.Record.Seq,
			Container: res.Record.ContainerID,
			Outcome:   string(res.Kind),
			Detail:    res.Note + res.Reason,
		})
		if step.Expect != nil && string(res.Kind) != step.Expect.Result {
			result.AddError(fmt.Sprintf("flow[%d]: expected result %q, got %q", i, step.Expect.Result, res.Kind))
		}

	case "server":
		h.api.setOnline(step.Server == "online")
		h.trace.add(TraceEvent{Type: EventServer, Detail: step.Server})

	case "respond":
		h.api.push(step.Respond...)

	case "connectivity":
		state := connectivity.StateOffline
		if step.Connectivity == "online" {
			state = connectivity.StateOnline
		}
		h.trace.add(TraceEvent{Type: EventConnectivity, Detail: step.Connectivity})
		h.coord.HandleEvent(connectivity.Event{State: state, At: h.clock.Now()})

	case "sync":
		report, started := h.coord.DrainIfIdle(ctx, syncer.TriggerManual)
		if !started {
			result.AddError(fmt.Sprintf("flow[%d]: manual sync did not start", i))
			return nil
		}
		checkReport(i, step.Expect, report, result)

	case "login":
		sess, err := h.client.Login(ctx, step.Login.Surname, step.Login.Password)
		if err != nil {
			var apiErr *submit.APIError
			detail := "unreachable"
			if errors.As(err, &apiErr) {
				detail = apiErr.Message
			}
			h.trace.add(TraceEvent{Type: EventLogin, Outcome: "failed", Detail: detail})
			return nil
		}
		if err := h.store.SaveSession(ctx, sess); err != nil {
			return err
		}
		h.trace.add(TraceEvent{Type: EventLogin, Outcome: "ok", Detail: sess.Role})
		h.coord.DrainIfIdle(ctx, syncer.TriggerLogin)

	case "logout":
		if err := h.store.ClearSession(ctx); err != nil {
			return err
		}
		h.trace.add(TraceEvent{Type: EventLogout})

	case "restart":
		if err := h.close(); err != nil {
			return err
		}
		if err := h.open(); err != nil {
			return err
		}
		n, err := h.store.Len(ctx)
		if err != nil {
			return err
		}
		h.trace.add(TraceEvent{Type: EventRestart, Detail: fmt.Sprintf("pending=%d", n)})
	}
	return nil
}

func checkReport(i int, expect *ExpectClause, report syncer.Report, result *Result) {
	if expect == nil {
		return
	}
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			result.AddError(fmt.Sprintf("flow[%d]: expected %s=%d, got %d", i, name, *want, got))
		}
	}
	check("synced", expect.Synced, report.Synced)
	check("quarantined", expect.Quarantined, report.Quarantined)
	check("remaining", expect.Remaining, report.Remaining)
	if expect.Stopped != "" && expect.Stopped != string(report.Stopped) {
		result.AddError(fmt.Sprintf("flow[%d]: expected stopped=%s, got %s", i, expect.Stopped, report.Stopped))
	}
}

func scanOf(s ScanStep) record.Scan {
	return record.Scan{Operator: s.Operator, ContainerID: s.Container, ShipmentID: s.Shipment}
}
