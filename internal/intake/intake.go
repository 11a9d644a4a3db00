package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/scansync/internal/record"
	"github.com/roach88/scansync/internal/store"
	"github.com/roach88/scansync/internal/syncer"
	"github.com/roach88/scansync/internal/telemetry"
)

// ResultKind is the caller-visible fate of a scan.
type ResultKind string

const (
	ResultAccepted           ResultKind = "accepted"
	ResultDuplicate          ResultKind = "duplicate"
	ResultRejected           ResultKind = "rejected"
	ResultQueuedOffline      ResultKind = "queued_offline"
	ResultValidationRejected ResultKind = "validation_rejected"
)

// Result describes what happened to one scan.
type Result struct {
	Kind       ResultKind           `json:"kind"`
	Record     record.PendingRecord `json:"record"`
	Note       string               `json:"note,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	StatusCode int                  `json:"status_code,omitempty"`
}

// Message is a one-line operator message for the result.
func (r Result) Message() string {
	switch r.Kind {
	case ResultAccepted:
		return fmt.Sprintf("sent %s / %s", r.Record.ContainerID, r.Record.ShipmentID)
	case ResultDuplicate:
		return fmt.Sprintf("already recorded %s / %s (%s)", r.Record.ContainerID, r.Record.ShipmentID, r.Note)
	case ResultRejected:
		return fmt.Sprintf("rejected %s / %s: %s", r.Record.ContainerID, r.Record.ShipmentID, r.Reason)
	case ResultQueuedOffline:
		return fmt.Sprintf("offline, queued %s / %s (seq %d)", r.Record.ContainerID, r.Record.ShipmentID, r.Record.Seq)
	default:
		return r.Reason
	}
}

// Submitter performs one attempt.
type Submitter interface {
	Attempt(ctx context.Context, rec record.PendingRecord) record.Outcome
}

// Appender persists a record at the tail of the pending queue.
type Appender interface {
	Append(ctx context.Context, rec record.PendingRecord) (record.PendingRecord, error)
}

// Triggerer starts an opportunistic drain.
type Triggerer interface {
	Trigger(trigger syncer.Trigger)
}

// Intake is the single appender of the pending queue.
type Intake struct {
	submitter Submitter
	queue     Appender
	sync      Triggerer
	metrics   *telemetry.SyncMetrics
}

// Option configures an Intake.
type Option func(*Intake)

// WithMetrics sets the sync metrics. nil disables metrics.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(i *Intake) {
		i.metrics = m
	}
}

// New creates an Intake. sync may be nil when no coordinator is running.
func New(s Submitter, q Appender, sync Triggerer, opts ...Option) *Intake {
	i := &Intake{
		submitter: s,
		queue:     q,
		sync:      sync,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Submit handles one scan.
//
// The error is non-nil only when the scan could not be attempted-or-queued,
// and then it wraps store.ErrStorageUnavailable: the scan is not saved and
// the operator must be told.
func (i *Intake) Submit(ctx context.Context, scan record.Scan) (Result, error) {
	scan = record.Normalize(scan)
	rec := record.FromScan(scan)

	if !scan.Valid() {
		slog.Debug("scan rejected by validation", "container", scan.ContainerID, "shipment", scan.ShipmentID)
		return Result{
			Kind:   ResultValidationRejected,
			Record: rec,
			Reason: "container and shipment ids are required",
		}, nil
	}

	out := i.submitter.Attempt(ctx, rec)
	i.metrics.RecordAttempt(ctx, "intake", out.Kind.String())

	switch out.Kind {
	case record.OutcomeAccepted:
		i.trigger()
		return Result{Kind: ResultAccepted, Record: rec, StatusCode: out.StatusCode}, nil

	case record.OutcomeDuplicate:
		i.trigger()
		return Result{Kind: ResultDuplicate, Record: rec, Note: out.Note, StatusCode: out.StatusCode}, nil

	case record.OutcomeRejected:
		slog.Warn("scan rejected by server", "id", rec.ID, "status", out.StatusCode, "reason", out.Reason)
		i.trigger()
		return Result{Kind: ResultRejected, Record: rec, Reason: out.Reason, StatusCode: out.StatusCode}, nil
	}

	queued, err := i.queue.Append(ctx, rec)
	if err != nil {
		slog.Error("queue scan", "id", rec.ID, "error", err)
		if !errors.Is(err, store.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %w", store.ErrStorageUnavailable, err)
		}
		return Result{}, fmt.Errorf("queue scan %s: %w", rec.ID, err)
	}

	slog.Info("scan queued offline", "seq", queued.Seq, "id", queued.ID, "error", out.Err)
	i.trigger()
	return Result{Kind: ResultQueuedOffline, Record: queued}, nil
}

func (i *Intake) trigger() {
	if i.sync != nil {
		i.sync.Trigger(syncer.TriggerSubmission)
	}
}
