package syncer

import (
	"context"
	"time"

	"github.com/roach88/scansync/internal/record"
)

// State is the coordinator state.
type State int32

const (
	// StateIdle means no drain is running.
	StateIdle State = iota
	// StateDraining means a drain pass is running.
	StateDraining
)

// String returns the lower-case state name.
func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// Trigger names what started a drain.
type Trigger string

const (
	TriggerStartup      Trigger = "startup"
	TriggerConnectivity Trigger = "connectivity"
	TriggerSubmission   Trigger = "submission"
	TriggerLogin        Trigger = "login"
	TriggerManual       Trigger = "manual"
)

// StopReason explains why a drain pass ended.
type StopReason string

const (
	StopEmpty            StopReason = "empty"
	StopTransportFailure StopReason = "transport_failure"
	StopStorageError     StopReason = "storage_error"
	StopClosed           StopReason = "closed"
)

// Report summarizes one drain pass.
type Report struct {
	Trigger     Trigger       `json:"trigger"`
	Synced      int           `json:"synced"`
	Duplicates  int           `json:"duplicates"`
	Quarantined int           `json:"quarantined"`
	Remaining   int           `json:"remaining"`
	Stopped     StopReason    `json:"stopped"`
	Duration    time.Duration `json:"duration_ns"`
	Err         error         `json:"-"`
}

// add folds an earlier pass of the same drain into next.
func (r Report) add(next Report) Report {
	next.Synced += r.Synced
	next.Duplicates += r.Duplicates
	next.Quarantined += r.Quarantined
	next.Duration += r.Duration
	return next
}

// Queue is the pending store as seen by the coordinator. The coordinator is
// its only remover.
type Queue interface {
	PeekOldest(ctx context.Context) (record.PendingRecord, bool, error)
	Remove(ctx context.Context, seq int64) error
	Quarantine(ctx context.Context, rec record.PendingRecord, reason string, status int) error
	LoadAll(ctx context.Context) ([]record.PendingRecord, error)
	Len(ctx context.Context) (int, error)
}

// Submitter performs one attempt and classifies it.
type Submitter interface {
	Attempt(ctx context.Context, rec record.PendingRecord) record.Outcome
}

// Locker is a non-blocking exclusive lock shared with other processes.
// *flock.Flock satisfies it.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// NotificationKind classifies a Notification.
type NotificationKind int

const (
	// RecordSynced: a queued record was accepted or found duplicate.
	RecordSynced NotificationKind = iota + 1
	// RecordQuarantined: a queued record was rejected and set aside.
	RecordQuarantined
	// DrainFinished: a drain pass ended; Report is set.
	DrainFinished
)

// Notification is delivered to the Notifier from the draining goroutine.
type Notification struct {
	Kind    NotificationKind
	Record  record.PendingRecord
	Outcome record.Outcome
	Report  *Report
}

// Notifier receives drain notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}
