package harness

import (
	"fmt"
	"sync"

	"github.com/roach88/scansync/internal/syncer"
)

// Trace event types.
const (
	EventSubmit       = "submit"
	EventAttempt      = "attempt"
	EventDrain        = "drain"
	EventServer       = "server"
	EventConnectivity = "connectivity"
	EventLogin        = "login"
	EventLogout       = "logout"
	EventRestart      = "restart"
)

// TraceEvent is one observable step of a scenario run. It carries no ids or
// wall-clock times.
type TraceEvent struct {
	Type      string `json:"type"`
	Seq       int64  `json:"seq,omitempty"`
	Container string `json:"container,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists events in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Attempts returns the attempt events in order.
func (r *Result) Attempts() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventAttempt {
			out = append(out, ev)
		}
	}
	return out
}

// traceLog collects events from the harness and the draining goroutine.
type traceLog struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (l *traceLog) add(ev TraceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *traceLog) snapshot() []TraceEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TraceEvent{}, l.events...)
}

// Notify records finished drains.
func (l *traceLog) Notify(n syncer.Notification) {
	if n.Kind != syncer.DrainFinished || n.Report == nil {
		return
	}
	l.add(TraceEvent{Type: EventDrain, Detail: drainDetail(*n.Report)})
}

func drainDetail(r syncer.Report) string {
	return fmt.Sprintf("trigger=%s synced=%d duplicates=%d quarantined=%d remaining=%d stopped=%s",
		r.Trigger, r.Synced, r.Duplicates, r.Quarantined, r.Remaining, r.Stopped)
}
