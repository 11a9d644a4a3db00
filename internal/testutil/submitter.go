// Package testutil provides deterministic fakes for scansync tests.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/scansync/internal/record"
)

// ScriptedSubmitter returns scripted outcomes in order and records every
// attempt. When the script is exhausted it returns the fallback outcome
// (Accepted unless changed).
//
// It also tracks how many Attempt calls overlap, for mutual exclusion tests.
//
// Thread-safety: safe for concurrent use.
type ScriptedSubmitter struct {
	mu       sync.Mutex
	script   []record.Outcome
	fallback record.Outcome
	calls    []record.PendingRecord
	delay    time.Duration
	gate     chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// NewScriptedSubmitter creates a submitter that returns outcomes in order.
func NewScriptedSubmitter(outcomes ...record.Outcome) *ScriptedSubmitter {
	return &ScriptedSubmitter{
		script:   append([]record.Outcome(nil), outcomes...),
		fallback: record.Accepted(),
	}
}

// Push appends outcomes to the script.
func (s *ScriptedSubmitter) Push(outcomes ...record.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, outcomes...)
}

// SetFallback sets the outcome returned once the script is exhausted.
func (s *ScriptedSubmitter) SetFallback(o record.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = o
}

// SetDelay makes every attempt sleep for d before answering.
func (s *ScriptedSubmitter) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Hold makes attempts block until Release is called.
func (s *ScriptedSubmitter) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

// Release unblocks attempts held by Hold.
func (s *ScriptedSubmitter) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Attempt implements the submitter interface.
func (s *ScriptedSubmitter) Attempt(ctx context.Context, rec record.PendingRecord) record.Outcome {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, rec)
	delay, gate := s.delay, s.gate
	out := s.fallback
	if len(s.script) > 0 {
		out = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return record.TransportFailure(ctx.Err())
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return out
}

// Calls returns every attempted record in attempt order.
func (s *ScriptedSubmitter) Calls() []record.PendingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record.PendingRecord(nil), s.calls...)
}

// CallCount returns the number of attempts so far.
func (s *ScriptedSubmitter) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// MaxInFlight returns the highest number of overlapping attempts observed.
func (s *ScriptedSubmitter) MaxInFlight() int {
	return int(s.maxInFlight.Load())
}
