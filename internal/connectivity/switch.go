package connectivity

import (
	"context"
	"sync"
	"time"
)

// Switch is a Monitor whose state is set programmatically.
//
// Each subscriber has a one-slot buffer. If a transition arrives while the
// previous one is still unread, the unread event is withdrawn; when the new
// state equals what the subscriber last saw, nothing is delivered.
type Switch struct {
	mu    sync.Mutex
	state State
	subs  map[*subscriber]struct{}
	now   func() time.Time
}

type subscriber struct {
	ch     chan Event
	seen   State // state of the last event the subscriber has read
	queued State // state of the event in ch, StateUnknown if none
}

// NewSwitch creates a Switch in the given initial state.
func NewSwitch(initial State) *Switch {
	return &Switch{
		state: initial,
		subs:  make(map[*subscriber]struct{}),
		now:   time.Now,
	}
}

// Current implements Monitor.
func (s *Switch) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe implements Monitor. The subscriber starts from the current
// state; only later transitions are delivered.
func (s *Switch) Subscribe(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	sub := &subscriber{ch: make(chan Event, 1), seen: s.state}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, sub)
		close(sub.ch)
		s.mu.Unlock()
	}()

	return sub.ch, nil
}

// Set changes the state and notifies subscribers.
func (s *Switch) Set(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	for sub := range s.subs {
		s.deliver(sub, state)
	}
}

// deliver must be called with s.mu held.
func (s *Switch) deliver(sub *subscriber, state State) {
	if sub.queued != StateUnknown {
		select {
		case <-sub.ch:
			// Withdrawn before the subscriber read it.
		default:
			// Already read.
			sub.seen = sub.queued
		}
		sub.queued = StateUnknown
	}

	if state == sub.seen {
		return
	}

	sub.ch <- Event{State: state, At: s.now()}
	sub.queued = state
}
