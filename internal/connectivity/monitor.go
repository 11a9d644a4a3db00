package connectivity

import (
	"context"
	"errors"
	"time"
)

// State is the observed network state.
type State int

const (
	// StateUnknown is reported before the first observation.
	StateUnknown State = iota
	// StateOnline means the tracking API is reachable.
	StateOnline
	// StateOffline means the tracking API is unreachable.
	StateOffline
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Event is a connectivity transition.
type Event struct {
	State State
	At    time.Time
}

// BecameOnline reports whether this is a became-online transition.
func (e Event) BecameOnline() bool {
	return e.State == StateOnline
}

// ErrUnavailable is returned by Subscribe when no connectivity signal can be
// produced. Consumers treat it as "assume online".
var ErrUnavailable = errors.New("connectivity monitor unavailable")

// Monitor observes network state.
type Monitor interface {
	// Current returns the latest known state without blocking.
	Current() State

	// Subscribe starts a transition stream. The channel is closed when ctx
	// is done; calling Subscribe again restarts the stream.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Unavailable is a Monitor with no signal.
type Unavailable struct{}

// Current implements Monitor.
func (Unavailable) Current() State { return StateUnknown }

// Subscribe implements Monitor and always fails with ErrUnavailable.
func (Unavailable) Subscribe(context.Context) (<-chan Event, error) {
	return nil, ErrUnavailable
}
