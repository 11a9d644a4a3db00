// Package connectivity reports network state transitions to the sync core.
//
// A Monitor exposes the current state on demand and a lazy, restartable
// stream of transitions. Streams are coalesced: a subscriber never sees two
// consecutive events for the same state, so flapping that settles back to
// the previous state produces no event at all.
//
// Implementations:
//   - Poller: probes the tracking API with HEAD requests on an interval
//   - Switch: set programmatically (tests, scenarios, --assume-online)
//   - Unavailable: no signal at all; consumers assume online
package connectivity
