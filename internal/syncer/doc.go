// Package syncer drains the pending queue to the tracking API.
//
// ARCHITECTURE:
//
// State Machine:
// The Coordinator is either Idle or Draining. The transition
// Idle -> Draining is a compare-and-swap on the state word, so concurrent
// triggers (connectivity restored, post-submission, login, manual) collapse
// into at most one active drain. A trigger that loses the race is dropped;
// it only asks the running drain to look at the queue once more before it
// returns to Idle.
//
// Drain Loop:
//  1. PeekOldest; empty queue ends the pass
//  2. Attempt the head record
//  3. Accepted or Duplicate: Remove, continue
//  4. Rejected: Quarantine, notify, continue
//  5. TransportFailure: stop, head stays in place
//
// Records are always attempted in ascending seq. A transport failure on the
// head blocks every record behind it until a later trigger succeeds.
//
// There is no retry timer. Retries happen only on triggers, which bounds
// their frequency by the connectivity poll interval.
//
// Cross-process exclusion is optional: a Locker (a gofrs/flock file lock in
// production) is taken for the duration of the pass and a trigger that
// cannot take it is dropped like any other overlapping trigger.
package syncer
