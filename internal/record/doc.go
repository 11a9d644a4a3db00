// Package record provides the data model shared by the scansync core.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import record; record imports nothing internal.
//
// Key design constraints:
//   - Queue order uses Seq (logical clock), never EnqueuedAt
//   - Outcomes are values, not errors: every submission attempt returns
//     exactly one Outcome and callers switch on Outcome.Kind
//   - Scanned identifiers are NFC normalized before they reach the queue
package record
