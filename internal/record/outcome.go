package record

import "fmt"

// OutcomeKind classifies a single submission attempt.
type OutcomeKind int

const (
	// OutcomeAccepted means the server persisted the record.
	OutcomeAccepted OutcomeKind = iota + 1
	// OutcomeDuplicate means the server already holds an equal record.
	// Treated as success for queue removal.
	OutcomeDuplicate
	// OutcomeRejected means the server refused the record's content.
	// Terminal: the record is never retried automatically.
	OutcomeRejected
	// OutcomeTransportFailure covers timeouts, DNS and connection errors,
	// missing credentials and transient server errors. Always retried later.
	OutcomeTransportFailure
)

// String returns the lower-case name used in logs and CLI output.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the classified result of one submission attempt.
type Outcome struct {
	Kind OutcomeKind

	// Note is the server's duplicate description (OutcomeDuplicate only).
	Note string

	// Reason is the server's rejection message (OutcomeRejected only).
	Reason string

	// StatusCode is the HTTP status, zero if no response was received.
	StatusCode int

	// Err is the underlying transport error (OutcomeTransportFailure only).
	Err error
}

// Accepted returns an OutcomeAccepted.
func Accepted() Outcome {
	return Outcome{Kind: OutcomeAccepted, StatusCode: 200}
}

// Duplicate returns an OutcomeDuplicate carrying the server note.
func Duplicate(note string) Outcome {
	return Outcome{Kind: OutcomeDuplicate, Note: note, StatusCode: 200}
}

// Rejected returns an OutcomeRejected with the server reason and status.
func Rejected(status int, reason string) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason, StatusCode: status}
}

// TransportFailure returns an OutcomeTransportFailure wrapping err.
func TransportFailure(err error) Outcome {
	return Outcome{Kind: OutcomeTransportFailure, Err: err}
}

// Resolved reports whether the record may leave the pending queue as a
// success (accepted or duplicate).
func (o Outcome) Resolved() bool {
	return o.Kind == OutcomeAccepted || o.Kind == OutcomeDuplicate
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeDuplicate:
		return fmt.Sprintf("duplicate: %s", o.Note)
	case OutcomeRejected:
		return fmt.Sprintf("rejected (%d): %s", o.StatusCode, o.Reason)
	case OutcomeTransportFailure:
		if o.Err != nil {
			return fmt.Sprintf("transport failure: %v", o.Err)
		}
		return "transport failure"
	default:
		return o.Kind.String()
	}
}
