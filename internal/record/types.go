package record

import (
	"time"

	"github.com/google/uuid"
)

// Scan is a freshly scanned container/shipment pair together with the
// operator who scanned it.
type Scan struct {
	Operator    string `json:"operator"`
	ContainerID string `json:"container_id"`
	ShipmentID  string `json:"shipment_id"`
}

// PendingRecord is the unit of work held by the pending queue.
//
// Seq is assigned by the store at append time and is the only ordering key.
// EnqueuedAt is diagnostic only.
type PendingRecord struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	Operator    string    `json:"operator"`
	ContainerID string    `json:"container_id"`
	ShipmentID  string    `json:"shipment_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// QuarantinedRecord is a record the server rejected. It is kept for operator
// review and never retried automatically.
type QuarantinedRecord struct {
	PendingRecord
	Reason        string    `json:"reason"`
	StatusCode    int       `json:"status_code"`
	QuarantinedAt time.Time `json:"quarantined_at"`
}

// FromScan builds a record for a scan that has not been persisted yet.
// The ID is a UUIDv7 so records sort by capture time in logs.
//
// Seq and EnqueuedAt stay zero until the store assigns them.
func FromScan(s Scan) PendingRecord {
	return PendingRecord{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Operator:    s.Operator,
		ContainerID: s.ContainerID,
		ShipmentID:  s.ShipmentID,
	}
}

// Session is the authenticated operator session returned by login.
type Session struct {
	Token       string `json:"token"`
	Operator    string `json:"operator"`
	Role        string `json:"role"`
	AccessLevel int    `json:"access_level"`
}

// LoggedIn reports whether the session carries a bearer token.
func (s Session) LoggedIn() bool {
	return s.Token != ""
}
