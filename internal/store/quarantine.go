package store

import (
	"context"

	"github.com/roach88/scansync/internal/record"
)

// Quarantine moves rec from the pending queue into quarantined_records in a
// single transaction. The record keeps its seq so review lists stay in scan
// order. Quarantining a record that was already moved is a no-op.
func (s *Store) Quarantine(ctx context.Context, rec record.PendingRecord, reason string, status int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("quarantine: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quarantined_records
		(seq, id, operator, container_id, shipment_id, enqueued_at, reason, status_code, quarantined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		rec.Seq,
		rec.ID,
		rec.Operator,
		rec.ContainerID,
		rec.ShipmentID,
		unixNano(rec.EnqueuedAt),
		reason,
		status,
		unixNano(s.now()),
	)
	if err != nil {
		return wrap("quarantine: insert", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_records WHERE seq = ?`, rec.Seq); err != nil {
		return wrap("quarantine: delete pending", err)
	}

	if err := tx.Commit(); err != nil {
		return wrap("quarantine: commit", err)
	}
	return nil
}

// ListQuarantined returns every quarantined record ordered by seq ASC.
// Returns an empty slice (not nil) if nothing was quarantined.
func (s *Store) ListQuarantined(ctx context.Context) ([]record.QuarantinedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, operator, container_id, shipment_id, enqueued_at, reason, status_code, quarantined_at
		FROM quarantined_records
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, wrap("list quarantined", err)
	}
	defer rows.Close()

	records := []record.QuarantinedRecord{}
	for rows.Next() {
		var q record.QuarantinedRecord
		var enqueuedAt, quarantinedAt int64
		if err := rows.Scan(
			&q.Seq, &q.ID, &q.Operator, &q.ContainerID, &q.ShipmentID, &enqueuedAt,
			&q.Reason, &q.StatusCode, &quarantinedAt,
		); err != nil {
			return nil, wrap("list quarantined", err)
		}
		q.EnqueuedAt = fromUnixNano(enqueuedAt)
		q.QuarantinedAt = fromUnixNano(quarantinedAt)
		records = append(records, q)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("list quarantined", err)
	}

	return records, nil
}
