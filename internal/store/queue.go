package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/scansync/internal/record"
)

// Append durably persists rec at the tail of the pending queue.
//
// The store assigns Seq and EnqueuedAt; any values set by the caller are
// ignored. The returned record carries the assigned values.
//
// A single INSERT is atomic: after a crash immediately following Append the
// record is either fully readable or absent.
func (s *Store) Append(ctx context.Context, rec record.PendingRecord) (record.PendingRecord, error) {
	if rec.ContainerID == "" || rec.ShipmentID == "" {
		return record.PendingRecord{}, fmt.Errorf("append: %w: container and shipment ids are required", ErrInvalidRecord)
	}
	if rec.ID == "" {
		return record.PendingRecord{}, fmt.Errorf("append: %w: record id is required", ErrInvalidRecord)
	}

	rec.EnqueuedAt = s.now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_records
		(id, operator, container_id, shipment_id, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Operator,
		rec.ContainerID,
		rec.ShipmentID,
		unixNano(rec.EnqueuedAt),
	)
	if err != nil {
		return record.PendingRecord{}, wrap("append", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return record.PendingRecord{}, wrap("append", err)
	}
	rec.Seq = seq

	return rec, nil
}

// PeekOldest returns the record with the lowest seq without removing it.
// Returns ok=false if the queue is empty.
func (s *Store) PeekOldest(ctx context.Context) (rec record.PendingRecord, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, operator, container_id, shipment_id, enqueued_at
		FROM pending_records
		ORDER BY seq ASC
		LIMIT 1
	`)

	rec, err = scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.PendingRecord{}, false, nil
	}
	if err != nil {
		return record.PendingRecord{}, false, wrap("peek", err)
	}
	return rec, true, nil
}

// Remove deletes exactly the record with the given seq.
// Removing an absent record is a no-op, so a crash between a confirmed
// submission and its removal cannot corrupt the queue.
func (s *Store) Remove(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_records WHERE seq = ?`, seq)
	if err != nil {
		return wrap("remove", err)
	}
	return nil
}

// LoadAll returns every pending record ordered by seq ASC.
// Used at startup to resume work left over from a previous run.
//
// Returns an empty slice (not nil) if the queue is empty.
func (s *Store) LoadAll(ctx context.Context) ([]record.PendingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, operator, container_id, shipment_id, enqueued_at
		FROM pending_records
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, wrap("load", err)
	}
	defer rows.Close()

	records := []record.PendingRecord{}
	for rows.Next() {
		rec, err := scanPending(rows)
		if err != nil {
			return nil, wrap("load", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("load", err)
	}

	return records, nil
}

// Len returns the number of pending records.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_records`).Scan(&n); err != nil {
		return 0, wrap("len", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPending scans a pending_records row.
func scanPending(row rowScanner) (record.PendingRecord, error) {
	var rec record.PendingRecord
	var enqueuedAt int64
	if err := row.Scan(
		&rec.Seq, &rec.ID, &rec.Operator, &rec.ContainerID, &rec.ShipmentID, &enqueuedAt,
	); err != nil {
		return record.PendingRecord{}, err
	}
	rec.EnqueuedAt = fromUnixNano(enqueuedAt)
	return rec, nil
}
