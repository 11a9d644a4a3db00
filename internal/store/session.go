package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/scansync/internal/record"
)

// SaveSession replaces the stored operator session.
func (s *Store) SaveSession(ctx context.Context, sess record.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (singleton, token, operator, role, access_level)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(singleton) DO UPDATE SET
			token = excluded.token,
			operator = excluded.operator,
			role = excluded.role,
			access_level = excluded.access_level
	`, sess.Token, sess.Operator, sess.Role, sess.AccessLevel)
	if err != nil {
		return wrap("save session", err)
	}
	return nil
}

// LoadSession returns the stored session, or a zero Session if nobody is
// logged in.
func (s *Store) LoadSession(ctx context.Context) (record.Session, error) {
	var sess record.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT token, operator, role, access_level FROM session WHERE singleton = 1
	`).Scan(&sess.Token, &sess.Operator, &sess.Role, &sess.AccessLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Session{}, nil
	}
	if err != nil {
		return record.Session{}, wrap("load session", err)
	}
	return sess, nil
}

// ClearSession logs the operator out. The pending queue is untouched.
func (s *Store) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return wrap("clear session", err)
	}
	return nil
}

// Token returns the stored bearer token, empty if logged out.
// Satisfies submit.TokenSource.
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, err := s.LoadSession(ctx)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}
