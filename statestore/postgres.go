package statestore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrNilDB is returned when a PostgresStore is created without a handle.
var ErrNilDB = errors.New("statestore: db is nil")

const uniqueViolation = "23505"

// PostgresStore shares consumed state ids across portal instances through a
// single table. Insertion doubles as the atomicity point: the unique key on
// the id makes the second consumer lose the race.
type PostgresStore struct {
	DB *sql.DB
}

// CreateSchema creates the backing table if it does not exist yet.
func (s PostgresStore) CreateSchema(ctx context.Context) error {
	if s.DB == nil {
		return ErrNilDB
	}
	_, err := s.DB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS used_login_states (
  id          TEXT PRIMARY KEY,
  expires_at  TIMESTAMPTZ NOT NULL,
  consumed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

func (s PostgresStore) Consume(ctx context.Context, id string, expiresAt time.Time) error {
	if s.DB == nil {
		return ErrNilDB
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}

	_, err := s.DB.ExecContext(ctx, `
INSERT INTO used_login_states (id, expires_at)
VALUES ($1, $2)
`, id, expiresAt.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyUsed
		}
		return err
	}
	return nil
}

// PurgeExpired deletes ids whose states can no longer validate anyway.
// Run it periodically; correctness does not depend on it.
func (s PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, ErrNilDB
	}
	res, err := s.DB.ExecContext(ctx, `
DELETE FROM used_login_states
 WHERE expires_at < now()
`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
