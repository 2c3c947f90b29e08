// Package configstore serves the portal's oauth2-* properties out of a
// Postgres table with a cached in-memory snapshot, so the flow reads
// configuration without touching the database on the login path.
package configstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"
)

const defaultLoadTimeout = 5 * time.Second

var (
	// ErrNilDB is returned when a store is created without a database handle.
	ErrNilDB = errors.New("configstore: db is nil")
	// ErrEmptyName indicates a property upsert with a blank name.
	ErrEmptyName = errors.New("configstore: property name is empty")
)

// Options configure Store behaviour.
type Options struct {
	// Defaults are layered under the persisted properties; a stored value
	// always wins over a default with the same name.
	Defaults    map[string]string
	LoadTimeout time.Duration
	Now         func() time.Time
}

// Store provides cached access to the portal_properties table.
type Store struct {
	db       *sql.DB
	opts     Options
	mu       sync.RWMutex
	props    map[string]string
	loadedAt time.Time
}

// New initialises a Store and loads the current properties snapshot.
func New(db *sql.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}

	store := &Store{db: db, opts: opts}

	ctx, cancel := context.WithTimeout(context.Background(), opts.LoadTimeout)
	defer cancel()

	if _, err := store.reload(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// CreateSchema creates the backing table if it does not exist yet.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return ErrNilDB
	}
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS portal_properties (
  name       TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

// Reload refreshes the cached snapshot from the database.
func (s *Store) Reload(ctx context.Context) (map[string]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.reload(ctx)
}

// Snapshot returns a copy of the cached properties with defaults applied.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.props)+len(s.opts.Defaults))
	for name, value := range s.opts.Defaults {
		out[name] = value
	}
	for name, value := range s.props {
		out[name] = value
	}
	return out
}

// Get returns the cached value for name, or the default, or "".
func (s *Store) Get(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if value, ok := s.props[name]; ok {
		return value
	}
	return s.opts.Defaults[name]
}

// LoadedAt reports when the snapshot was last refreshed.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Upsert persists a property and refreshes the snapshot.
func (s *Store) Upsert(ctx context.Context, name, value string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	if _, err := s.db.ExecContext(ctx, `
INSERT INTO portal_properties (name, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE
   SET value = EXCLUDED.value,
       updated_at = now()
`, name, value); err != nil {
		return err
	}

	_, err := s.reload(ctx)
	return err
}

func (s *Store) reload(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, value
  FROM portal_properties
 ORDER BY name
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		props[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.props = props
	s.loadedAt = s.now()
	s.mu.Unlock()

	return s.Snapshot(), nil
}

func (s *Store) now() time.Time {
	if s.opts.Now != nil {
		return s.opts.Now()
	}
	return time.Now().UTC()
}
