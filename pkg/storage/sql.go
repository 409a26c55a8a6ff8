package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps values in a two-column table. Works against postgres and sqlite.
type SQLStore struct {
	db    *sqlx.DB
	table string
}

// NewSQLStore validates the table name and returns a store. Call EnsureSchema once before use.
func NewSQLStore(db *sqlx.DB, table string) (*SQLStore, error) {
	if table == "" {
		table = "client_state"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid state table name %q", table)
	}
	return &SQLStore{db: db, table: table}, nil
}

// EnsureSchema creates the table when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	query := s.db.Rebind(fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, s.table))
	var value string
	if err := s.db.GetContext(ctx, &value, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	query := s.db.Rebind(fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`, s.table))
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	query := s.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.table))
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("remove state %s: %w", key, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
