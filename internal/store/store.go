// Package store persists extracted template documents in SQLite. The build
// step writes documents here; the runtime registry loads them back. The
// store deals in opaque JSON payloads so it stays decoupled from the
// document schema.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when no document exists for a component.
var ErrNotFound = errors.New("template document not found")

// Store wraps the SQLite database holding template documents.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and runs pending
// migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration up failed: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveDocument stores one document payload. Re-saving the same component
// and version overwrites the payload.
func (s *Store) SaveDocument(ctx context.Context, component, version string, generatedAt time.Time, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO template_documents (component, version, generated_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (component, version) DO UPDATE
		SET generated_at = excluded.generated_at,
		    payload      = excluded.payload,
		    created_at   = CURRENT_TIMESTAMP`,
		component, version, generatedAt.UTC(), payload)
	if err != nil {
		return fmt.Errorf("saving document for %q: %w", component, err)
	}
	return nil
}

// LoadLatest returns the most recently saved payload for a component.
func (s *Store) LoadLatest(ctx context.Context, component string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM template_documents
		WHERE component = ?
		ORDER BY created_at DESC
		LIMIT 1`,
		component).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("component %q: %w", component, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading document for %q: %w", component, err)
	}
	return payload, nil
}

// LoadVersion returns one specific version's payload.
func (s *Store) LoadVersion(ctx context.Context, component, version string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM template_documents
		WHERE component = ? AND version = ?`,
		component, version).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("component %q version %q: %w", component, version, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading document for %q: %w", component, err)
	}
	return payload, nil
}

// Versions lists a component's stored versions, newest first.
func (s *Store) Versions(ctx context.Context, component string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version FROM template_documents
		WHERE component = ?
		ORDER BY created_at DESC`,
		component)
	if err != nil {
		return nil, fmt.Errorf("listing versions for %q: %w", component, err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Components lists every component with at least one stored document.
func (s *Store) Components(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT component FROM template_documents
		ORDER BY component`)
	if err != nil {
		return nil, fmt.Errorf("listing components: %w", err)
	}
	defer rows.Close()

	var components []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// DeleteComponent removes every stored version of a component.
func (s *Store) DeleteComponent(ctx context.Context, component string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM template_documents WHERE component = ?`,
		component)
	if err != nil {
		return fmt.Errorf("deleting documents for %q: %w", component, err)
	}
	return nil
}
