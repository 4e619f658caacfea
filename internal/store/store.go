// Package store persists FEM contact records in SQLite. The database is a
// single local file opened with one connection; WAL and a busy timeout keep
// concurrent readers from tripping over the writer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/onlinefem/onlinefem/internal/models"
	"github.com/onlinefem/onlinefem/internal/observability"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("record not found")

// RecordStore is the persistence surface handlers depend on. There is
// deliberately no create or delete; records enter via seeding.
type RecordStore interface {
	List(ctx context.Context) ([]models.FEMRecord, error)
	Get(ctx context.Context, id int64) (models.FEMRecord, error)
	Update(ctx context.Context, id int64, patch models.RecordPatch) (models.FEMRecord, error)
	Ping(ctx context.Context) error
}

// SQLiteStore backs RecordStore with a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and bootstraps
// the schema.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// modernc.org/sqlite serializes access per connection; a single
	// connection avoids SQLITE_BUSY between pool members.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS fem_records (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL,
			message    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("create fem_records: %w", err)
	}

	// Column migrations for databases created before a column existed.
	migrations := []struct {
		column string
		ddl    string
	}{
		{"message", "ALTER TABLE fem_records ADD COLUMN message TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "ALTER TABLE fem_records ADD COLUMN updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"},
	}
	for _, m := range migrations {
		ok, err := s.hasColumn("fem_records", m.column)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := s.db.Exec(m.ddl); err != nil {
				return fmt.Errorf("add column %s: %w", m.column, err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// List returns all records ordered by id.
func (s *SQLiteStore) List(ctx context.Context) ([]models.FEMRecord, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, message, created_at, updated_at FROM fem_records ORDER BY id`)
	observability.RecordStoreQuery("list", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := make([]models.FEMRecord, 0)
	for rows.Next() {
		var r models.FEMRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Message, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (models.FEMRecord, error) {
	start := time.Now()
	var r models.FEMRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, message, created_at, updated_at FROM fem_records WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Email, &r.Message, &r.CreatedAt, &r.UpdatedAt)
	observability.RecordStoreQuery("get", err, time.Since(start))
	if errors.Is(err, sql.ErrNoRows) {
		return models.FEMRecord{}, ErrNotFound
	}
	if err != nil {
		return models.FEMRecord{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return r, nil
}

// Update applies the patch to the record with the given id and returns the
// updated record. Nil patch fields are left unchanged. updated_at is bumped
// on every successful update.
func (s *SQLiteStore) Update(ctx context.Context, id int64, patch models.RecordPatch) (models.FEMRecord, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return models.FEMRecord{}, err
	}
	patch.Apply(&r)
	r.UpdatedAt = time.Now().UTC()

	start := time.Now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE fem_records SET name = ?, email = ?, message = ?, updated_at = ? WHERE id = ?`,
		r.Name, r.Email, r.Message, r.UpdatedAt, id)
	observability.RecordStoreQuery("update", err, time.Since(start))
	if err != nil {
		return models.FEMRecord{}, fmt.Errorf("update record %d: %w", id, err)
	}
	return r, nil
}

// SeedDemo inserts demo records when the table is empty. Intended for dev
// and testing configurations only.
func (s *SQLiteStore) SeedDemo(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fem_records`).Scan(&n); err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	if n > 0 {
		return nil
	}

	demo := []models.FEMRecord{
		{Name: "Ada Lovelace", Email: "ada@example.com", Message: "Interested in plate bending analysis."},
		{Name: "Olga Ladyzhenskaya", Email: "olga@example.com", Message: "Requesting a 32x32 unit square mesh."},
		{Name: "Richard Courant", Email: "courant@example.com", Message: ""},
	}
	start := time.Now()
	var seedErr error
	for _, r := range demo {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO fem_records (name, email, message) VALUES (?, ?, ?)`,
			r.Name, r.Email, r.Message); err != nil {
			seedErr = fmt.Errorf("seed record: %w", err)
			break
		}
	}
	observability.RecordStoreQuery("seed", seedErr, time.Since(start))
	return seedErr
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
