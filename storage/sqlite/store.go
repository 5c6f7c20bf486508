// Package sqlite stores machine records in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"pkg.world.dev/world-engine/foundry/storage"
	"pkg.world.dev/world-engine/foundry/types"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, eris.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "failed to create database directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS machines (
			key   TEXT PRIMARY KEY,
			kind  TEXT NOT NULL,
			tick  INTEGER NOT NULL,
			state BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS layouts (
			kind   TEXT PRIMARY KEY,
			layout BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			name  TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return eris.Wrapf(err, "failed to run %q", stmt)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO machines (key, kind, tick, state) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, tick = excluded.tick, state = excluded.state`)
	if err != nil {
		return eris.Wrap(err, "failed to prepare upsert")
	}
	defer stmt.Close()

	for _, r := range records {
		bz, err := storage.EncodeRecord(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.Key.String(), r.Kind, int64(r.Tick), bz); err != nil { //nolint:gosec // see EncodeRecord
			return eris.Wrapf(err, "failed to save record %s", r.Key)
		}
	}
	return eris.Wrap(tx.Commit(), "failed to commit records")
}

func (s *Store) Delete(ctx context.Context, keys ...types.Key) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM machines WHERE key = ?", k.String()); err != nil {
			return eris.Wrapf(err, "failed to delete record %s", k)
		}
	}
	return nil
}

func (s *Store) Load(ctx context.Context) ([]storage.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, state FROM machines ORDER BY key")
	if err != nil {
		return nil, eris.Wrap(err, "failed to load records")
	}
	defer rows.Close()

	records := make([]storage.Record, 0)
	for rows.Next() {
		var field string
		var bz []byte
		if err := rows.Scan(&field, &bz); err != nil {
			return nil, eris.Wrap(err, "failed to scan record")
		}
		key, err := types.ParseKey(field)
		if err != nil {
			log.Error().Err(err).Str("field", field).Msg("skipping record with malformed key")
			continue
		}
		r, err := storage.DecodeRecord(key, bz)
		if err != nil {
			log.Error().Err(err).Str("machine", field).Msg("skipping corrupt record")
			continue
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "failed to iterate records")
}

func (s *Store) GetLayout(ctx context.Context, kind string) ([]byte, error) {
	var layout []byte
	err := s.db.QueryRowContext(ctx, "SELECT layout FROM layouts WHERE kind = ?", kind).Scan(&layout)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(storage.ErrNoLayoutFound, "kind %q", kind)
	} else if err != nil {
		return nil, eris.Wrap(err, "failed to get layout")
	}
	return layout, nil
}

func (s *Store) SetLayout(ctx context.Context, kind string, layout []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO layouts (kind, layout) VALUES (?, ?)
		ON CONFLICT(kind) DO UPDATE SET layout = excluded.layout`, kind, layout)
	return eris.Wrap(err, "failed to set layout")
}

func (s *Store) GetMeta(ctx context.Context, name string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE name = ?", name).Scan(&value)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(storage.ErrNoMetaFound, "name %q", name)
	} else if err != nil {
		return nil, eris.Wrap(err, "failed to get meta value")
	}
	return value, nil
}

func (s *Store) SetMeta(ctx context.Context, name string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO meta (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	return eris.Wrap(err, "failed to set meta value")
}

func (s *Store) Close() error {
	return eris.Wrap(s.db.Close(), "failed to close database")
}
