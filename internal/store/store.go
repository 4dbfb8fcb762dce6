// Package store is the SQLite data access layer for interposecheck's
// package/object/symbol graph.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a SQLite database holding the Package/Object/Symbol graph.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database at dbPath in the default,
// consistency-preserving mode: foreign keys are enforced and the journal
// is in WAL mode. This is the mode the Analyser uses.
func Open(dbPath string) (*Store, error) {
	return open(dbPath, "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
}

// OpenForBulkInsert opens a SQLite database at dbPath in the relaxed,
// bulk-insert mode the Indexer uses: foreign-key checking is disabled,
// the journal is kept in memory and synchronous writes are off, mirroring
// lib/database.py's connect_for_bulk_inserts.
func OpenForBulkInsert(dbPath string) (*Store, error) {
	return open(dbPath, "?_journal_mode=MEMORY&_foreign_keys=OFF&_synchronous=OFF&_busy_timeout=30000")
}

func open(dbPath, dsnSuffix string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnSuffix)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS packages (
  id          INTEGER PRIMARY KEY,
  name        TEXT NOT NULL,
  source_name TEXT
);

CREATE TABLE IF NOT EXISTS errors (
  id         INTEGER PRIMARY KEY,
  package_id INTEGER NOT NULL REFERENCES packages(id),
  message    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS objects (
  id          INTEGER PRIMARY KEY,
  name        TEXT NOT NULL,
  soname      TEXT,
  is_shlib    BOOLEAN NOT NULL,
  is_symbolic BOOLEAN NOT NULL,
  package_id  INTEGER NOT NULL REFERENCES packages(id)
);

CREATE TABLE IF NOT EXISTS shlib_deps (
  id        INTEGER PRIMARY KEY,
  object_id INTEGER NOT NULL REFERENCES objects(id),
  dep_name  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
  id               INTEGER PRIMARY KEY,
  name             TEXT NOT NULL,
  version          TEXT,
  is_weak          BOOLEAN NOT NULL,
  is_protected     BOOLEAN NOT NULL,
  import_or_export INTEGER NOT NULL,
  object_id        INTEGER NOT NULL REFERENCES objects(id)
);

CREATE INDEX IF NOT EXISTS idx_packages_name ON packages(name);
CREATE INDEX IF NOT EXISTS idx_errors_package ON errors(package_id);
CREATE INDEX IF NOT EXISTS idx_objects_soname ON objects(soname);
CREATE INDEX IF NOT EXISTS idx_objects_package ON objects(package_id);
CREATE INDEX IF NOT EXISTS idx_shlib_deps_object ON shlib_deps(object_id);
CREATE INDEX IF NOT EXISTS idx_symbols_object ON symbols(object_id);
`
