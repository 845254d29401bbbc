// Package store persists emitted ProtoKernel bytecode in a sqlite
// database, keyed by program name and version, so a simulator driver
// can look up a previously emitted program without re-running the
// pipeline. Grounded on internal/database's sql.DB connection-pool and
// migration style (DBManager.Connect / Execute), narrowed from a
// generic multi-driver connection manager down to one fixed sqlite
// binding for one fixed table.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Program is one emitted bytecode buffer plus the resolved DEF_VM
// preamble fields needed to describe it without re-parsing the buffer.
type Program struct {
	Name         string
	Version      string
	RunID        string
	Buffer       []byte
	OpsChecksum  string
	ExportLen    int
	NExports     int
	NGlobals     int
	NStates      int
	MaxStack     int
	MaxEnv       int
	EmittedAt    time.Time
}

// BytecodeStore wraps a single sqlite connection, mirroring
// internal/database.DBManager's one-struct-per-backing-store shape but
// fixed to the registry's one table rather than a general connection
// pool, since a registry has no need to juggle several open databases
// at once.
type BytecodeStore struct {
	db *sql.DB
}

// Open creates (if needed) the bytecode_programs table in the sqlite
// file at path and returns a ready store.
func Open(path string) (*BytecodeStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to apply schema: %w", err)
	}
	return &BytecodeStore{db: db}, nil
}

func (s *BytecodeStore) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS bytecode_programs (
	name          TEXT NOT NULL,
	version       TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	buffer        BLOB NOT NULL,
	ops_checksum  TEXT NOT NULL,
	export_len    INTEGER NOT NULL,
	n_exports     INTEGER NOT NULL,
	n_globals     INTEGER NOT NULL,
	n_states      INTEGER NOT NULL,
	max_stack     INTEGER NOT NULL,
	max_env       INTEGER NOT NULL,
	emitted_at    DATETIME NOT NULL,
	PRIMARY KEY (name, version)
);
`

// Put inserts or replaces the stored program for (name, version).
func (s *BytecodeStore) Put(p Program) error {
	_, err := s.db.Exec(`
		INSERT INTO bytecode_programs
			(name, version, run_id, buffer, ops_checksum, export_len, n_exports, n_globals, n_states, max_stack, max_env, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, version) DO UPDATE SET
			run_id=excluded.run_id, buffer=excluded.buffer, ops_checksum=excluded.ops_checksum,
			export_len=excluded.export_len, n_exports=excluded.n_exports, n_globals=excluded.n_globals,
			n_states=excluded.n_states, max_stack=excluded.max_stack, max_env=excluded.max_env,
			emitted_at=excluded.emitted_at
	`, p.Name, p.Version, p.RunID, p.Buffer, p.OpsChecksum, p.ExportLen, p.NExports, p.NGlobals, p.NStates, p.MaxStack, p.MaxEnv, p.EmittedAt)
	if err != nil {
		return fmt.Errorf("store: failed to save %s@%s: %w", p.Name, p.Version, err)
	}
	return nil
}

// Get loads a previously stored program, or (Program{}, false, nil) if
// none exists for (name, version).
func (s *BytecodeStore) Get(name, version string) (Program, bool, error) {
	row := s.db.QueryRow(`
		SELECT run_id, buffer, ops_checksum, export_len, n_exports, n_globals, n_states, max_stack, max_env, emitted_at
		FROM bytecode_programs WHERE name = ? AND version = ?
	`, name, version)

	var p Program
	p.Name, p.Version = name, version
	err := row.Scan(&p.RunID, &p.Buffer, &p.OpsChecksum, &p.ExportLen, &p.NExports, &p.NGlobals, &p.NStates, &p.MaxStack, &p.MaxEnv, &p.EmittedAt)
	if err == sql.ErrNoRows {
		return Program{}, false, nil
	}
	if err != nil {
		return Program{}, false, fmt.Errorf("store: failed to load %s@%s: %w", name, version, err)
	}
	return p, true, nil
}

// Versions lists every stored version of a named program, most recent first.
func (s *BytecodeStore) Versions(name string) ([]string, error) {
	rows, err := s.db.Query(`SELECT version FROM bytecode_programs WHERE name = ? ORDER BY emitted_at DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list versions of %s: %w", name, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: failed to scan version row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
