// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package history keeps a local log of executed statements in SQLite and
// assigns each logged result its external id.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sqlab/engine/internal/sqlexec"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	id         TEXT PRIMARY KEY,
	tenant     TEXT NOT NULL,
	sql        TEXT NOT NULL,
	builtin    INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	success    INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS results_tenant_created ON results (tenant, created_at);
`

// Entry is one logged result.
type Entry struct {
	ID        string
	Tenant    string
	SQL       string
	Builtin   bool
	Kind      sqlexec.Kind
	Success   bool
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Store is a SQLite-backed result log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent tenants.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Log stores res for tenant and returns the id assigned to it.
func (s *Store) Log(ctx context.Context, tenant string, res sqlexec.Result) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (id, tenant, sql, builtin, kind, success, payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, tenant, res.Statement.Display(), res.Statement.IsBuiltin(), string(res.Kind), res.Success,
		string(payload), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("log result: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries for tenant, newest first.
func (s *Store) Recent(ctx context.Context, tenant string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant, sql, builtin, kind, success, payload, created_at
		FROM results WHERE tenant = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			payload string
			created string
		)
		if err := rows.Scan(&e.ID, &e.Tenant, &e.SQL, &e.Builtin, &kind, &e.Success, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Kind = sqlexec.Kind(kind)
		e.Payload = json.RawMessage(payload)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse history timestamp %q: %w", created, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
