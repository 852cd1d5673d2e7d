// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of a pgx connection the engine drives.
// *pgx.Conn satisfies it through pgxConn; tests use internal/pgfake.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	// TxStatus reports the backend transaction status: 'I' idle, 'T' in a
	// transaction, 'E' in a failed transaction.
	TxStatus() byte
	IsClosed() bool
	Close(ctx context.Context) error
}

// Record is the pool's entry for one tenant: a live connection plus the
// bookkeeping the reaper and the executor need.
type Record struct {
	Tenant     string
	autocommit bool
	now        func() time.Time

	conn Conn

	mu       sync.Mutex
	notices  []string
	lastUsed time.Time
	inFlight int

	closeOnce sync.Once
	closeErr  error
}

func newRecord(name string, autocommit bool, now func() time.Time) *Record {
	return &Record{Tenant: name, autocommit: autocommit, now: now, lastUsed: now()}
}

// Conn returns the underlying connection.
func (r *Record) Conn() Conn { return r.conn }

// Autocommit reports the mode fixed when the connection was created.
func (r *Record) Autocommit() bool { return r.autocommit }

func (r *Record) addNotice(msg string) {
	r.mu.Lock()
	r.notices = append(r.notices, msg)
	r.mu.Unlock()
}

// TakeNotices returns the notices buffered since the last clear and empties the buffer.
func (r *Record) TakeNotices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}

// ClearNotices drops any buffered notices.
func (r *Record) ClearNotices() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}

// Touch refreshes the last-activity timestamp.
func (r *Record) Touch() {
	r.mu.Lock()
	r.lastUsed = r.now()
	r.mu.Unlock()
}

// LastUsed returns the last-activity timestamp.
func (r *Record) LastUsed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUsed
}

// Begin marks an operation in flight. The returned function ends it and
// refreshes the last-activity timestamp. A record with operations in flight
// is never considered idle.
func (r *Record) Begin() (done func()) {
	r.mu.Lock()
	r.inFlight++
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.inFlight--
			r.lastUsed = r.now()
			r.mu.Unlock()
		})
	}
}

// idleFor returns how long the record has been idle at now.
func (r *Record) idleFor(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight > 0 {
		return 0
	}
	return now.Sub(r.lastUsed)
}

// Close closes the connection once; later calls return the first result.
func (r *Record) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		if r.conn != nil {
			r.closeErr = r.conn.Close(ctx)
		}
	})
	return r.closeErr
}
