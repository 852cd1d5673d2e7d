// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pgfake provides a scripted, in-memory stand-in for a tenant's pgx
// connection so the executor, pipeline and checker can be exercised without a
// running PostgreSQL server.
//
// Responses are keyed by the exact SQL text. Transaction status follows the
// server's rules closely enough for rollback logic: BEGIN enters a transaction,
// a failure inside one aborts it, COMMIT and ROLLBACK return to idle.
package pgfake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"sqlab/engine/internal/tenant"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Column describes one result column.
type Column struct {
	Name string
	OID  uint32
}

// Response scripts the outcome of one SQL text.
type Response struct {
	Columns []Column
	Rows    [][]any
	Tag     string
	Err     error
	Notices []string
	// QueryErr is returned by Query itself instead of surfacing through Rows.Err.
	QueryErr error
	// CloseConn marks the connection closed when the statement runs.
	CloseConn bool
}

// Call records one Query or Exec.
type Call struct {
	SQL  string
	Args []any
}

// Conn implements tenant.Conn.
type Conn struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []Call
	tx        byte
	closed    bool
	closes    int
	CloseErr  error
	// ExecErr, when set, fails every Exec whose SQL has this prefix.
	ExecErr map[string]error
	notice  func(string)
}

// NewConn returns an idle connection with no scripted responses.
func NewConn() *Conn {
	return &Conn{responses: map[string]Response{}, tx: 'I', ExecErr: map[string]error{}}
}

// On scripts the response for sql.
func (c *Conn) On(sql string, r Response) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[sql] = r
	return c
}

// Calls returns every statement sent so far.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Executed returns the SQL text of every statement sent so far.
func (c *Conn) Executed() []string {
	var out []string
	for _, call := range c.Calls() {
		out = append(out, call.SQL)
	}
	return out
}

// Closes returns how many times Close was called.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// SetTxStatus forces the transaction status.
func (c *Conn) SetTxStatus(s byte) {
	c.mu.Lock()
	c.tx = s
	c.mu.Unlock()
}

func (c *Conn) record(sql string, args []any) {
	c.calls = append(c.calls, Call{SQL: sql, Args: args})
}

func (c *Conn) transition(sql string, failed bool) {
	head := strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";")))
	switch {
	case failed:
		if c.tx == 'T' {
			c.tx = 'E'
		}
	case head == "BEGIN" || strings.HasPrefix(head, "START TRANSACTION"):
		c.tx = 'T'
	case head == "COMMIT" || head == "ROLLBACK" || head == "END":
		c.tx = 'I'
	}
}

// Query implements tenant.Conn.
func (c *Conn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("conn closed")
	}
	c.record(sql, args)
	r, ok := c.responses[sql]
	if !ok {
		r = Response{Tag: defaultTag(sql)}
	}
	if c.tx == 'E' && !isTxEnd(sql) {
		r = Response{Err: &pgconn.PgError{
			Severity: "ERROR",
			Code:     "25P02",
			Message:  "current transaction is aborted, commands ignored until end of transaction block",
		}}
	}
	if r.CloseConn {
		c.closed = true
	}
	c.transition(sql, r.Err != nil || r.QueryErr != nil)
	notice := c.notice
	c.mu.Unlock()

	if notice != nil {
		for _, n := range r.Notices {
			notice(n)
		}
	}
	if r.QueryErr != nil {
		return nil, r.QueryErr
	}
	fields := make([]pgconn.FieldDescription, len(r.Columns))
	for i, col := range r.Columns {
		fields[i] = pgconn.FieldDescription{Name: col.Name, DataTypeOID: col.OID}
	}
	return &rows{fields: fields, data: r.Rows, err: r.Err, tag: pgconn.NewCommandTag(r.Tag)}, nil
}

// Exec implements tenant.Conn.
func (c *Conn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return pgconn.CommandTag{}, errors.New("conn closed")
	}
	c.record(sql, args)
	for prefix, err := range c.ExecErr {
		if strings.HasPrefix(sql, prefix) {
			return pgconn.CommandTag{}, err
		}
	}
	c.transition(sql, false)
	return pgconn.NewCommandTag(defaultTag(sql)), nil
}

// TxStatus implements tenant.Conn.
func (c *Conn) TxStatus() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx
}

// IsClosed implements tenant.Conn.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close implements tenant.Conn.
func (c *Conn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.closed = true
	return c.CloseErr
}

func isTxEnd(sql string) bool {
	head := strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";")))
	return head == "ROLLBACK" || head == "COMMIT" || head == "END"
}

func defaultTag(sql string) string {
	fields := strings.Fields(strings.ToUpper(sql))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[0], ";")
}

// Dialer implements tenant.Dialer over scripted connections.
type Dialer struct {
	mu    sync.Mutex
	conns map[string]*Conn
	dials map[string]int
	// Err fails every Dial when set.
	Err error
}

// NewDialer returns a dialer that creates an empty Conn for unknown tenants.
func NewDialer() *Dialer {
	return &Dialer{conns: map[string]*Conn{}, dials: map[string]int{}}
}

// Conn returns the scripted connection for name, creating it if needed.
func (d *Dialer) Conn(name string) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conns[name]
	if !ok {
		c = NewConn()
		d.conns[name] = c
	}
	return c
}

// Dials returns how many connections were opened for name.
func (d *Dialer) Dials(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[name]
}

// Dial implements tenant.Dialer. A connection closed by the pool is replaced
// by a fresh one carrying the same script on the next dial.
func (d *Dialer) Dial(_ context.Context, name string, onNotice func(string)) (tenant.Conn, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	c := d.Conn(name)
	c.mu.Lock()
	if c.closed {
		fresh := NewConn()
		fresh.responses = c.responses
		fresh.ExecErr = c.ExecErr
		c.mu.Unlock()
		d.mu.Lock()
		d.conns[name] = fresh
		d.mu.Unlock()
		c = fresh
		c.mu.Lock()
	}
	c.notice = onNotice
	c.mu.Unlock()

	d.mu.Lock()
	d.dials[name]++
	d.mu.Unlock()
	return c, nil
}

type rows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	i      int
	err    error
	tag    pgconn.CommandTag
}

func (r *rows) Close()                                       {}
func (r *rows) Err() error                                   { return r.err }
func (r *rows) CommandTag() pgconn.CommandTag                { return r.tag }
func (r *rows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *rows) RawValues() [][]byte                          { return nil }
func (r *rows) Conn() *pgx.Conn                              { return nil }

func (r *rows) Next() bool {
	if r.err != nil || r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *rows) Values() ([]any, error) {
	if r.i == 0 || r.i > len(r.data) {
		return nil, errors.New("no current row")
	}
	return r.data[r.i-1], nil
}

func (r *rows) Scan(dest ...any) error {
	vals, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *any:
			*d = v
		case *string:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("scan: column %d is %T", i, v)
			}
			*d = s
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}
