// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec runs single statements against a tenant connection and turns
// every driver outcome into a Result: a dataset, a status line or a normalized
// error. It also holds the catalog queries used by the schema introspector and
// the builtin queries shown under an alias.
//
// The executor never rolls back. Deciding what to do after a failure belongs
// to the caller, which knows whether sibling statements share a transaction.
package sqlexec

import (
	"context"

	"sqlab/engine/internal/statement"
	"sqlab/engine/internal/tenant"

	"go.uber.org/zap"
)

// Executor executes statements on pooled tenant connections.
type Executor struct {
	log *zap.Logger
}

// New creates an Executor. A nil logger disables logging.
func New(log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{log: log.Named("exec")}
}

// Execute runs u on rec's connection and returns exactly one Result. Notices
// raised while the statement ran are attached and cleared from rec.
func (e *Executor) Execute(ctx context.Context, rec *tenant.Record, u statement.Unit) Result {
	return e.ExecuteArgs(ctx, rec, u)
}

// ExecuteArgs is Execute with bind arguments. It is used for catalog and
// search path queries; student SQL never carries arguments.
func (e *Executor) ExecuteArgs(ctx context.Context, rec *tenant.Record, u statement.Unit, args ...any) Result {
	conn := rec.Conn()

	if !rec.Autocommit() && conn.TxStatus() == 'I' {
		if _, err := conn.Exec(ctx, "BEGIN"); err != nil {
			e.log.Debug("implicit BEGIN failed", zap.String("tenant", rec.Tenant), zap.Error(err))
			return ErrorResult(u, err, rec.TakeNotices())
		}
	}

	rows, err := conn.Query(ctx, u.SQL, args...)
	if err != nil {
		e.log.Debug("statement failed", zap.String("tenant", rec.Tenant), zap.Error(err))
		return ErrorResult(u, err, rec.TakeNotices())
	}
	defer rows.Close()

	// Field descriptions are read before iterating; a statement without a
	// row description is a status outcome.
	fds := rows.FieldDescriptions()
	var ds *Dataset
	if len(fds) > 0 {
		ds = &Dataset{Columns: make([]Column, len(fds)), Rows: [][]any{}}
		for i, fd := range fds {
			ds.Columns[i] = Column{Name: fd.Name, TypeOID: fd.DataTypeOID}
		}
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			rows.Close()
			return ErrorResult(u, err, rec.TakeNotices())
		}
		if ds != nil {
			ds.Rows = append(ds.Rows, vals)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		e.log.Debug("statement failed", zap.String("tenant", rec.Tenant), zap.Error(err))
		return ErrorResult(u, err, rec.TakeNotices())
	}

	notices := rec.TakeNotices()
	if ds != nil {
		e.log.Debug("statement returned rows",
			zap.String("tenant", rec.Tenant), zap.Int("rows", len(ds.Rows)), zap.Int("columns", len(ds.Columns)))
		return DatasetResult(u, ds, notices)
	}
	return StatusResult(u, rows.CommandTag().String(), notices)
}

// Rollback aborts the session's open transaction, if any. It is a no-op when
// the session is idle. Callers log the error; it never changes a Result.
func (e *Executor) Rollback(ctx context.Context, rec *tenant.Record) error {
	conn := rec.Conn()
	if conn.IsClosed() || conn.TxStatus() == 'I' {
		return nil
	}
	_, err := conn.Exec(ctx, "ROLLBACK")
	rec.ClearNotices()
	return err
}
