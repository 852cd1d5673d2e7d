// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pipeline runs every statement of a submission, in order, on the
// tenant's pooled connection and yields one result per statement as soon as it
// is available.
//
// A failed statement never stops its siblings: the session is rolled back when
// the failure left it inside a transaction and the next statement runs.
package pipeline

import (
	"context"
	"iter"

	"sqlab/engine/internal/sqlexec"
	"sqlab/engine/internal/statement"
	"sqlab/engine/internal/tenant"

	"go.uber.org/zap"
)

// Pipeline executes submissions for any tenant of a pool.
type Pipeline struct {
	pool     *tenant.Pool
	exec     *sqlexec.Executor
	splitter statement.Splitter
	log      *zap.Logger
}

// New creates a Pipeline.
func New(pool *tenant.Pool, exec *sqlexec.Executor, splitter statement.Splitter, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{pool: pool, exec: exec, splitter: splitter, log: log.Named("pipeline")}
}

// Run splits text and executes each statement lazily, one per iteration step.
// The error value is non-nil only for connectivity failures and context
// cancellation; it is yielded once and ends the sequence. SQL failures are
// Error results.
func (p *Pipeline) Run(ctx context.Context, name, text string, stripComments bool) iter.Seq2[sqlexec.Result, error] {
	return p.run(ctx, name, p.splitter.Split(text, stripComments))
}

// RunBuiltin executes a single builtin query through the same path as
// student statements.
func (p *Pipeline) RunBuiltin(ctx context.Context, name string, u statement.Unit) iter.Seq2[sqlexec.Result, error] {
	return p.run(ctx, name, func(yield func(statement.Unit) bool) { yield(u) })
}

func (p *Pipeline) run(ctx context.Context, name string, units iter.Seq[statement.Unit]) iter.Seq2[sqlexec.Result, error] {
	return func(yield func(sqlexec.Result, error) bool) {
		for u := range units {
			if err := ctx.Err(); err != nil {
				yield(sqlexec.Result{Statement: u}, err)
				return
			}
			rec, err := p.pool.Acquire(ctx, name)
			if err != nil {
				yield(sqlexec.Result{Statement: u}, err)
				return
			}
			res := p.step(ctx, rec, u)
			if !yield(res, nil) {
				return
			}
		}
	}
}

func (p *Pipeline) step(ctx context.Context, rec *tenant.Record, u statement.Unit) sqlexec.Result {
	done := rec.Begin()
	defer done()

	res := p.exec.Execute(ctx, rec, u)
	if res.Kind != sqlexec.KindError {
		return res
	}
	if rec.Conn().IsClosed() {
		p.log.Warn("tenant connection lost", zap.String("tenant", rec.Tenant), zap.String("kind", res.Error.Kind))
		done()
		p.pool.Evict(ctx, rec.Tenant)
		return res
	}
	if err := p.exec.Rollback(ctx, rec); err != nil {
		p.log.Warn("rollback failed", zap.String("tenant", rec.Tenant), zap.Error(err))
	}
	return res
}
