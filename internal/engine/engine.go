// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package engine is the facade an API layer talks to. It owns the tenant pool
// and wires the splitter, executor, pipeline, introspector, checker and
// provisioner around it.
//
// The engine trusts the tenant name it is given; authentication happens
// before a request reaches it. Callers serialize concurrent submissions of
// one tenant themselves.
package engine

import (
	"context"
	"iter"

	"sqlab/engine/internal/checker"
	apperrors "sqlab/engine/internal/errors"
	"sqlab/engine/internal/pipeline"
	"sqlab/engine/internal/provision"
	"sqlab/engine/internal/sqlexec"
	"sqlab/engine/internal/statement"
	"sqlab/engine/internal/tenant"

	"go.uber.org/zap"
)

// ResultLogger persists an execution result and returns the external id
// assigned to it.
type ResultLogger interface {
	Log(ctx context.Context, tenant string, res sqlexec.Result) (string, error)
}

// CategorizeInput is what an error categorizer is fed.
type CategorizeInput struct {
	Tenant     string
	Query      string
	SearchPath string
	Columns    []sqlexec.ColumnFact
	Uniques    []sqlexec.UniqueFact
}

// Categorizer detects likely mistakes in a query. Its descriptors are opaque
// to the engine.
type Categorizer interface {
	Categorize(ctx context.Context, in CategorizeInput) ([]any, error)
}

// Options configures an Engine.
type Options struct {
	// Backend selects the query set; empty means postgres.
	Backend    string
	Pool       tenant.Options
	StripLimit int
	Logger     *zap.Logger

	// Optional collaborators.
	Results     ResultLogger
	Categorizer Categorizer
	Provisioner *provision.Provisioner
}

// Engine exposes every tenant-facing operation.
type Engine struct {
	pool     *tenant.Pool
	exec     *sqlexec.Executor
	dialect  sqlexec.Dialect
	intro    *sqlexec.Introspector
	pipeline *pipeline.Pipeline
	checker  *checker.Checker

	prov        *provision.Provisioner
	results     ResultLogger
	categorizer Categorizer
	log         *zap.Logger
}

// New builds an Engine over dialer. Call Start to run the idle reaper.
func New(dialer tenant.Dialer, opts Options) (*Engine, error) {
	dialect, err := sqlexec.NewDialect(opts.Backend)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Pool.Logger == nil {
		opts.Pool.Logger = log
	}

	pool := tenant.New(dialer, opts.Pool)
	exec := sqlexec.New(log)
	intro := sqlexec.NewIntrospector(exec, dialect)
	return &Engine{
		pool:        pool,
		exec:        exec,
		dialect:     dialect,
		intro:       intro,
		pipeline:    pipeline.New(pool, exec, statement.Splitter{StripLimit: opts.StripLimit}, log),
		checker:     checker.New(pool, exec, intro, log),
		prov:        opts.Provisioner,
		results:     opts.Results,
		categorizer: opts.Categorizer,
		log:         log.Named("engine"),
	}, nil
}

// Start launches the idle-connection reaper.
func (e *Engine) Start() error { return e.pool.Start() }

// Close stops the reaper and closes every tenant connection.
func (e *Engine) Close(ctx context.Context) error { return e.pool.Close(ctx) }

// Pool returns the tenant pool.
func (e *Engine) Pool() *tenant.Pool { return e.pool }

// Dialect returns the query set in use.
func (e *Engine) Dialect() sqlexec.Dialect { return e.dialect }

// AcquireConnection returns the tenant's pooled connection, opening it on
// first use.
func (e *Engine) AcquireConnection(ctx context.Context, name string) (*tenant.Record, error) {
	return e.pool.Acquire(ctx, name)
}

// RunSubmission executes every statement of text lazily. When a ResultLogger
// is configured each result is logged before it is yielded and carries the
// assigned id; logging failures are reported in the log and do not stop the
// submission.
func (e *Engine) RunSubmission(ctx context.Context, name, text string, stripComments bool) iter.Seq2[sqlexec.Result, error] {
	return e.logged(ctx, name, e.pipeline.Run(ctx, name, text, stripComments))
}

// RunBuiltin executes the named builtin query.
func (e *Engine) RunBuiltin(ctx context.Context, name, builtin string) (iter.Seq2[sqlexec.Result, error], error) {
	u, ok := e.dialect.Builtin(builtin)
	if !ok {
		return nil, apperrors.New(apperrors.UnknownBuiltin, "unknown builtin query "+builtin)
	}
	return e.logged(ctx, name, e.pipeline.RunBuiltin(ctx, name, u)), nil
}

// Builtins lists the builtin query names of the active backend.
func (e *Engine) Builtins() []string { return e.dialect.BuiltinNames() }

func (e *Engine) logged(ctx context.Context, name string, seq iter.Seq2[sqlexec.Result, error]) iter.Seq2[sqlexec.Result, error] {
	if e.results == nil {
		return seq
	}
	return func(yield func(sqlexec.Result, error) bool) {
		for res, err := range seq {
			if err == nil {
				id, lerr := e.results.Log(ctx, name, res)
				if lerr != nil {
					e.log.Warn("result not logged", zap.String("tenant", name), zap.Error(lerr))
				} else {
					res.ID = id
				}
			}
			if !yield(res, err) {
				return
			}
		}
	}
}

// introspect runs fn on the tenant's connection and rolls back when the
// catalog query failed inside a transaction.
func introspect[T any](ctx context.Context, e *Engine, name string, fn func(context.Context, *tenant.Record) (T, error)) (T, error) {
	var zero T
	rec, err := e.pool.Acquire(ctx, name)
	if err != nil {
		return zero, err
	}
	done := rec.Begin()
	defer done()

	v, err := fn(ctx, rec)
	if err != nil {
		if rerr := e.exec.Rollback(ctx, rec); rerr != nil {
			e.log.Warn("rollback failed", zap.String("tenant", name), zap.Error(rerr))
		}
		return zero, err
	}
	return v, nil
}

// GetSearchPath returns the tenant session's search_path.
func (e *Engine) GetSearchPath(ctx context.Context, name string) (string, error) {
	return introspect(ctx, e, name, e.intro.SearchPath)
}

// GetColumns returns one fact per user table column.
func (e *Engine) GetColumns(ctx context.Context, name string) ([]sqlexec.ColumnFact, error) {
	return introspect(ctx, e, name, e.intro.Columns)
}

// GetUniqueConstraints returns primary key and unique constraints.
func (e *Engine) GetUniqueConstraints(ctx context.Context, name string) ([]sqlexec.UniqueFact, error) {
	return introspect(ctx, e, name, e.intro.UniqueConstraints)
}

// CheckSolution compares the first statement of student with the references.
func (e *Engine) CheckSolution(ctx context.Context, name, student string, references []string, referenceSearchPath string) (checker.Result, error) {
	return e.checker.Check(ctx, name, student, references, referenceSearchPath)
}

// ProvisionTenant creates the tenant's role and database. An existing
// database counts as success.
func (e *Engine) ProvisionTenant(ctx context.Context, name, password string) (bool, error) {
	if e.prov == nil {
		return false, apperrors.New(apperrors.ConfigInvalid, "no administrative connection configured")
	}
	return e.prov.Provision(ctx, name, password)
}

// DropTenant closes the tenant's pooled connection and removes its database
// and role.
func (e *Engine) DropTenant(ctx context.Context, name string) error {
	if e.prov == nil {
		return apperrors.New(apperrors.ConfigInvalid, "no administrative connection configured")
	}
	if err := tenant.ValidateName(name); err != nil {
		return err
	}
	e.pool.Evict(ctx, name)
	return e.prov.Drop(ctx, name)
}

// Categorize feeds the tenant's schema facts, the query and the reference
// search path to the configured Categorizer. It returns nil when none is
// configured.
func (e *Engine) Categorize(ctx context.Context, name, query, referenceSearchPath string) ([]any, error) {
	if e.categorizer == nil {
		return nil, nil
	}
	cols, err := e.GetColumns(ctx, name)
	if err != nil {
		return nil, err
	}
	uniques, err := e.GetUniqueConstraints(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.categorizer.Categorize(ctx, CategorizeInput{
		Tenant:     name,
		Query:      query,
		SearchPath: referenceSearchPath,
		Columns:    cols,
		Uniques:    uniques,
	})
}
