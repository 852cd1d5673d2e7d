// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline_test

import (
	"context"
	"errors"
	"testing"

	apperrors "sqlab/engine/internal/errors"
	"sqlab/engine/internal/pgfake"
	"sqlab/engine/internal/pipeline"
	"sqlab/engine/internal/sqlexec"
	"sqlab/engine/internal/statement"
	"sqlab/engine/internal/tenant"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func intColumn(name string) []pgfake.Column {
	return []pgfake.Column{{Name: name, OID: pgtype.Int4OID}}
}

func newPipeline(t *testing.T, d *pgfake.Dialer, autocommit bool, log *zap.Logger) (*pipeline.Pipeline, *tenant.Pool) {
	t.Helper()
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	pool := tenant.New(d, tenant.Options{Autocommit: autocommit, Logger: log})
	t.Cleanup(func() { _ = pool.Close(context.Background()) })
	return pipeline.New(pool, sqlexec.New(log), statement.Splitter{}, log), pool
}

func collect(t *testing.T, p *pipeline.Pipeline, name, text string) []sqlexec.Result {
	t.Helper()
	var out []sqlexec.Result
	for res, err := range p.Run(context.Background(), name, text, true) {
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func scriptDivision(c *pgfake.Conn) {
	c.On("SELECT 1;", pgfake.Response{Columns: intColumn("?column?"), Rows: [][]any{{int32(1)}}, Tag: "SELECT 1"}).
		On("SELECT 1/0;", pgfake.Response{Err: &pgconn.PgError{Code: "22012", Message: "division by zero"}}).
		On("SELECT 2;", pgfake.Response{Columns: intColumn("?column?"), Rows: [][]any{{int32(2)}}, Tag: "SELECT 1"})
}

func TestRunIsolatesFailures(t *testing.T) {
	d := pgfake.NewDialer()
	scriptDivision(d.Conn("alice"))
	p, _ := newPipeline(t, d, true, nil)

	results := collect(t, p, "alice", "SELECT 1; SELECT 1/0; SELECT 2;")
	require.Len(t, results, 3)
	assert.Equal(t, sqlexec.KindDataset, results[0].Kind)
	assert.Equal(t, sqlexec.KindError, results[1].Kind)
	assert.Equal(t, "DivisionByZero", results[1].Error.Kind)
	assert.Equal(t, sqlexec.KindDataset, results[2].Kind)
	assert.Equal(t, [][]any{{int32(2)}}, results[2].Dataset.Rows)
	assert.Equal(t, []string{"SELECT 1;", "SELECT 1/0;", "SELECT 2;"}, d.Conn("alice").Executed())
}

func TestRunRollsBackOpenTransaction(t *testing.T) {
	d := pgfake.NewDialer()
	scriptDivision(d.Conn("bob"))
	p, _ := newPipeline(t, d, false, nil)

	results := collect(t, p, "bob", "SELECT 1; SELECT 1/0; SELECT 2;")
	require.Len(t, results, 3)
	assert.Equal(t, sqlexec.KindDataset, results[2].Kind)
	assert.Equal(t, []string{
		"BEGIN", "SELECT 1;", "SELECT 1/0;", "ROLLBACK",
		"BEGIN", "SELECT 2;",
	}, d.Conn("bob").Executed())
}

func TestRunExplicitTransactionFailure(t *testing.T) {
	d := pgfake.NewDialer()
	scriptDivision(d.Conn("carol"))
	p, _ := newPipeline(t, d, true, nil)

	results := collect(t, p, "carol", "BEGIN; SELECT 1/0; SELECT 2; COMMIT;")
	require.Len(t, results, 4)
	assert.Equal(t, sqlexec.KindError, results[1].Kind)
	assert.Equal(t, sqlexec.KindDataset, results[2].Kind, "rollback clears the aborted transaction")
	assert.Equal(t, []string{"BEGIN;", "SELECT 1/0;", "ROLLBACK", "SELECT 2;", "COMMIT;"}, d.Conn("carol").Executed())
}

func TestRunLogsRollbackFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := pgfake.NewDialer()
	scriptDivision(d.Conn("dave"))
	d.Conn("dave").ExecErr["ROLLBACK"] = errors.New("write: broken pipe")
	p, _ := newPipeline(t, d, false, zap.New(core))

	results := collect(t, p, "dave", "SELECT 1; SELECT 1/0; SELECT 2;")
	require.Len(t, results, 3, "a failed rollback does not stop the submission")
	assert.Equal(t, sqlexec.KindError, results[2].Kind)
	assert.Equal(t, "InFailedSqlTransaction", results[2].Error.Kind)
	assert.Equal(t, 2, logs.FilterMessage("rollback failed").Len())
}

func TestRunIsLazy(t *testing.T) {
	d := pgfake.NewDialer()
	scriptDivision(d.Conn("erin"))
	p, _ := newPipeline(t, d, true, nil)

	for res, err := range p.Run(context.Background(), "erin", "SELECT 1; SELECT 2;", false) {
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1;", res.Statement.SQL)
		break
	}
	assert.Equal(t, []string{"SELECT 1;"}, d.Conn("erin").Executed())
}

func TestRunConnectFailureYieldsOnce(t *testing.T) {
	d := pgfake.NewDialer()
	d.Err = errors.New("database \"frank\" does not exist")
	p, _ := newPipeline(t, d, true, nil)

	var errs []error
	for _, err := range p.Run(context.Background(), "frank", "SELECT 1; SELECT 2;", false) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, apperrors.Is(errs[0], apperrors.ConnectFailed))
}

func TestRunEvictsLostConnection(t *testing.T) {
	d := pgfake.NewDialer()
	d.Conn("gina").
		On("SELECT pg_terminate_backend(pg_backend_pid());", pgfake.Response{
			QueryErr:  &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"},
			CloseConn: true,
		}).
		On("SELECT 2;", pgfake.Response{Columns: intColumn("?column?"), Rows: [][]any{{int32(2)}}})
	p, pool := newPipeline(t, d, true, nil)

	results := collect(t, p, "gina", "SELECT pg_terminate_backend(pg_backend_pid()); SELECT 2;")
	require.Len(t, results, 2)
	assert.Equal(t, "OperationalError", results[0].Error.Kind)
	assert.Equal(t, sqlexec.KindDataset, results[1].Kind)
	assert.Equal(t, 2, d.Dials("gina"))
	assert.Equal(t, 1, pool.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	d := pgfake.NewDialer()
	p, _ := newPipeline(t, d, true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range p.Run(ctx, "hank", "SELECT 1; SELECT 2;", false) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.Empty(t, d.Conn("hank").Executed())
}

func TestRunBuiltin(t *testing.T) {
	d := pgfake.NewDialer()
	d.Conn("ivy").On("SHOW search_path;", pgfake.Response{
		Columns: []pgfake.Column{{Name: "search_path", OID: pgtype.TextOID}},
		Rows:    [][]any{{"public"}},
	})
	p, _ := newPipeline(t, d, true, nil)
	u, ok := sqlexec.Postgres{}.Builtin(sqlexec.BuiltinSearchPath)
	require.True(t, ok)

	var results []sqlexec.Result
	for res, err := range p.RunBuiltin(context.Background(), "ivy", u) {
		require.NoError(t, err)
		results = append(results, res)
	}
	require.Len(t, results, 1)
	assert.True(t, results[0].Statement.IsBuiltin())
	assert.Equal(t, "SHOW search_path", results[0].Statement.Display())
	assert.Equal(t, [][]any{{"public"}}, results[0].Dataset.Rows)
}
