// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec_test

import (
	"context"
	"testing"

	"sqlab/engine/internal/pgfake"
	"sqlab/engine/internal/sqlexec"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntrospectorColumns(t *testing.T) {
	pg := sqlexec.Postgres{}
	d := pgfake.NewDialer()
	d.Conn("alice").On(pg.ColumnsQuery(), pgfake.Response{
		Columns: []pgfake.Column{
			{Name: "table_schema"}, {Name: "table_name"}, {Name: "column_name"}, {Name: "data_type"},
			{Name: "numeric_precision"}, {Name: "numeric_scale"}, {Name: "nullable"},
			{Name: "foreign_schema"}, {Name: "foreign_table"}, {Name: "foreign_column"},
		},
		Rows: [][]any{
			{"public", "orders", "id", "integer", int32(32), int32(0), false, nil, nil, nil},
			{"public", "orders", "customer_id", "integer", int32(32), int32(0), true, "public", "customers", "id"},
			{"public", "orders", "note", "text", nil, nil, true, nil, nil, nil},
		},
	})
	rec := acquire(t, d, "alice", true)
	in := sqlexec.NewIntrospector(sqlexec.New(nil), pg)

	facts, err := in.Columns(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, facts, 3)

	assert.Equal(t, "id", facts[0].Column)
	assert.False(t, facts[0].Nullable)
	require.NotNil(t, facts[0].Precision)
	assert.Equal(t, 32, *facts[0].Precision)
	assert.Nil(t, facts[0].ForeignKey)

	assert.Equal(t, &sqlexec.Reference{Schema: "public", Table: "customers", Column: "id"}, facts[1].ForeignKey)

	assert.Nil(t, facts[2].Precision)
	assert.Nil(t, facts[2].Scale)
	assert.True(t, facts[2].Nullable)
}

func TestColumnsQueryPairsCompositeKeysByPosition(t *testing.T) {
	q := sqlexec.Postgres{}.ColumnsQuery()
	assert.Contains(t, q, "unnest(con.conkey, con.confkey)")
	assert.Contains(t, q, "fa.attnum = k.fattnum")
	assert.NotContains(t, q, "constraint_column_usage")
}

func TestIntrospectorColumnsCompositeForeignKey(t *testing.T) {
	pg := sqlexec.Postgres{}
	d := pgfake.NewDialer()
	d.Conn("dave").On(pg.ColumnsQuery(), pgfake.Response{
		Columns: []pgfake.Column{
			{Name: "table_schema"}, {Name: "table_name"}, {Name: "column_name"}, {Name: "data_type"},
			{Name: "numeric_precision"}, {Name: "numeric_scale"}, {Name: "nullable"},
			{Name: "foreign_schema"}, {Name: "foreign_table"}, {Name: "foreign_column"},
		},
		Rows: [][]any{
			{"public", "grades", "a", "integer", int32(32), int32(0), false, "public", "enrolments", "x"},
			{"public", "grades", "a", "integer", int32(32), int32(0), false, "public", "enrolments", "y"},
			{"public", "grades", "b", "integer", int32(32), int32(0), false, "public", "enrolments", "y"},
		},
	})
	rec := acquire(t, d, "dave", true)
	in := sqlexec.NewIntrospector(sqlexec.New(nil), pg)

	facts, err := in.Columns(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "a", facts[0].Column)
	assert.Equal(t, "x", facts[0].ForeignKey.Column)
	assert.Equal(t, "b", facts[1].Column)
	assert.Equal(t, "y", facts[1].ForeignKey.Column)
}

func TestIntrospectorUniqueConstraints(t *testing.T) {
	pg := sqlexec.Postgres{}
	d := pgfake.NewDialer()
	d.Conn("bob").On(pg.UniqueConstraintsQuery(), pgfake.Response{
		Columns: []pgfake.Column{{Name: "table_schema"}, {Name: "table_name"}, {Name: "constraint_type"}, {Name: "columns"}},
		Rows: [][]any{
			{"public", "enrolments", "PRIMARY KEY", []any{"student_id", "course_id"}},
			{"public", "students", "UNIQUE", "{email}"},
		},
	})
	rec := acquire(t, d, "bob", true)
	in := sqlexec.NewIntrospector(sqlexec.New(nil), pg)

	facts, err := in.UniqueConstraints(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, []sqlexec.UniqueFact{
		{Schema: "public", Table: "enrolments", Kind: "PRIMARY KEY", Columns: []string{"student_id", "course_id"}},
		{Schema: "public", Table: "students", Kind: "UNIQUE", Columns: []string{"email"}},
	}, facts)
}

func TestIntrospectorSearchPath(t *testing.T) {
	pg := sqlexec.Postgres{}
	d := pgfake.NewDialer()
	d.Conn("carol").
		On(pg.SearchPathQuery(), pgfake.Response{
			Columns: []pgfake.Column{{Name: "current_setting"}},
			Rows:    [][]any{{`"$user", public`}},
		}).
		On(pg.SetSearchPathQuery(), pgfake.Response{
			Columns: []pgfake.Column{{Name: "set_config"}},
			Rows:    [][]any{{"solutions"}},
		})
	rec := acquire(t, d, "carol", true)
	in := sqlexec.NewIntrospector(sqlexec.New(nil), pg)
	ctx := context.Background()

	path, err := in.SearchPath(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, `"$user", public`, path)

	set, err := in.SetSearchPath(ctx, rec, "solutions")
	require.NoError(t, err)
	assert.Equal(t, "solutions", set)
	calls := d.Conn("carol").Calls()
	assert.Equal(t, []any{"solutions"}, calls[len(calls)-1].Args)
}

func TestIntrospectorFailureIsResultError(t *testing.T) {
	pg := sqlexec.Postgres{}
	d := pgfake.NewDialer()
	d.Conn("dave").On(pg.ColumnsQuery(), pgfake.Response{Err: &pgconn.PgError{Code: "42501", Message: "permission denied for schema x"}})
	rec := acquire(t, d, "dave", true)
	in := sqlexec.NewIntrospector(sqlexec.New(nil), pg)

	_, err := in.Columns(context.Background(), rec)
	var re *sqlexec.ResultError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, sqlexec.KindError, re.Result.Kind)
	assert.Equal(t, "InsufficientPrivilege", re.Result.Error.Kind)
	assert.EqualError(t, err, "InsufficientPrivilege: permission denied for schema x")
}
