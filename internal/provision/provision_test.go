// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package provision

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	apperrors "sqlab/engine/internal/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func mockOpener(t *testing.T) (Opener, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return func(context.Context) (*sql.DB, error) { return db, nil }, mock
}

func expectLookup(mock sqlmock.Sqlmock, table string, exists bool) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM " + table)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func TestProvision(t *testing.T) {
	tests := []struct {
		name       string
		dbExists   bool
		roleExists bool
		runner     string
		password   string
		execs      []string
	}{
		{
			name:     "existing database is a no-op",
			dbExists: true,
		},
		{
			name:     "new tenant",
			runner:   "runner",
			password: "it's secret",
			execs: []string{
				`CREATE ROLE "alice" LOGIN PASSWORD 'it''s secret'`,
				`GRANT "alice" TO "runner"`,
				`CREATE DATABASE "alice" OWNER "alice"`,
				`REVOKE CONNECT ON DATABASE "alice" FROM PUBLIC`,
			},
		},
		{
			name:       "role left over from an earlier attempt",
			roleExists: true,
			execs: []string{
				`CREATE DATABASE "alice" OWNER "alice"`,
				`REVOKE CONNECT ON DATABASE "alice" FROM PUBLIC`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, mock := mockOpener(t)
			expectLookup(mock, "pg_database", tt.dbExists)
			if !tt.dbExists {
				expectLookup(mock, "pg_roles", tt.roleExists)
			}
			for _, stmt := range tt.execs {
				mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
			}
			mock.ExpectClose()

			ok, err := New(open, tt.runner, zaptest.NewLogger(t)).Provision(context.Background(), "alice", tt.password)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestProvisionFailureClosesConnection(t *testing.T) {
	open, mock := mockOpener(t)
	expectLookup(mock, "pg_database", false)
	expectLookup(mock, "pg_roles", false)
	mock.ExpectExec("CREATE ROLE").WillReturnError(errors.New("permission denied to create role"))
	mock.ExpectClose()

	ok, err := New(open, "", nil).Provision(context.Background(), "alice", "pw")
	assert.False(t, ok)
	assert.True(t, apperrors.Is(err, apperrors.ProvisionFailed))
	assert.ErrorContains(t, err, "permission denied to create role")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionRejectsInvalidName(t *testing.T) {
	opened := false
	p := New(func(context.Context) (*sql.DB, error) {
		opened = true
		return nil, errors.New("unreachable")
	}, "", nil)

	ok, err := p.Provision(context.Background(), `alice"; DROP DATABASE x; --`, "pw")
	assert.False(t, ok)
	assert.True(t, apperrors.Is(err, apperrors.InvalidTenant))
	assert.False(t, opened)
}

func TestProvisionOpenFailure(t *testing.T) {
	p := New(func(context.Context) (*sql.DB, error) { return nil, errors.New("connection refused") }, "", nil)
	_, err := p.Provision(context.Background(), "alice", "pw")
	assert.True(t, apperrors.Is(err, apperrors.ProvisionFailed))
}

func TestDrop(t *testing.T) {
	open, mock := mockOpener(t)
	mock.ExpectExec(regexp.QuoteMeta(`DROP DATABASE IF EXISTS "alice" WITH (FORCE)`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DROP ROLE IF EXISTS "alice"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	require.NoError(t, New(open, "", nil).Drop(context.Background(), "alice"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
