// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package provision creates and removes tenant databases over short-lived
// administrative connections. Those connections never enter the tenant pool:
// each operation opens one, uses it and closes it.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "sqlab/engine/internal/errors"
	"sqlab/engine/internal/tenant"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Opener returns a fresh administrative handle. The caller closes it.
type Opener func(ctx context.Context) (*sql.DB, error)

// OpenDSN returns an Opener for a superuser DSN using the pgx database/sql driver.
func OpenDSN(dsn string) Opener {
	return func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

// Provisioner creates one login role and one database per tenant.
type Provisioner struct {
	open Opener
	// runner is the login tenant connections authenticate as; it is granted
	// membership in every tenant role so it can assume it.
	runner string
	log    *zap.Logger
}

// New creates a Provisioner. runner may be empty when tenants log in directly.
func New(open Opener, runner string, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{open: open, runner: runner, log: log.Named("provision")}
}

// Provision creates the tenant's role and database. It returns true without
// changing anything when the database already exists.
func (p *Provisioner) Provision(ctx context.Context, name, password string) (bool, error) {
	if err := tenant.ValidateName(name); err != nil {
		return false, err
	}
	db, err := p.open(ctx)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ProvisionFailed, "open administrative connection", err)
	}
	defer db.Close()

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return false, apperrors.Wrap(apperrors.ProvisionFailed, "look up database", err)
	}
	if exists {
		p.log.Debug("tenant database already exists", zap.String("tenant", name))
		return true, nil
	}

	var roleExists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, name).Scan(&roleExists); err != nil {
		return false, apperrors.Wrap(apperrors.ProvisionFailed, "look up role", err)
	}

	ident := pgx.Identifier{name}.Sanitize()
	var stmts []string
	if !roleExists {
		stmts = append(stmts, fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s", ident, quoteLiteral(password)))
	}
	if p.runner != "" && p.runner != name {
		stmts = append(stmts, fmt.Sprintf("GRANT %s TO %s", ident, pgx.Identifier{p.runner}.Sanitize()))
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE DATABASE %s OWNER %s", ident, ident),
		fmt.Sprintf("REVOKE CONNECT ON DATABASE %s FROM PUBLIC", ident),
	)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return false, apperrors.Wrap(apperrors.ProvisionFailed, fmt.Sprintf("provision tenant %q", name), err)
		}
	}
	p.log.Info("tenant provisioned", zap.String("tenant", name), zap.Bool("role_created", !roleExists))
	return true, nil
}

// Drop removes the tenant's database and role. Missing objects are ignored.
// Open sessions on the database are terminated.
func (p *Provisioner) Drop(ctx context.Context, name string) error {
	if err := tenant.ValidateName(name); err != nil {
		return err
	}
	db, err := p.open(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.ProvisionFailed, "open administrative connection", err)
	}
	defer db.Close()

	ident := pgx.Identifier{name}.Sanitize()
	for _, stmt := range []string{
		fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", ident),
		fmt.Sprintf("DROP ROLE IF EXISTS %s", ident),
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return apperrors.Wrap(apperrors.ProvisionFailed, fmt.Sprintf("drop tenant %q", name), err)
		}
	}
	p.log.Info("tenant dropped", zap.String("tenant", name))
	return nil
}

// quoteLiteral quotes s as a standard-conforming string literal. DDL
// statements cannot take bind parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
