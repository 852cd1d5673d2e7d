// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	apperrors "sqlab/engine/internal/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var validName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidateName checks that name can be used verbatim as a role and database name.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return apperrors.New(apperrors.InvalidTenant, fmt.Sprintf("%q is not a valid tenant name", name))
	}
	return nil
}

// Dialer opens the physical connection for a tenant. onNotice receives every
// server notice emitted on that connection.
type Dialer interface {
	Dial(ctx context.Context, name string, onNotice func(string)) (Conn, error)
}

// PgxDialer connects to the tenant's database as the runner login and assumes
// the tenant's role for the whole session.
type PgxDialer struct {
	base *pgx.ConnConfig
	// StatementTimeout is applied as the session statement_timeout when positive.
	StatementTimeout time.Duration
}

// NewPgxDialer parses the runner DSN used as a template for tenant connections.
func NewPgxDialer(runnerDSN string, statementTimeout time.Duration) (*PgxDialer, error) {
	cfg, err := pgx.ParseConfig(runnerDSN)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ConfigInvalid, "parse runner DSN", err)
	}
	return &PgxDialer{base: cfg, StatementTimeout: statementTimeout}, nil
}

// Dial implements Dialer.
func (d *PgxDialer) Dial(ctx context.Context, name string, onNotice func(string)) (Conn, error) {
	cfg := d.base.Copy()
	cfg.Database = name
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	cfg.RuntimeParams["role"] = name
	cfg.RuntimeParams["application_name"] = "sqlab"
	if d.StatementTimeout > 0 {
		cfg.RuntimeParams["statement_timeout"] = strconv.FormatInt(d.StatementTimeout.Milliseconds(), 10)
	}
	// Student SQL is sent verbatim; the simple protocol accepts every statement kind.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	cfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		if onNotice != nil {
			onNotice(FormatNotice(n))
		}
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pgxConn{conn}, nil
}

// FormatNotice renders a notice the way psql prints it.
func FormatNotice(n *pgconn.Notice) string {
	return fmt.Sprintf("%s:  %s", n.Severity, n.Message)
}

type pgxConn struct{ *pgx.Conn }

func (c pgxConn) TxStatus() byte { return c.PgConn().TxStatus() }
