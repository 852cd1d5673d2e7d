// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"fmt"
	"sort"

	apperrors "sqlab/engine/internal/errors"
	"sqlab/engine/internal/statement"
)

// Builtin query names.
const (
	BuiltinSchemas    = "schemas"
	BuiltinSearchPath = "searchpath"
	BuiltinTables     = "tables"
)

// BuiltinQueries are fixed queries run through the normal pipeline and shown
// under an alias instead of their SQL.
type BuiltinQueries interface {
	// Builtin returns the named builtin query.
	Builtin(name string) (statement.Unit, bool)
	// BuiltinNames lists the available builtin names in sorted order.
	BuiltinNames() []string
}

// MetadataQueries are the catalog reads behind the schema introspector.
type MetadataQueries interface {
	// ColumnsQuery returns schema, table, column, data type, precision, scale,
	// nullable and the foreign key target (schema, table, column) per row.
	// Composite keys pair local and referenced columns by position; a column
	// in several foreign keys reports one of them.
	ColumnsQuery() string
	// UniqueConstraintsQuery returns schema, table, constraint kind and the
	// ordered column array per row.
	UniqueConstraintsQuery() string
	// SearchPathQuery returns a single row with the current search path.
	SearchPathQuery() string
	// SetSearchPathQuery takes the new path as its only argument and returns
	// the value that was set.
	SetSearchPathQuery() string
}

// Dialect bundles the query sets of one database backend.
type Dialect interface {
	Name() string
	BuiltinQueries
	MetadataQueries
}

// NewDialect returns the dialect registered for backend.
func NewDialect(backend string) (Dialect, error) {
	switch backend {
	case "postgres", "postgresql", "":
		return Postgres{}, nil
	default:
		return nil, apperrors.New(apperrors.UnsupportedBackend, fmt.Sprintf("backend %q is not supported", backend))
	}
}

// Postgres is the PostgreSQL dialect.
type Postgres struct{}

var postgresBuiltins = map[string]statement.Unit{
	BuiltinSchemas: statement.Builtin(`SELECT n.nspname AS schema, pg_catalog.pg_get_userbyid(n.nspowner) AS owner
FROM pg_catalog.pg_namespace n
WHERE n.nspname !~ '^pg_' AND n.nspname <> 'information_schema'
ORDER BY 1;`, `\dn`),
	BuiltinSearchPath: statement.Builtin(`SHOW search_path;`, `SHOW search_path`),
	BuiltinTables: statement.Builtin(`SELECT n.nspname AS schema, c.relname AS name,
  CASE c.relkind WHEN 'r' THEN 'table' WHEN 'v' THEN 'view' WHEN 'm' THEN 'materialized view'
    WHEN 'f' THEN 'foreign table' WHEN 'p' THEN 'partitioned table' END AS type
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND n.nspname !~ '^pg_' AND n.nspname <> 'information_schema'
  AND pg_catalog.pg_table_is_visible(c.oid)
ORDER BY 1, 2;`, `\dt`),
}

// Name implements Dialect.
func (Postgres) Name() string { return "postgres" }

// Builtin implements BuiltinQueries.
func (Postgres) Builtin(name string) (statement.Unit, bool) {
	u, ok := postgresBuiltins[name]
	return u, ok
}

// BuiltinNames implements BuiltinQueries.
func (Postgres) BuiltinNames() []string {
	names := make([]string, 0, len(postgresBuiltins))
	for n := range postgresBuiltins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ColumnsQuery implements MetadataQueries.
func (Postgres) ColumnsQuery() string {
	return `SELECT c.table_schema::text, c.table_name::text, c.column_name::text, c.data_type::text,
  c.numeric_precision::int, c.numeric_scale::int, (c.is_nullable = 'YES') AS nullable,
  fk.foreign_schema::text, fk.foreign_table::text, fk.foreign_column::text
FROM information_schema.columns c
LEFT JOIN (
  SELECT DISTINCT ON (ns.nspname, cl.relname, a.attname)
    ns.nspname::text AS table_schema, cl.relname::text AS table_name, a.attname::text AS column_name,
    fns.nspname AS foreign_schema, fcl.relname AS foreign_table, fa.attname AS foreign_column
  FROM pg_catalog.pg_constraint con
  CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(attnum, fattnum)
  JOIN pg_catalog.pg_class cl ON cl.oid = con.conrelid
  JOIN pg_catalog.pg_namespace ns ON ns.oid = cl.relnamespace
  JOIN pg_catalog.pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
  JOIN pg_catalog.pg_class fcl ON fcl.oid = con.confrelid
  JOIN pg_catalog.pg_namespace fns ON fns.oid = fcl.relnamespace
  JOIN pg_catalog.pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = k.fattnum
  WHERE con.contype = 'f'
  ORDER BY ns.nspname, cl.relname, a.attname, con.conname
) fk ON fk.table_schema = c.table_schema::text AND fk.table_name = c.table_name::text
  AND fk.column_name = c.column_name::text
WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
  AND c.table_schema !~ '^pg_toast'
  AND c.table_schema = ANY (current_schemas(false))
ORDER BY c.table_schema, c.table_name, c.ordinal_position`
}

// UniqueConstraintsQuery implements MetadataQueries.
func (Postgres) UniqueConstraintsQuery() string {
	return `SELECT tc.table_schema::text, tc.table_name::text, tc.constraint_type::text,
  array_agg(kcu.column_name::text ORDER BY kcu.ordinal_position) AS columns
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = tc.constraint_schema AND kcu.constraint_name = tc.constraint_name
WHERE tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
  AND tc.table_schema NOT IN ('pg_catalog', 'information_schema')
  AND tc.table_schema = ANY (current_schemas(false))
GROUP BY tc.table_schema, tc.table_name, tc.constraint_name, tc.constraint_type
ORDER BY 1, 2, 3`
}

// SearchPathQuery implements MetadataQueries.
func (Postgres) SearchPathQuery() string {
	return `SELECT current_setting('search_path')`
}

// SetSearchPathQuery implements MetadataQueries.
func (Postgres) SetSearchPathQuery() string {
	return `SELECT set_config('search_path', $1, false)`
}
