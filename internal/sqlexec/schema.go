// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"strings"

	"sqlab/engine/internal/statement"
	"sqlab/engine/internal/tenant"
)

// Reference is the target of a foreign key column.
type Reference struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ColumnFact describes one column visible to the tenant.
type ColumnFact struct {
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	Column    string `json:"column"`
	DataType  string `json:"data_type"`
	Precision *int   `json:"precision,omitempty"`
	Scale     *int   `json:"scale,omitempty"`
	Nullable  bool   `json:"nullable"`
	// ForeignKey is nil unless the column references another table.
	ForeignKey *Reference `json:"foreign_key,omitempty"`
}

// UniqueFact describes a PRIMARY KEY or UNIQUE constraint.
type UniqueFact struct {
	Schema  string   `json:"schema"`
	Table   string   `json:"table"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`
}

// ResultError carries the Error result of a failed catalog read.
type ResultError struct {
	Result Result
}

func (e *ResultError) Error() string {
	if e.Result.Error == nil {
		return "catalog query returned no rows"
	}
	return fmt.Sprintf("%s: %s", e.Result.Error.Kind, e.Result.Error.Description)
}

// Introspector reads catalog metadata through the executor.
// It performs no writes and caches nothing: students change their schema
// between requests.
type Introspector struct {
	exec    *Executor
	queries MetadataQueries
}

// NewIntrospector creates an Introspector for the given dialect.
func NewIntrospector(exec *Executor, queries MetadataQueries) *Introspector {
	return &Introspector{exec: exec, queries: queries}
}

func (in *Introspector) dataset(ctx context.Context, rec *tenant.Record, sql string, args ...any) (*Dataset, error) {
	res := in.exec.ExecuteArgs(ctx, rec, statement.Unit{SQL: sql, Type: statement.Select}, args...)
	if res.Kind != KindDataset {
		return nil, &ResultError{Result: res}
	}
	return res.Dataset, nil
}

// SearchPath returns the tenant session's current search path.
func (in *Introspector) SearchPath(ctx context.Context, rec *tenant.Record) (string, error) {
	ds, err := in.dataset(ctx, rec, in.queries.SearchPathQuery())
	if err != nil {
		return "", err
	}
	if len(ds.Rows) == 0 || len(ds.Rows[0]) == 0 {
		return "", &ResultError{}
	}
	return asString(ds.Rows[0][0]), nil
}

// SetSearchPath changes the session search path and returns the value set.
func (in *Introspector) SetSearchPath(ctx context.Context, rec *tenant.Record, path string) (string, error) {
	ds, err := in.dataset(ctx, rec, in.queries.SetSearchPathQuery(), path)
	if err != nil {
		return "", err
	}
	if len(ds.Rows) == 0 || len(ds.Rows[0]) == 0 {
		return path, nil
	}
	return asString(ds.Rows[0][0]), nil
}

// Columns returns a fact per column in the tenant's visible schemas.
func (in *Introspector) Columns(ctx context.Context, rec *tenant.Record) ([]ColumnFact, error) {
	ds, err := in.dataset(ctx, rec, in.queries.ColumnsQuery())
	if err != nil {
		return nil, err
	}
	facts := make([]ColumnFact, 0, len(ds.Rows))
	seen := make(map[[3]string]bool, len(ds.Rows))
	for _, row := range ds.Rows {
		if len(row) < 10 {
			return nil, fmt.Errorf("columns query returned %d values, want 10", len(row))
		}
		key := [3]string{asString(row[0]), asString(row[1]), asString(row[2])}
		if seen[key] {
			continue
		}
		seen[key] = true
		f := ColumnFact{
			Schema:    asString(row[0]),
			Table:     asString(row[1]),
			Column:    asString(row[2]),
			DataType:  asString(row[3]),
			Precision: asInt(row[4]),
			Scale:     asInt(row[5]),
			Nullable:  asBool(row[6]),
		}
		if row[8] != nil {
			f.ForeignKey = &Reference{Schema: asString(row[7]), Table: asString(row[8]), Column: asString(row[9])}
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// UniqueConstraints returns a fact per PRIMARY KEY and UNIQUE constraint in
// the tenant's visible schemas.
func (in *Introspector) UniqueConstraints(ctx context.Context, rec *tenant.Record) ([]UniqueFact, error) {
	ds, err := in.dataset(ctx, rec, in.queries.UniqueConstraintsQuery())
	if err != nil {
		return nil, err
	}
	facts := make([]UniqueFact, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("unique constraints query returned %d values, want 4", len(row))
		}
		facts = append(facts, UniqueFact{
			Schema:  asString(row[0]),
			Table:   asString(row[1]),
			Kind:    asString(row[2]),
			Columns: asStrings(row[3]),
		})
	}
	return facts, nil
}

func asString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func asInt(v any) *int {
	var n int
	switch v := v.(type) {
	case int:
		n = v
	case int16:
		n = int(v)
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	default:
		return nil
	}
	return &n
}

func asBool(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "YES") || strings.EqualFold(v, "true")
	}
	return false
}

// asStrings accepts a decoded text[] or its literal form.
func asStrings(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			out[i] = asString(e)
		}
		return out
	case string:
		v = strings.TrimSuffix(strings.TrimPrefix(v, "{"), "}")
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i, p := range parts {
			parts[i] = strings.Trim(p, `"`)
		}
		return parts
	}
	return nil
}
