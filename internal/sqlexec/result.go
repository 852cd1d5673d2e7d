// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"sqlab/engine/internal/statement"

	"github.com/jackc/pgx/v5/pgtype"
)

// Kind tags the variant held by a Result.
type Kind string

const (
	KindDataset Kind = "dataset"
	KindStatus  Kind = "status"
	KindError   Kind = "error"
)

// Column is a result column: its name and the engine's type OID.
type Column struct {
	Name    string `json:"name"`
	TypeOID uint32 `json:"type_oid"`
}

// Dataset is a tabular outcome. Every row has exactly len(Columns) values.
type Dataset struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// MarshalJSON converts driver values that encoding/json renders poorly.
func (d Dataset) MarshalJSON() ([]byte, error) {
	type alias Dataset
	a := alias(d)
	a.Rows = make([][]any, len(d.Rows))
	for i, row := range d.Rows {
		a.Rows[i] = make([]any, len(row))
		for j, v := range row {
			a.Rows[i][j] = jsonValue(v)
		}
	}
	if a.Columns == nil {
		a.Columns = []Column{}
	}
	return json.Marshal(a)
}

// ErrorInfo is a driver failure normalized away from driver types.
type ErrorInfo struct {
	// Kind is the exception class name, e.g. "UniqueViolation".
	Kind string `json:"kind"`
	// Code is the SQLSTATE when the server produced one.
	Code        string   `json:"code,omitempty"`
	Description string   `json:"description"`
	Trace       []string `json:"trace,omitempty"`
}

// Result is the outcome of one statement: exactly one of Dataset, Status or
// Error is meaningful, as selected by Kind.
type Result struct {
	Statement statement.Unit
	Kind      Kind
	Success   bool
	Dataset   *Dataset
	Status    string
	Error     *ErrorInfo
	Notices   []string
	// ID is assigned by the caller after the result has been logged.
	ID string
}

// DatasetResult wraps a tabular outcome.
func DatasetResult(u statement.Unit, ds *Dataset, notices []string) Result {
	return Result{Statement: u, Kind: KindDataset, Success: true, Dataset: ds, Notices: notices}
}

// StatusResult wraps a non-tabular outcome.
func StatusResult(u statement.Unit, status string, notices []string) Result {
	return Result{Statement: u, Kind: KindStatus, Success: true, Status: status, Notices: notices}
}

// ErrorResult wraps err after normalizing it.
func ErrorResult(u statement.Unit, err error, notices []string) Result {
	return Result{Statement: u, Kind: KindError, Error: Normalize(err), Notices: notices}
}

// Message returns the one-line text shown for status and error results.
func (r Result) Message() string {
	switch r.Kind {
	case KindStatus:
		return r.Status
	case KindError:
		if r.Error != nil {
			return r.Error.Description
		}
	}
	return ""
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		SQL     string     `json:"sql"`
		Type    string     `json:"type"`
		Builtin bool       `json:"builtin"`
		Kind    Kind       `json:"kind"`
		Success bool       `json:"success"`
		Dataset *Dataset   `json:"dataset,omitempty"`
		Status  string     `json:"status,omitempty"`
		Error   *ErrorInfo `json:"error,omitempty"`
		Notices []string   `json:"notices,omitempty"`
		ID      string     `json:"id,omitempty"`
	}{
		SQL:     r.Statement.Display(),
		Type:    string(r.Statement.Type),
		Builtin: r.Statement.IsBuiltin(),
		Kind:    r.Kind,
		Success: r.Success,
		Dataset: r.Dataset,
		Status:  r.Status,
		Error:   r.Error,
		Notices: r.Notices,
		ID:      r.ID,
	}
	return json.Marshal(out)
}

// jsonValue converts pgx values to JSON-serializable values.
func jsonValue(v any) any {
	switch v := v.(type) {
	case []byte:
		return fmt.Sprintf("\\x%x", v)
	case [16]byte:
		// pgx decodes uuid columns to a fixed-size array
		return formatUUID(v)
	case nil:
		return nil
	default:
		return v
	}
}

func formatUUID(v [16]byte) string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7],
		v[8], v[9], v[10], v[11], v[12], v[13], v[14], v[15])
}

// Text renders a single value for tables and HTML output. NULL renders as "NULL".
func Text(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02 15:04:05.999999Z07:00")
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = Text(e)
		}
		return "{" + strings.Join(parts, ",") + "}"
	case fmt.Stringer:
		return v.String()
	}
	switch j := jsonValue(v).(type) {
	case string:
		return j
	default:
		if b, err := json.Marshal(j); err == nil {
			return strings.Trim(string(b), `"`)
		}
		return fmt.Sprint(j)
	}
}

// RowKey returns a canonical encoding of row, equal for rows holding equal
// values. Numerics differing only in scale (1.0, 1.00) share a key.
func RowKey(row []any) string {
	vals := make([]any, len(row))
	for i, v := range row {
		vals[i] = keyValue(v)
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return fmt.Sprintf("%#v", vals)
	}
	return string(b)
}

func keyValue(v any) any {
	switch n := v.(type) {
	case pgtype.Numeric:
		if n.Valid && !n.NaN && n.InfinityModifier == pgtype.Finite && n.Int != nil {
			return canonicalNumeric(n.Int, n.Exp)
		}
	case *pgtype.Numeric:
		if n != nil {
			return keyValue(*n)
		}
	}
	return jsonValue(v)
}

// canonicalNumeric strips trailing decimal zeros from the coefficient.
func canonicalNumeric(coef *big.Int, exp int32) string {
	if coef.Sign() == 0 {
		return "0"
	}
	i := new(big.Int).Set(coef)
	ten := big.NewInt(10)
	q, r := new(big.Int), new(big.Int)
	for {
		q.QuoRem(i, ten, r)
		if r.Sign() != 0 {
			break
		}
		i.Set(q)
		exp++
	}
	return fmt.Sprintf("%se%d", i, exp)
}
