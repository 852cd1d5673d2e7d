// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// kindByCode names the SQLSTATE codes students run into most often.
var kindByCode = map[string]string{
	"22012": "DivisionByZero",
	"22P02": "InvalidTextRepresentation",
	"22001": "StringDataRightTruncation",
	"22003": "NumericValueOutOfRange",
	"22007": "InvalidDatetimeFormat",
	"22008": "DatetimeFieldOverflow",
	"23502": "NotNullViolation",
	"23503": "ForeignKeyViolation",
	"23505": "UniqueViolation",
	"23514": "CheckViolation",
	"25P02": "InFailedSqlTransaction",
	"40001": "SerializationFailure",
	"40P01": "DeadlockDetected",
	"42501": "InsufficientPrivilege",
	"42601": "SyntaxError",
	"42703": "UndefinedColumn",
	"42704": "UndefinedObject",
	"42P01": "UndefinedTable",
	"42883": "UndefinedFunction",
	"42702": "AmbiguousColumn",
	"42803": "GroupingError",
	"42804": "DatatypeMismatch",
	"42P07": "DuplicateTable",
	"42701": "DuplicateColumn",
	"42710": "DuplicateObject",
	"42P06": "DuplicateSchema",
	"3F000": "InvalidSchemaName",
	"3D000": "InvalidCatalogName",
	"57014": "QueryCanceled",
	"0A000": "FeatureNotSupported",
	"2BP01": "DependentObjectsStillExist",
}

// kindByClass is the fallback for codes missing from kindByCode.
var kindByClass = map[string]string{
	"08": "OperationalError",
	"0A": "NotSupportedError",
	"21": "ProgrammingError",
	"22": "DataError",
	"23": "IntegrityError",
	"25": "InternalError",
	"26": "InternalError",
	"28": "OperationalError",
	"2B": "InternalError",
	"2D": "InternalError",
	"34": "OperationalError",
	"3D": "ProgrammingError",
	"3F": "ProgrammingError",
	"40": "TransactionRollbackError",
	"42": "ProgrammingError",
	"44": "ProgrammingError",
	"53": "OperationalError",
	"54": "OperationalError",
	"55": "OperationalError",
	"57": "OperationalError",
	"58": "OperationalError",
	"P0": "InternalError",
	"XX": "InternalError",
}

// Normalize turns a driver error into an ErrorInfo. Server errors keep their
// SQLSTATE; anything else is reported as an operational failure.
func Normalize(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &ErrorInfo{
			Kind:        kindForCode(pgErr.Code),
			Code:        pgErr.Code,
			Description: firstLine(pgErr.Message),
			Trace:       trace(pgErr),
		}
	}
	kind := "OperationalError"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "QueryCanceled"
	case pgconn.Timeout(err):
		kind = "QueryCanceled"
	}
	msg := err.Error()
	lines := strings.Split(strings.TrimSpace(msg), "\n")
	info := &ErrorInfo{Kind: kind, Description: lines[0]}
	if len(lines) > 1 {
		info.Trace = lines[1:]
	}
	return info
}

func kindForCode(code string) string {
	if k, ok := kindByCode[code]; ok {
		return k
	}
	if len(code) >= 2 {
		if k, ok := kindByClass[code[:2]]; ok {
			return k
		}
	}
	return "DatabaseError"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func trace(e *pgconn.PgError) []string {
	var out []string
	if i := strings.IndexByte(e.Message, '\n'); i >= 0 {
		out = append(out, strings.Split(e.Message[i+1:], "\n")...)
	}
	if e.Detail != "" {
		out = append(out, "DETAIL:  "+e.Detail)
	}
	if e.Hint != "" {
		out = append(out, "HINT:  "+e.Hint)
	}
	if e.Position > 0 {
		out = append(out, fmt.Sprintf("POSITION:  %d", e.Position))
	}
	if e.Where != "" {
		out = append(out, "CONTEXT:  "+e.Where)
	}
	return out
}
