// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package checker decides whether a student's SELECT returns the same rows as
// one of the reference solutions.
//
// Only the first statement of every input is considered, and only when it is
// a SELECT. References run with the session search path temporarily switched
// to the reference namespace. Rows are compared as multisets: order does not
// matter, duplicate counts do.
package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sqlab/engine/internal/sqlexec"
	"sqlab/engine/internal/statement"
	"sqlab/engine/internal/tenant"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

// Verdict is a tri-state correctness value.
type Verdict int

const (
	// Unknown means no usable reference solution was available.
	Unknown Verdict = iota
	Correct
	Incorrect
)

func (v Verdict) String() string {
	switch v {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the verdict as true, false or null.
func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v {
	case Correct:
		return []byte("true"), nil
	case Incorrect:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Verdict) UnmarshalJSON(b []byte) error {
	var p *bool
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	switch {
	case p == nil:
		*v = Unknown
	case *p:
		*v = Correct
	default:
		*v = Incorrect
	}
	return nil
}

// Messages shared by several outcomes.
const (
	MsgCorrect           = "correct"
	MsgNoReference       = "no reference solution"
	MsgNotSupported      = "only SELECT statements returning rows can be checked"
	MsgReferenceNotValid = "reference solution not supported"
	MsgResultsDiffer     = "results differ"
)

// Result is the outcome of a check.
type Result struct {
	Correct Verdict `json:"correct"`
	// Executed reports whether the student query ran successfully.
	Executed bool   `json:"executed"`
	Message  string `json:"message,omitempty"`
	Diff     *Diff  `json:"diff,omitempty"`
}

// Checker runs checks on pooled tenant connections.
type Checker struct {
	pool  *tenant.Pool
	exec  *sqlexec.Executor
	intro *sqlexec.Introspector
	types *pgtype.Map
	log   *zap.Logger
}

// New creates a Checker.
func New(pool *tenant.Pool, exec *sqlexec.Executor, intro *sqlexec.Introspector, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{pool: pool, exec: exec, intro: intro, types: pgtype.NewMap(), log: log.Named("checker")}
}

// Check compares the first statement of student with the first statement of
// each reference in turn. The first matching reference wins. When none
// matches, the first recorded failure is returned. The error is non-nil only
// when the tenant connection cannot be acquired.
func (c *Checker) Check(ctx context.Context, name, student string, references []string, referenceSearchPath string) (Result, error) {
	if len(references) == 0 {
		return Result{Correct: Unknown, Message: MsgNoReference}, nil
	}
	rec, err := c.pool.Acquire(ctx, name)
	if err != nil {
		return Result{}, err
	}
	done := rec.Begin()
	defer done()

	got := c.runFirst(ctx, rec, student, "")
	switch got.outcome {
	case notApplicable:
		return Result{Correct: Incorrect, Message: MsgNotSupported}, nil
	case failed:
		return Result{Correct: Incorrect, Message: got.message}, nil
	case noDataset:
		return Result{Correct: Incorrect, Executed: true, Message: MsgNotSupported}, nil
	}

	var failures []Result
	for i, ref := range references {
		want := c.runFirst(ctx, rec, ref, referenceSearchPath)
		switch want.outcome {
		case notApplicable, noDataset:
			failures = append(failures, Result{Correct: Unknown, Executed: true, Message: MsgReferenceNotValid})
			continue
		case failed:
			c.log.Warn("reference solution failed", zap.String("tenant", name), zap.Int("reference", i), zap.String("error", want.message))
			failures = append(failures, Result{Correct: Unknown, Executed: true, Message: "reference solution failed: " + want.message})
			continue
		}

		if msg, ok := c.sameShape(got.dataset, want.dataset); !ok {
			failures = append(failures, Result{Correct: Incorrect, Executed: true, Message: msg})
			continue
		}
		diff := Compare(got.dataset, want.dataset)
		if diff.Equal() {
			return Result{Correct: Correct, Executed: true, Message: MsgCorrect}, nil
		}
		failures = append(failures, Result{Correct: Incorrect, Executed: true, Message: MsgResultsDiffer, Diff: diff})
	}
	return failures[0], nil
}

// sameShape compares column names, then column types, position by position.
func (c *Checker) sameShape(got, want *sqlexec.Dataset) (string, bool) {
	gotNames, wantNames := got.ColumnNames(), want.ColumnNames()
	if !equalStrings(gotNames, wantNames) {
		return fmt.Sprintf("columns differ: expected (%s), got (%s)",
			strings.Join(wantNames, ", "), strings.Join(gotNames, ", ")), false
	}
	gotTypes, wantTypes := c.typeNames(got), c.typeNames(want)
	if !equalStrings(gotTypes, wantTypes) {
		return fmt.Sprintf("data types differ: expected (%s), got (%s)",
			strings.Join(wantTypes, ", "), strings.Join(gotTypes, ", ")), false
	}
	return "", true
}

func (c *Checker) typeNames(ds *sqlexec.Dataset) []string {
	names := make([]string, len(ds.Columns))
	for i, col := range ds.Columns {
		if t, ok := c.types.TypeForOID(col.TypeOID); ok {
			names[i] = t.Name
		} else {
			names[i] = fmt.Sprintf("oid %d", col.TypeOID)
		}
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type outcome int

const (
	tabular outcome = iota
	notApplicable
	failed
	noDataset
)

type single struct {
	outcome outcome
	dataset *sqlexec.Dataset
	message string
}

// runFirst executes the first statement of query when it is a SELECT. A
// non-empty searchPath is installed for that one statement and restored after.
func (c *Checker) runFirst(ctx context.Context, rec *tenant.Record, query, searchPath string) single {
	u, ok := statement.First(query)
	if !ok || u.Type != statement.Select {
		return single{outcome: notApplicable}
	}

	if searchPath != "" {
		prev, err := c.intro.SearchPath(ctx, rec)
		if err != nil {
			c.rollback(ctx, rec)
			return single{outcome: failed, message: err.Error()}
		}
		if _, err := c.intro.SetSearchPath(ctx, rec, searchPath); err != nil {
			c.rollback(ctx, rec)
			return single{outcome: failed, message: err.Error()}
		}
		defer func() {
			if _, err := c.intro.SetSearchPath(ctx, rec, prev); err != nil {
				c.log.Warn("restoring search path failed", zap.String("tenant", rec.Tenant), zap.Error(err))
				c.rollback(ctx, rec)
			}
		}()
	}

	res := c.exec.Execute(ctx, rec, u)
	switch res.Kind {
	case sqlexec.KindDataset:
		return single{outcome: tabular, dataset: res.Dataset}
	case sqlexec.KindError:
		c.rollback(ctx, rec)
		return single{outcome: failed, message: res.Message()}
	default:
		return single{outcome: noDataset}
	}
}

func (c *Checker) rollback(ctx context.Context, rec *tenant.Record) {
	if err := c.exec.Rollback(ctx, rec); err != nil {
		c.log.Warn("rollback failed", zap.String("tenant", rec.Tenant), zap.Error(err))
	}
}
