// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package checker

import (
	"sqlab/engine/internal/sqlexec"

	"github.com/jackc/pgx/v5/pgtype"
)

// Row origins in a Diff.
const (
	OriginStudent   = "your query"
	OriginReference = "solution"
)

// DiffRow is a row whose occurrence count differs between the two sides,
// repeated once per surplus occurrence.
type DiffRow struct {
	Origin string `json:"origin"`
	Values []any  `json:"values"`
}

// Diff is the symmetric multiset difference of two datasets.
type Diff struct {
	Columns []string  `json:"columns"`
	Rows    []DiffRow `json:"rows"`
}

// Equal reports whether both sides held the same rows with the same counts.
func (d *Diff) Equal() bool { return len(d.Rows) == 0 }

// Dataset renders the diff as a table with a leading origin column.
func (d *Diff) Dataset() *sqlexec.Dataset {
	ds := &sqlexec.Dataset{
		Columns: make([]sqlexec.Column, 0, len(d.Columns)+1),
		Rows:    make([][]any, 0, len(d.Rows)),
	}
	ds.Columns = append(ds.Columns, sqlexec.Column{Name: "origin", TypeOID: pgtype.TextOID})
	for _, c := range d.Columns {
		ds.Columns = append(ds.Columns, sqlexec.Column{Name: c})
	}
	for _, r := range d.Rows {
		row := make([]any, 0, len(r.Values)+1)
		row = append(row, r.Origin)
		row = append(row, r.Values...)
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

type tally struct {
	row   []any
	count int
}

func count(rows [][]any) (map[string]*tally, []string) {
	m := make(map[string]*tally, len(rows))
	var order []string
	for _, row := range rows {
		k := sqlexec.RowKey(row)
		t, ok := m[k]
		if !ok {
			t = &tally{row: row}
			m[k] = t
			order = append(order, k)
		}
		t.count++
	}
	return m, order
}

// Compare computes the multiset difference between student and reference
// rows. Row order is ignored; duplicate counts are not. Student surplus rows
// come first, each side in order of first appearance.
func Compare(student, reference *sqlexec.Dataset) *Diff {
	d := &Diff{Columns: student.ColumnNames(), Rows: []DiffRow{}}
	ours, ourOrder := count(student.Rows)
	theirs, theirOrder := count(reference.Rows)

	for _, k := range ourOrder {
		n := ours[k].count
		if t, ok := theirs[k]; ok {
			n -= t.count
		}
		for range n {
			d.Rows = append(d.Rows, DiffRow{Origin: OriginStudent, Values: ours[k].row})
		}
	}
	for _, k := range theirOrder {
		n := theirs[k].count
		if o, ok := ours[k]; ok {
			n -= o.count
		}
		for range n {
			d.Rows = append(d.Rows, DiffRow{Origin: OriginReference, Values: theirs[k].row})
		}
	}
	return d
}
