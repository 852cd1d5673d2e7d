// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package checker

import (
	"math/big"
	"testing"

	"sqlab/engine/internal/sqlexec"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

func ds(rows ...[]any) *sqlexec.Dataset {
	return &sqlexec.Dataset{
		Columns: []sqlexec.Column{{Name: "id"}, {Name: "name"}},
		Rows:    rows,
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		student  *sqlexec.Dataset
		ref      *sqlexec.Dataset
		wantRows []DiffRow
	}{
		{
			name:    "same rows different order",
			student: ds([]any{1, "a"}, []any{2, "b"}),
			ref:     ds([]any{2, "b"}, []any{1, "a"}),
		},
		{
			name:    "duplicate counts matter",
			student: ds([]any{1, "a"}, []any{1, "a"}, []any{2, "b"}),
			ref:     ds([]any{1, "a"}, []any{2, "b"}, []any{2, "b"}),
			wantRows: []DiffRow{
				{Origin: OriginStudent, Values: []any{1, "a"}},
				{Origin: OriginReference, Values: []any{2, "b"}},
			},
		},
		{
			name:    "missing rows are repeated per occurrence",
			student: ds(),
			ref:     ds([]any{3, nil}, []any{3, nil}),
			wantRows: []DiffRow{
				{Origin: OriginReference, Values: []any{3, nil}},
				{Origin: OriginReference, Values: []any{3, nil}},
			},
		},
		{
			name:    "null is a value",
			student: ds([]any{1, nil}),
			ref:     ds([]any{1, "NULL"}),
			wantRows: []DiffRow{
				{Origin: OriginStudent, Values: []any{1, nil}},
				{Origin: OriginReference, Values: []any{1, "NULL"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compare(tt.student, tt.ref)
			assert.Equal(t, len(tt.wantRows) == 0, d.Equal())
			if len(tt.wantRows) == 0 {
				assert.Empty(t, d.Rows)
				return
			}
			assert.Equal(t, tt.wantRows, d.Rows)
		})
	}
}

func TestDiffDataset(t *testing.T) {
	d := Compare(ds([]any{1, "a"}), ds())
	out := d.Dataset()
	assert.Equal(t, []string{"origin", "id", "name"}, out.ColumnNames())
	assert.Equal(t, [][]any{{OriginStudent, 1, "a"}}, out.Rows)
}

func numeric(coef int64, exp int32) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(coef), Exp: exp, Valid: true}
}

func TestCompareNumericIgnoresScale(t *testing.T) {
	student := ds([]any{numeric(25, -1), "a"}, []any{numeric(0, 0), "z"})
	ref := ds([]any{numeric(250, -2), "a"}, []any{numeric(0, -3), "z"})
	assert.True(t, Compare(student, ref).Equal())

	d := Compare(ds([]any{numeric(25, -1), "a"}), ds([]any{numeric(26, -1), "a"}))
	assert.Len(t, d.Rows, 2)

	nan := pgtype.Numeric{NaN: true, Valid: true}
	assert.True(t, Compare(ds([]any{nan, "n"}), ds([]any{nan, "n"})).Equal())
}
