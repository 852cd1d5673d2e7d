// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"sqlab/engine/internal/sqlexec"
	"sqlab/engine/internal/statement"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableHTML(t *testing.T) {
	ds := &sqlexec.Dataset{
		Columns: []sqlexec.Column{{Name: "id"}, {Name: "note"}},
		Rows:    [][]any{{int32(1), "<b>hi</b>"}, {int32(2), nil}},
	}
	got := TableHTML(ds)
	assert.Equal(t,
		`<table class="result"><thead><tr><th>id</th><th>note</th></tr></thead>`+
			`<tbody><tr><td>1</td><td>&lt;b&gt;hi&lt;/b&gt;</td></tr><tr><td>2</td><td class="null">NULL</td></tr></tbody></table>`,
		got)
}

func TestFromResult(t *testing.T) {
	u, _ := statement.First("UPDATE t SET x = 1;")
	status := FromResult(sqlexec.StatusResult(u, "UPDATE 3", []string{"NOTICE:  hi"}))
	assert.Equal(t, Record{Success: true, SQL: "UPDATE t SET x = 1;", Kind: "status", Payload: "UPDATE 3", Notices: []string{"NOTICE:  hi"}}, status)

	failed := FromResult(sqlexec.ErrorResult(u, &pgconn.PgError{Code: "42P01", Message: `relation "t" does not exist`, Position: 8}, nil))
	assert.False(t, failed.Success)
	assert.Equal(t, "error", failed.Kind)
	assert.Equal(t, "relation \"t\" does not exist\nPOSITION:  8", failed.Payload)

	builtin := sqlexec.DatasetResult(statement.Builtin("SHOW search_path;", "SHOW search_path"), &sqlexec.Dataset{
		Columns: []sqlexec.Column{{Name: "search_path"}},
		Rows:    [][]any{{"public"}},
	}, nil)
	builtin.ID = "abc"
	rec := FromResult(builtin)
	assert.True(t, rec.Builtin)
	assert.Equal(t, "SHOW search_path", rec.SQL)
	assert.Equal(t, "abc", rec.ID)
	assert.True(t, strings.HasPrefix(rec.Payload, "<table"))
}

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestEncoderWritesOneLinePerRecordAndFlushes(t *testing.T) {
	var w flushRecorder
	enc := NewEncoder(&w)
	require.NoError(t, enc.Encode(Record{Success: true, SQL: "SELECT 1;", Kind: "dataset", Payload: "<table></table>"}))
	require.NoError(t, enc.Encode(Record{SQL: "SELECT 1/0;", Kind: "error", Payload: "division by zero"}))
	assert.Equal(t, 2, w.flushes)

	sc := bufio.NewScanner(strings.NewReader(w.String()))
	var lines []Record
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		lines = append(lines, r)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "<table></table>", lines[0].Payload)
	assert.False(t, lines[1].Success)
	assert.Contains(t, w.String(), `"payload":"<table></table>"`, "HTML is not escaped")
}
