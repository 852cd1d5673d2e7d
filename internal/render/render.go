// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package render turns execution results into the records streamed to
// clients: one JSON object per line, with datasets rendered as HTML tables.
package render

import (
	"encoding/json"
	"io"
	"strings"

	"sqlab/engine/internal/sqlexec"

	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// Record is the wire form of one execution result.
type Record struct {
	Success bool   `json:"success"`
	Builtin bool   `json:"builtin"`
	SQL     string `json:"sql"`
	Kind    string `json:"kind"`
	// Payload is an HTML table for datasets and a message otherwise.
	Payload string   `json:"payload"`
	Notices []string `json:"notices,omitempty"`
	ID      string   `json:"id,omitempty"`
}

// FromResult converts res to its wire form.
func FromResult(res sqlexec.Result) Record {
	rec := Record{
		Success: res.Success,
		Builtin: res.Statement.IsBuiltin(),
		SQL:     res.Statement.Display(),
		Kind:    string(res.Kind),
		Notices: res.Notices,
		ID:      res.ID,
	}
	switch res.Kind {
	case sqlexec.KindDataset:
		rec.Payload = TableHTML(res.Dataset)
	case sqlexec.KindError:
		rec.Payload = ErrorMessage(res.Error)
	default:
		rec.Payload = res.Status
	}
	return rec
}

// ErrorMessage renders the description followed by the trace lines.
func ErrorMessage(e *sqlexec.ErrorInfo) string {
	if e == nil {
		return ""
	}
	lines := append([]string{e.Description}, e.Trace...)
	return strings.Join(lines, "\n")
}

// HTMLTable renders ds as a table node. NULL values carry the "null" class.
func HTMLTable(ds *sqlexec.Dataset) Node {
	head := make([]Node, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		head = append(head, Th(Text(c.Name)))
	}
	rows := make([]Node, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		cells := make([]Node, 0, len(row))
		for _, v := range row {
			cells = append(cells, Td(If(v == nil, Class("null")), Text(sqlexec.Text(v))))
		}
		rows = append(rows, Tr(Group(cells)))
	}
	return Table(Class("result"), THead(Tr(Group(head))), TBody(Group(rows)))
}

// TableHTML renders ds as an HTML string.
func TableHTML(ds *sqlexec.Dataset) string {
	if ds == nil {
		return ""
	}
	var b strings.Builder
	_ = HTMLTable(ds).Render(&b)
	return b.String()
}

type flusher interface{ Flush() }

type errFlusher interface{ Flush() error }

// Encoder writes newline-delimited JSON and flushes after every record so
// clients see partial progress.
type Encoder struct {
	w   io.Writer
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{w: w, enc: enc}
}

// Encode writes v as one line and flushes the writer when it supports it.
func (e *Encoder) Encode(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return err
	}
	switch f := e.w.(type) {
	case errFlusher:
		return f.Flush()
	case flusher:
		f.Flush()
	}
	return nil
}
