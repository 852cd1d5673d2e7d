// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package statement splits raw SQL submissions into ordered statement units and
// tags each unit with a coarse statement type.
//
// Tokenization is delegated to the PostgreSQL scanner (pg_query_go), so quoted
// identifiers, string literals, dollar-quoted bodies and comments never produce
// false statement boundaries. Classification is advisory: unrecognized input
// degrades to OTHER or UNKNOWN and never raises an error.
package statement

import (
	"iter"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// StripLimit is the largest input, in bytes, for which comments are stripped.
// Larger inputs keep their comments; the caller may retry with the raw text.
const StripLimit = 20000

// Unit is one statement extracted from a submission.
type Unit struct {
	// SQL is the statement text including its terminating semicolon, if any.
	SQL string
	// Type is the coarse statement type.
	Type Type
	// Alias replaces SQL for display when the statement is a builtin query.
	Alias string
}

// Builtin returns a unit for a fixed, non-user-authored query displayed under alias.
func Builtin(sql, alias string) Unit {
	return Unit{SQL: sql, Type: Classify(sql), Alias: alias}
}

// Display returns the text shown to users: the alias for builtins, the SQL otherwise.
func (u Unit) Display() string {
	if u.Alias != "" {
		return u.Alias
	}
	return u.SQL
}

// IsBuiltin reports whether the unit carries a display alias.
func (u Unit) IsBuiltin() bool { return u.Alias != "" }

// Splitter splits submissions with a configurable comment-stripping threshold.
type Splitter struct {
	// StripLimit overrides the package StripLimit when positive.
	StripLimit int
}

// Split returns the statements of text in source order.
// The sequence is computed on each iteration, so it can be ranged over again.
func (s Splitter) Split(text string, stripComments bool) iter.Seq[Unit] {
	limit := StripLimit
	if s.StripLimit > 0 {
		limit = s.StripLimit
	}
	return func(yield func(Unit) bool) {
		for _, u := range split(text, stripComments && len(text) <= limit) {
			if !yield(u) {
				return
			}
		}
	}
}

// Split returns the statements of text using the default threshold.
func Split(text string, stripComments bool) iter.Seq[Unit] {
	return Splitter{}.Split(text, stripComments)
}

// First returns the first statement of text, without stripping comments.
func First(text string) (Unit, bool) {
	for u := range Split(text, false) {
		return u, true
	}
	return Unit{}, false
}

func isComment(t pg_query.Token) bool {
	return t == pg_query.Token_SQL_COMMENT || t == pg_query.Token_C_COMMENT
}

func split(text string, strip bool) []Unit {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	scan, err := pg_query.Scan(text)
	if err != nil {
		return []Unit{{SQL: strings.TrimSpace(text), Type: Unknown}}
	}

	var units []Unit
	start := 0
	var toks []*pg_query.ScanToken
	emit := func(end int) {
		defer func() { toks = toks[:0] }()
		var words []string
		for _, t := range toks {
			if !isComment(t.Token) {
				words = append(words, strings.ToUpper(text[t.Start:t.End]))
			}
		}
		// A lone semicolon or a run of comments is not a statement.
		if len(words) == 0 || (len(words) == 1 && words[0] == ";") {
			return
		}
		sql := text[start:end]
		if strip {
			sql = stripComments(text, start, end, toks)
		}
		units = append(units, Unit{SQL: strings.TrimSpace(sql), Type: classifyWords(words)})
	}

	for _, t := range scan.Tokens {
		toks = append(toks, t)
		if t.Token == pg_query.Token_ASCII_59 {
			emit(int(t.End))
			start = int(t.End)
		}
	}
	emit(len(text))
	return units
}

// stripComments rebuilds text[start:end] without its comment tokens.
// Block comments become a single space so adjacent tokens stay separated.
func stripComments(text string, start, end int, toks []*pg_query.ScanToken) string {
	var b strings.Builder
	pos := start
	for _, t := range toks {
		if !isComment(t.Token) {
			continue
		}
		b.WriteString(text[pos:t.Start])
		if t.Token == pg_query.Token_C_COMMENT {
			b.WriteByte(' ')
		}
		pos = int(t.End)
	}
	b.WriteString(text[pos:end])
	return b.String()
}
