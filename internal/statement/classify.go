// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package statement

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Type is a coarse statement classification such as "SELECT" or "CREATE TABLE".
type Type string

const (
	Select      Type = "SELECT"
	Insert      Type = "INSERT"
	Update      Type = "UPDATE"
	Delete      Type = "DELETE"
	CreateTable Type = "CREATE TABLE"
	CreateIndex Type = "CREATE INDEX"
	CreateView  Type = "CREATE VIEW"
	DropTable   Type = "DROP TABLE"
	AlterTable  Type = "ALTER TABLE"
	// Other is any statement whose leading keyword is not in the allow-list.
	Other Type = "OTHER"
	// Unknown is reported when the text could not be tokenized.
	Unknown Type = "UNKNOWN"
)

// single maps one-word statement heads to their type.
var single = map[string]Type{
	"INSERT":     Insert,
	"UPDATE":     Update,
	"DELETE":     Delete,
	"MERGE":      "MERGE",
	"TRUNCATE":   "TRUNCATE",
	"GRANT":      "GRANT",
	"REVOKE":     "REVOKE",
	"BEGIN":      "BEGIN",
	"START":      "BEGIN",
	"COMMIT":     "COMMIT",
	"END":        "COMMIT",
	"ROLLBACK":   "ROLLBACK",
	"ABORT":      "ROLLBACK",
	"SAVEPOINT":  "SAVEPOINT",
	"RELEASE":    "RELEASE",
	"SET":        "SET",
	"RESET":      "RESET",
	"SHOW":       "SHOW",
	"EXPLAIN":    "EXPLAIN",
	"COPY":       "COPY",
	"COMMENT":    "COMMENT",
	"ANALYZE":    "ANALYZE",
	"VACUUM":     "VACUUM",
	"DO":         "DO",
	"CALL":       "CALL",
	"LOCK":       "LOCK",
	"PREPARE":    "PREPARE",
	"EXECUTE":    "EXECUTE",
	"DEALLOCATE": "DEALLOCATE",
	"DISCARD":    "DISCARD",
	"REFRESH":    "REFRESH",
}

// objects are the second words accepted after CREATE, DROP and ALTER.
var objects = map[string]bool{
	"TABLE": true, "INDEX": true, "VIEW": true, "SCHEMA": true, "SEQUENCE": true,
	"FUNCTION": true, "PROCEDURE": true, "TYPE": true, "DATABASE": true, "ROLE": true,
	"USER": true, "TRIGGER": true, "EXTENSION": true, "DOMAIN": true,
}

// modifiers may sit between the verb and the object word and are skipped.
var modifiers = map[string]bool{
	"OR": true, "REPLACE": true, "TEMP": true, "TEMPORARY": true, "UNLOGGED": true,
	"UNIQUE": true, "GLOBAL": true, "LOCAL": true, "MATERIALIZED": true, "RECURSIVE": true,
}

// Classify returns the coarse type of the first statement in sql.
func Classify(sql string) Type {
	scan, err := pg_query.Scan(sql)
	if err != nil {
		return Unknown
	}
	var words []string
	for _, t := range scan.Tokens {
		if t.Token == pg_query.Token_ASCII_59 {
			break
		}
		if !isComment(t.Token) {
			words = append(words, strings.ToUpper(sql[t.Start:t.End]))
		}
	}
	return classifyWords(words)
}

// classifyWords inspects upper-cased significant tokens.
func classifyWords(words []string) Type {
	for len(words) > 0 && words[0] == "(" {
		words = words[1:]
	}
	if len(words) == 0 {
		return Other
	}
	head := words[0]
	switch head {
	case "SELECT", "VALUES", "TABLE":
		return Select
	case "WITH":
		return classifyWith(words[1:])
	case "CREATE", "DROP", "ALTER":
		for _, w := range words[1:] {
			if modifiers[w] {
				continue
			}
			if objects[w] {
				return Type(head + " " + w)
			}
			break
		}
		return Other
	}
	if t, ok := single[head]; ok {
		return t
	}
	return Other
}

// classifyWith finds the verb of the main statement following a CTE list.
func classifyWith(words []string) Type {
	depth := 0
	for _, w := range words {
		switch w {
		case "(":
			depth++
			continue
		case ")":
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		switch w {
		case "SELECT", "VALUES", "TABLE":
			return Select
		case "INSERT", "UPDATE", "DELETE", "MERGE":
			return single[w]
		}
	}
	return Other
}
