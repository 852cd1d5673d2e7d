// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages, so callers can tell a connectivity failure apart from
// a provisioning or configuration failure without string matching.
//
// SQL statement failures are not represented here: they travel as Error results
// produced by the executor and never surface as Go errors.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// ConnectFailed indicates a tenant connection could not be opened or reused.
	ConnectFailed Kind = "connect_failed"
	// ProvisionFailed indicates an administrative provisioning step failed.
	ProvisionFailed Kind = "provision_failed"
	// InvalidTenant indicates a tenant identifier that cannot name a role or database.
	InvalidTenant Kind = "invalid_tenant"
	// UnsupportedBackend indicates no query set exists for the configured backend.
	UnsupportedBackend Kind = "unsupported_backend"
	// ConfigInvalid indicates a configuration value could not be used.
	ConfigInvalid Kind = "config_invalid"
	// UnknownBuiltin indicates a builtin query name the backend does not provide.
	UnknownBuiltin Kind = "unknown_builtin"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Is reports whether any error in err's chain is an *E of the given kind.
func Is(err error, kind Kind) bool {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
