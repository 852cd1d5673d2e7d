// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

// ConnectErrorType represents the category of a database connection failure
type ConnectErrorType int

const (
	ConnectErrorUnknown ConnectErrorType = iota
	ConnectErrorNetwork
	ConnectErrorAuth
	ConnectErrorTimeout
	ConnectErrorMissingDatabase
	ConnectErrorPermission
)

// ParseConnectError categorizes a connection error message
func ParseConnectError(errMsg string) ConnectErrorType {
	lower := strings.ToLower(errMsg)

	switch {
	case strings.Contains(lower, "password authentication failed"),
		strings.Contains(lower, "no pg_hba.conf entry"),
		strings.Contains(lower, "sasl"):
		return ConnectErrorAuth
	case strings.Contains(lower, "database") && strings.Contains(lower, "does not exist"):
		return ConnectErrorMissingDatabase
	case strings.Contains(lower, "permission denied to set role"),
		strings.Contains(lower, "permission denied for database"):
		return ConnectErrorPermission
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		return ConnectErrorTimeout
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "network is unreachable"):
		return ConnectErrorNetwork
	}
	return ConnectErrorUnknown
}

// FormatConnectError formats a tenant connection failure in a user-friendly way
func FormatConnectError(tenant, errMsg string) string {
	errType := ParseConnectError(errMsg)

	var builder strings.Builder

	builder.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Connection Failed"))
	builder.WriteString("\n\n")

	switch errType {
	case ConnectErrorNetwork:
		builder.WriteString("The database server could not be reached.\n")
		builder.WriteString("Check that PostgreSQL is running and that the host and port in the runner DSN are correct.\n")

	case ConnectErrorAuth:
		builder.WriteString("The database rejected the runner credentials.\n")
		builder.WriteString("Check the user and password in the runner DSN.\n")

	case ConnectErrorTimeout:
		builder.WriteString("The connection attempt timed out.\n")

	case ConnectErrorMissingDatabase:
		builder.WriteString(fmt.Sprintf("Tenant %q has no database yet.\n", tenant))
		builder.WriteString("Create it first.\n")

	case ConnectErrorPermission:
		builder.WriteString(fmt.Sprintf("The runner login is not allowed to act as tenant %q.\n", tenant))
		builder.WriteString("Provisioning grants the tenant role to the runner; re-run it for this tenant.\n")

	default:
		builder.WriteString(fmt.Sprintf("Could not open a connection for tenant %q.\n", tenant))
	}

	builder.WriteString("\n")

	switch errType {
	case ConnectErrorMissingDatabase, ConnectErrorPermission:
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint(fmt.Sprintf("→ Run 'sqlab provision %s' and try again", tenant)))
	default:
		builder.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'sqlab connect' to check the connection settings"))
	}

	builder.WriteString("\n")

	if strings.TrimSpace(errMsg) != "" {
		builder.WriteString("\n")
		builder.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(errMsg)))
	}

	return builder.String()
}

// PresentConnectError displays a formatted connection error
func PresentConnectError(tenant, errMsg string) {
	fmt.Println()
	fmt.Println(FormatConnectError(tenant, errMsg))
	fmt.Println()
}
