// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the sqlab CLI.
package main

import (
	"sqlab/engine/cmd"
)

func main() {
	cmd.Execute()
}
