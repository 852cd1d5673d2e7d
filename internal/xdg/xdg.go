// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg resolves XDG Base Directory paths for sqlab.
//
// The configuration file lives in the config directory; the result history
// database lives in the state directory. Both directories are private (0700)
// and created on first use. Traditional locations under the home directory
// are used when the XDG variables are unset.
package xdg

import (
	"os"
	"path/filepath"
)

const app = "sqlab"

func dir(env string, fallback ...string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(append([]string{home}, fallback...)...)
	}
	d := filepath.Join(base, app)
	if err := os.MkdirAll(d, 0o700); err != nil { // private dir
		return "", err
	}
	return d, nil
}

// ConfigDir returns the XDG config directory for sqlab, falling back to
// ~/.config/sqlab.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for sqlab, falling back to
// ~/.local/state/sqlab.
func StateDir() (string, error) {
	return dir("XDG_STATE_HOME", ".local", "state")
}

// ConfigFile returns the default configuration file path. The file itself
// may not exist.
func ConfigFile() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.yaml"), nil
}

// HistoryFile returns the default result history database path.
func HistoryFile() (string, error) {
	d, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "history.db"), nil
}
