// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"

	"sqlab/engine/internal/config"
	"sqlab/engine/internal/dsn"
	"sqlab/engine/internal/engine"
	"sqlab/engine/internal/history"
	"sqlab/engine/internal/keychain"
	"sqlab/engine/internal/logging"
	"sqlab/engine/internal/provision"
	"sqlab/engine/internal/tenant"

	"go.uber.org/zap"
)

// secretStore returns the OS keychain, or nil when it is unavailable.
func secretStore() config.SecretStore {
	km, err := keychain.GetManager()
	if err != nil {
		logger.Debug("keychain unavailable", zap.Error(err))
		return nil
	}
	return km
}

// openEngine builds an engine from the loaded configuration. The provisioner
// is attached when an admin DSN is available; needAdmin makes its absence an
// error. The returned cleanup closes every connection and the history store.
func openEngine(ctx context.Context, needAdmin bool) (*engine.Engine, func(), error) {
	store := secretStore()

	rawRunner, err := cfg.RunnerDSN(store)
	if err != nil {
		return nil, nil, err
	}
	runner, err := dsn.Parse(rawRunner)
	if err != nil {
		return nil, nil, err
	}
	dialer, err := tenant.NewPgxDialer(dsn.Normalize(runner), cfg.Pool.StatementTimeout)
	if err != nil {
		return nil, nil, err
	}

	opts := engine.Options{
		Backend: cfg.Engine.Backend,
		Pool: tenant.Options{
			IdleTimeout:  cfg.Pool.IdleTimeout,
			ReapInterval: cfg.Pool.ReapInterval,
			Autocommit:   cfg.Pool.Autocommit,
		},
		StripLimit: cfg.Splitter.StripLimit,
		Logger:     logger,
	}

	rawAdmin, err := cfg.AdminDSN(store)
	switch {
	case err == nil:
		admin, perr := dsn.Parse(rawAdmin)
		if perr != nil {
			return nil, nil, perr
		}
		grantee := runner.User
		if grantee == admin.User {
			grantee = ""
		}
		opts.Provisioner = provision.New(provision.OpenDSN(dsn.Normalize(admin)), grantee, logger)
	case needAdmin:
		return nil, nil, err
	}

	var hist *history.Store
	if !cfg.History.Disabled && cfg.History.Path != "" {
		hist, err = history.Open(ctx, cfg.History.Path)
		if err != nil {
			logger.Warn("result history disabled", zap.String("path", cfg.History.Path), zap.Error(err))
		} else {
			opts.Results = hist
		}
	}

	eng, err := engine.New(dialer, opts)
	if err != nil {
		closeHistory(hist)
		return nil, nil, err
	}
	if err := eng.Start(); err != nil {
		closeHistory(hist)
		return nil, nil, err
	}
	logger.Debug("engine ready", logging.DSN("runner", rawRunner), zap.Bool("provisioning", opts.Provisioner != nil))

	cleanup := func() {
		if err := eng.Close(context.Background()); err != nil {
			logger.Warn("closing tenant connections failed", zap.Error(err))
		}
		closeHistory(hist)
	}
	return eng, cleanup, nil
}

func closeHistory(h *history.Store) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		logger.Warn("closing history failed", zap.Error(err))
	}
}
