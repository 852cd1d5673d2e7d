// Copyright (c) 2025 The sqlab Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package tenant owns one live database connection per tenant.
//
// Connections are opened lazily on first Acquire, reused across requests and
// reclaimed by a background reaper once they have been idle longer than the
// configured ceiling. The pool lock guards only the connection map; it is never
// held while a connection is opened or while a statement runs, so one tenant's
// slow query cannot stall another tenant's lookup.
//
// A single record must not be driven by two requests at once. Serializing a
// tenant's own concurrent submissions is the caller's responsibility.
package tenant

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	apperrors "sqlab/engine/internal/errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTimeout is the idle ceiling after which a connection is reaped.
	DefaultIdleTimeout = 4 * time.Hour
	// DefaultReapInterval is how often the reaper scans the pool.
	DefaultReapInterval = time.Minute
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = stderrors.New("tenant pool is closed")

// Options configures a Pool.
type Options struct {
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	// Autocommit is fixed on every connection the pool creates.
	Autocommit bool
	Logger     *zap.Logger
	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// Pool maps tenant names to their connection records.
type Pool struct {
	dialer Dialer
	opts   Options
	log    *zap.Logger

	mu      sync.Mutex
	records map[string]*Record
	closed  bool

	opening singleflight.Group
	reaper  *cron.Cron
}

// New creates a pool. The reaper does not run until Start is called.
func New(dialer Dialer, opts Options) *Pool {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		dialer:  dialer,
		opts:    opts,
		log:     log.Named("pool"),
		records: make(map[string]*Record),
	}
}

// Acquire returns the tenant's record, opening a connection on first use.
// An existing record has its buffered notices cleared before it is returned;
// one whose connection has already closed is replaced.
// Connection failures are returned as apperrors.ConnectFailed and never retried.
func (p *Pool) Acquire(ctx context.Context, name string) (*Record, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if rec, err := p.lookup(name); rec != nil || err != nil {
		if rec != nil {
			rec.ClearNotices()
		}
		return rec, err
	}

	v, err, _ := p.opening.Do(name, func() (any, error) {
		if rec, err := p.lookup(name); rec != nil || err != nil {
			return rec, err
		}
		rec := newRecord(name, p.opts.Autocommit, p.opts.Clock)
		conn, err := p.dialer.Dial(ctx, name, rec.addNotice)
		if err != nil {
			p.log.Warn("tenant connection failed", zap.String("tenant", name), zap.Error(err))
			return nil, apperrors.Wrap(apperrors.ConnectFailed, fmt.Sprintf("open connection for tenant %q", name), err)
		}
		rec.conn = conn

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = rec.Close(ctx)
			return nil, ErrClosed
		}
		p.records[name] = rec
		p.mu.Unlock()

		p.log.Info("tenant connection opened", zap.String("tenant", name))
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// lookup returns the pooled record for name. A record whose connection was
// closed underneath it is dropped so the caller dials a fresh one.
func (p *Pool) lookup(name string) (*Record, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	rec := p.records[name]
	if rec == nil || !rec.conn.IsClosed() {
		p.mu.Unlock()
		return rec, nil
	}
	delete(p.records, name)
	p.mu.Unlock()

	p.log.Info("dropping closed tenant connection", zap.String("tenant", name))
	if err := rec.Close(context.Background()); err != nil {
		p.log.Debug("closing dropped connection failed", zap.String("tenant", name), zap.Error(err))
	}
	return nil, nil
}

// Lookup returns the tenant's record without opening a connection.
func (p *Pool) Lookup(name string) (*Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[name]
	return rec, ok
}

// Len returns the number of pooled connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Evict removes the tenant's record and closes its connection.
// Evicting an absent tenant is a no-op.
func (p *Pool) Evict(ctx context.Context, name string) {
	p.mu.Lock()
	rec, ok := p.records[name]
	delete(p.records, name)
	p.mu.Unlock()
	if !ok {
		return
	}
	if err := rec.Close(ctx); err != nil {
		p.log.Warn("closing evicted connection failed", zap.String("tenant", name), zap.Error(err))
		return
	}
	p.log.Info("tenant connection evicted", zap.String("tenant", name))
}

// Reap closes every connection idle longer than the idle timeout and returns
// how many were removed. Connections with an operation in flight are kept.
func (p *Pool) Reap(ctx context.Context) int {
	now := p.opts.Clock()

	p.mu.Lock()
	var stale []*Record
	for name, rec := range p.records {
		if rec.idleFor(now) > p.opts.IdleTimeout {
			delete(p.records, name)
			stale = append(stale, rec)
		}
	}
	p.mu.Unlock()

	for _, rec := range stale {
		idle := now.Sub(rec.LastUsed())
		if err := rec.Close(ctx); err != nil {
			p.log.Warn("closing idle connection failed",
				zap.String("tenant", rec.Tenant), zap.Duration("idle", idle), zap.Error(err))
			continue
		}
		p.log.Info("idle tenant connection closed",
			zap.String("tenant", rec.Tenant), zap.Duration("idle", idle))
	}
	return len(stale)
}

// Start schedules the reaper. Ticks that would overlap a running sweep are skipped.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reaper != nil {
		return nil
	}
	logger := cronLogger{p.log.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc("@every "+p.opts.ReapInterval.String(), func() { p.Reap(context.Background()) }); err != nil {
		return apperrors.Wrap(apperrors.ConfigInvalid, "schedule reaper", err)
	}
	c.Start()
	p.reaper = c
	p.log.Debug("reaper started",
		zap.Duration("interval", p.opts.ReapInterval), zap.Duration("idle_timeout", p.opts.IdleTimeout))
	return nil
}

// Close stops the reaper and closes every pooled connection.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	reaper := p.reaper
	p.reaper = nil
	p.closed = true
	records := p.records
	p.records = make(map[string]*Record)
	p.mu.Unlock()

	if reaper != nil {
		<-reaper.Stop().Done()
	}
	var errs []error
	for name, rec := range records {
		if err := rec.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return stderrors.Join(errs...)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
