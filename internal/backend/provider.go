// Package backend selects the configured persistence variant and hands out a
// single lazily initialized handle to it for the whole session.
package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/config"
	"github.com/and161185/todosync/internal/repository"
	"github.com/and161185/todosync/internal/repository/postgres"
	"github.com/and161185/todosync/internal/repository/sqlite"
)

// Factory builds a fresh, uninitialized backend.
type Factory func() repository.Backend

// FactoryFor returns the factory for the configured variant.
func FactoryFor(cfg config.Backend, log *zap.Logger) (Factory, error) {
	switch cfg.Variant {
	case config.Embedded:
		return func() repository.Backend { return sqlite.New(cfg, log) }, nil
	case config.Networked:
		return func() repository.Backend { return postgres.New(cfg, log) }, nil
	default:
		return nil, fmt.Errorf("backend: unknown variant %q", cfg.Variant)
	}
}

// Provider memoizes one initialized handle. Initialization runs under a mutex,
// so concurrent first callers wait for a single attempt instead of racing to
// build divergent handles. A failed attempt is not cached: the next call
// starts from scratch. Once cached, the handle is returned unconditionally.
type Provider struct {
	factory Factory
	log     *zap.Logger

	mu     sync.Mutex
	handle repository.Backend
}

// NewProvider constructs a provider over factory.
func NewProvider(factory Factory, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{factory: factory, log: log}
}

// Handle returns the session handle, initializing it on first use.
// Errors are *errs.BackendUnavailableError from the backend's Init.
func (p *Provider) Handle(ctx context.Context) (repository.Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil {
		return p.handle, nil
	}

	start := time.Now()
	b := p.factory()
	if err := b.Init(ctx); err != nil {
		p.log.Warn("backend init failed", zap.Error(err), zap.Duration("dur", time.Since(start)))
		_ = b.Close()
		return nil, err
	}
	p.log.Info("backend ready", zap.Duration("dur", time.Since(start)))
	p.handle = b
	return b, nil
}

// Close releases the cached handle, if any. Only used at process exit.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return nil
	}
	err := p.handle.Close()
	p.handle = nil
	return err
}
