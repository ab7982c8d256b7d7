package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Factory builds the engine for one tenant. The registry passes its shared
// Metrics so all tenants report into the same registered collectors.
type Factory func(ctx context.Context, businessID string, m *Metrics) (*Engine, error)

// Registry caches one engine per tenant, creating them lazily through the
// factory. It owns the Prometheus metrics shared by all engines.
type Registry struct {
	mu      sync.Mutex
	engines map[string]*Engine

	factory Factory
	metrics *Metrics
	log     *slog.Logger
}

// NewRegistry constructs a registry around the factory, registering engine
// metrics against reg. A nil reg disables metrics.
func NewRegistry(factory Factory, reg prometheus.Registerer, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	var m *Metrics
	if reg != nil {
		m = NewMetrics(reg)
	}
	return &Registry{
		engines: make(map[string]*Engine),
		factory: factory,
		metrics: m,
		log:     log,
	}
}

// GetOrCreate returns the engine for the tenant, building it on first use.
// Construction failures are not cached; the next call retries.
func (r *Registry) GetOrCreate(ctx context.Context, businessID string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[businessID]; ok {
		return e, nil
	}

	e, err := r.factory(ctx, businessID, r.metrics)
	if err != nil {
		return nil, err
	}
	r.engines[businessID] = e
	r.log.Info("engine created", slog.String("business_id", businessID))
	return e, nil
}

// Evict closes and removes the tenant's engine, if present.
func (r *Registry) Evict(businessID string) {
	r.mu.Lock()
	e, ok := r.engines[businessID]
	delete(r.engines, businessID)
	r.mu.Unlock()

	if ok {
		if err := e.Close(); err != nil {
			r.log.Warn("engine close failed",
				slog.String("business_id", businessID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close closes every live engine and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	for id, e := range engines {
		if err := e.Close(); err != nil {
			r.log.Warn("engine close failed",
				slog.String("business_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}
