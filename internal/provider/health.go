package provider

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"

	"github.com/omnidex/swapgate/internal/domain"
)

const (
	// healthTTL is how long a cached observation stays fresh.
	healthTTL = 5 * time.Minute
	// probeTimeout bounds a single upstream health probe.
	probeTimeout = 5 * time.Second
	// degradedLatency marks a responsive but slow provider.
	degradedLatency = 2 * time.Second

	// errorRateDecay is the EWMA weight of the previous error rate.
	errorRateDecay = 0.8
)

// HealthMonitor caches per-provider health. It is the sole writer of the
// cache; readers get value copies. Concurrent lookups of a stale entry
// collapse into one probe via singleflight.
type HealthMonitor struct {
	mu    sync.RWMutex
	cache map[string]domain.ProviderHealth
	group singleflight.Group

	now func() time.Time // test hook
}

// NewHealthMonitor builds an empty monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		cache: make(map[string]domain.ProviderHealth),
		now:   time.Now,
	}
}

// Check returns the provider's health, probing when the cached entry is
// missing or older than the TTL.
func (m *HealthMonitor) Check(ctx context.Context, p Provider) domain.ProviderHealth {
	name := p.Name()

	m.mu.RLock()
	cached, ok := m.cache[name]
	m.mu.RUnlock()
	if ok && m.now().Sub(cached.LastCheck) < healthTTL {
		return cached
	}

	v, _, _ := m.group.Do(name, func() (interface{}, error) {
		return m.probe(ctx, p), nil
	})
	return v.(domain.ProviderHealth)
}

// Snapshot checks every given provider and returns the results keyed by name.
func (m *HealthMonitor) Snapshot(ctx context.Context, providers []Provider) map[string]domain.ProviderHealth {
	out := make(map[string]domain.ProviderHealth, len(providers))
	for _, p := range providers {
		out[p.Name()] = m.Check(ctx, p)
	}
	return out
}

// Invalidate drops a cached entry, forcing the next Check to probe.
func (m *HealthMonitor) Invalidate(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, name)
}

func (m *HealthMonitor) probe(ctx context.Context, p Provider) domain.ProviderHealth {
	name := p.Name()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := m.now()
	err := p.CheckHealth(probeCtx)
	latency := m.now().Sub(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, hadPrev := m.cache[name]
	health := domain.ProviderHealth{
		Name:      name,
		Latency:   latency,
		LastCheck: m.now(),
	}

	failed := 0.0
	if err != nil {
		failed = 1.0
	}
	if hadPrev {
		health.ErrorRate = errorRateDecay*prev.ErrorRate + (1-errorRateDecay)*failed
	} else {
		health.ErrorRate = failed
	}

	switch {
	case err != nil:
		health.Status = domain.Unhealthy
		health.ErrorRate = 1
		log.Warn("Provider health probe failed", "provider", name, "err", err)
	case latency > degradedLatency || health.ErrorRate > 0.25:
		health.Status = domain.Degraded
	default:
		health.Status = domain.Healthy
	}

	m.cache[name] = health
	return health
}
