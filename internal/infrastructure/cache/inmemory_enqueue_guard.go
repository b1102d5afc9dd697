package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/connector/internal/domain/integration"
)

// InMemoryEnqueueGuard implements EnqueueGuard with an in-process map.
// Suitable for single-instance deployments and tests.
type InMemoryEnqueueGuard struct {
	mu        sync.Mutex
	claims    map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryEnqueueGuard creates a guard and starts its expiry sweeper
func NewInMemoryEnqueueGuard() *InMemoryEnqueueGuard {
	g := &InMemoryEnqueueGuard{
		claims:   make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	g.wg.Add(1)
	go g.cleanupLoop(time.Minute)

	return g
}

// Claim returns true if key is unclaimed or its claim expired
func (g *InMemoryEnqueueGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiresAt, ok := g.claims[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	g.claims[key] = now.Add(ttl)
	return true, nil
}

// Release drops the claim on key
func (g *InMemoryEnqueueGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.claims, key)
	g.mu.Unlock()
	return nil
}

// Close stops the sweeper. Safe to call multiple times.
func (g *InMemoryEnqueueGuard) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopChan)
		g.wg.Wait()
	})
	return nil
}

func (g *InMemoryEnqueueGuard) cleanupLoop(interval time.Duration) {
	defer g.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

func (g *InMemoryEnqueueGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, expiresAt := range g.claims {
		if !now.Before(expiresAt) {
			delete(g.claims, key)
		}
	}
}

// Size returns the number of live and expired-but-unswept claims
func (g *InMemoryEnqueueGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

var _ integration.EnqueueGuard = (*InMemoryEnqueueGuard)(nil)
