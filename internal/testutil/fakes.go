package testutil

import (
	"context"
	"sync"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MemCache is an in-process port.CacheRepository.
type MemCache struct {
	mu       sync.Mutex
	keys     map[string]struct{}
	products map[string]domain.Product

	// Err, when set, is returned by every call.
	Err error
}

func NewMemCache() *MemCache {
	return &MemCache{keys: map[string]struct{}{}, products: map[string]domain.Product{}}
}

func (c *MemCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return false, c.Err
	}
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = struct{}{}
	return true, nil
}

func (c *MemCache) ReleaseIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.keys, key)
	return c.Err
}

func (c *MemCache) HasKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.keys[key]
	return ok
}

func (c *MemCache) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	p, ok := c.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *MemCache) SetProduct(_ context.Context, p *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return c.Err
	}
	c.products[p.ID] = *p
	return nil
}

func (c *MemCache) InvalidateProducts(_ context.Context, productIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range productIDs {
		delete(c.products, id)
	}
	return c.Err
}

func (c *MemCache) Cached(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.products[productID]
	return ok
}

// RecordingPublisher collects published events and fails with Err when set.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxEvent
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, e domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *RecordingPublisher) Published() []domain.OutboxEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.OutboxEvent, len(p.events))
	copy(out, p.events)
	return out
}
