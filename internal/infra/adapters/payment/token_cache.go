package payment

import (
	"context"
	"sync"

	"rental-payments/internal/domain/ports/adapter"
)

var _ adapter.GatewayTokenCache = (*MemoryTokenCache)(nil)

// MemoryTokenCache is the process-local default. Races on it are benign: two
// near-simultaneous refetches both store a valid token.
type MemoryTokenCache struct {
	mu  sync.RWMutex
	tok adapter.GatewayToken
	set bool
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (c *MemoryTokenCache) Get(ctx context.Context) (adapter.GatewayToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set || c.tok.Value == "" {
		return adapter.GatewayToken{}, false
	}
	return c.tok, true
}

func (c *MemoryTokenCache) Put(ctx context.Context, tok adapter.GatewayToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tok = tok
	c.set = true
}
