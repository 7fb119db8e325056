// File: internal/infra/redis/token_cache.go
package redis

import (
	"context"
	"encoding/json"
	"time"

	"rental-payments/internal/domain/ports/adapter"
)

var _ adapter.GatewayTokenCache = (*TokenCache)(nil)

const tokenKey = "pesapal:auth_token"

// TokenCache shares the gateway token across instances. Sharing is an
// optimization only; every instance fetching its own token is also correct.
type TokenCache struct {
	client *Client
}

func NewTokenCache(client *Client) *TokenCache {
	return &TokenCache{client: client}
}

type cachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *TokenCache) Get(ctx context.Context) (adapter.GatewayToken, bool) {
	raw, err := c.client.Get(ctx, tokenKey)
	if err != nil {
		return adapter.GatewayToken{}, false
	}
	var t cachedToken
	if err := json.Unmarshal([]byte(raw), &t); err != nil || t.Token == "" {
		return adapter.GatewayToken{}, false
	}
	return adapter.GatewayToken{Value: t.Token, ExpiresAt: t.ExpiresAt}, true
}

func (c *TokenCache) Put(ctx context.Context, tok adapter.GatewayToken) {
	if tok.Value == "" {
		_ = c.client.Del(ctx, tokenKey)
		return
	}
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return
	}
	b, err := json.Marshal(cachedToken{Token: tok.Value, ExpiresAt: tok.ExpiresAt})
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, tokenKey, b, ttl)
}
