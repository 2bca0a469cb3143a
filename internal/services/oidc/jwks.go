package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	defaultJWKSTTL = time.Hour
	// minJWKSRefresh spaces out forced refreshes triggered by unknown key IDs
	minJWKSRefresh = time.Minute
)

type keySet struct {
	keys    jwk.Set
	fetched time.Time
}

// JWKSManager fetches key sets by URL and keeps each for an hour. Google
// rotates its signing keys, so a set can be refreshed early when a token
// names a key ID it does not hold.
type JWKSManager struct {
	client *http.Client
	now    func() time.Time

	mu   sync.Mutex
	sets map[string]keySet
}

// NewJWKSManager creates a new JWKS manager
func NewJWKSManager() *JWKSManager {
	return &JWKSManager{
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		sets:   make(map[string]keySet),
	}
}

// GetJWKS returns the key set at jwksURL, fetching it when absent or stale
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	return m.load(ctx, jwksURL, defaultJWKSTTL)
}

// Refresh refetches the key set unless it was fetched within the last minute
func (m *JWKSManager) Refresh(ctx context.Context, jwksURL string) (jwk.Set, error) {
	return m.load(ctx, jwksURL, minJWKSRefresh)
}

func (m *JWKSManager) load(ctx context.Context, jwksURL string, maxAge time.Duration) (jwk.Set, error) {
	m.mu.Lock()
	cached, ok := m.sets[jwksURL]
	m.mu.Unlock()
	if ok && m.now().Sub(cached.fetched) < maxAge {
		return cached.keys, nil
	}

	keys, err := jwk.Fetch(ctx, jwksURL, jwk.WithHTTPClient(m.client))
	if err != nil {
		if ok {
			// a stale set still verifies tokens signed with unrotated keys
			return cached.keys, nil
		}
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	m.mu.Lock()
	m.sets[jwksURL] = keySet{keys: keys, fetched: m.now()}
	m.mu.Unlock()
	return keys, nil
}
