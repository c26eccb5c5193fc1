package store

import (
	"context"
	"crypto"
	"sync"

	"github.com/agentfleet/task-planner/internal/store/model"
)

// CacheKeyStore is a wrapper around KeyStore which caches public keys for
// the lifetime of the process. Runner token verification hits this on
// every request; the underlying record never changes once minted.
type CacheKeyStore struct {
	delegate   Key
	publicKeys map[string]crypto.PublicKey
	mu         sync.Mutex
}

func NewCacheKeyStore(delegate Key) Key {
	return &CacheKeyStore{
		delegate:   delegate,
		publicKeys: make(map[string]crypto.PublicKey),
	}
}

func (p *CacheKeyStore) InitialMigration() error {
	return p.delegate.InitialMigration()
}

func (p *CacheKeyStore) Create(ctx context.Context, key model.Key) (*model.Key, error) {
	return p.delegate.Create(ctx, key)
}

func (p *CacheKeyStore) Delete(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publicKeys = make(map[string]crypto.PublicKey)

	return p.delegate.Delete(ctx, jobID)
}

func (p *CacheKeyStore) GetPublicKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// try cache first
	publicKey, found := p.publicKeys[kid]
	if found {
		return publicKey, nil
	}

	newPublicKey, err := p.delegate.GetPublicKey(ctx, kid)
	if err != nil {
		return nil, err
	}

	p.publicKeys[kid] = newPublicKey

	return newPublicKey, nil
}
