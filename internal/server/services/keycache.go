package services

import (
	"sync"
	"time"
)

// RecipientKey is the encryption key a recipient publishes. ID lets the
// recipient correlate pushed values with the key they were sealed for.
type RecipientKey struct {
	ID        string
	PublicKey []byte
}

// KeyCache keeps fetched recipient keys for a bounded TTL so that pushing
// many values to the same recipient does not refetch the key every time.
// A stale key is only a wasted push, never a disclosure: the recipient
// simply fails to open values sealed for a key it rotated away.
type KeyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	key       *RecipientKey
	fetchedAt time.Time
}

func NewKeyCache(ttl time.Duration) *KeyCache {
	return &KeyCache{ttl: ttl, entries: make(map[string]cacheEntry), now: time.Now}
}

// Get returns the cached key for the recipient, or nil if absent or older
// than the TTL.
func (c *KeyCache) Get(name string) *RecipientKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || c.now().Sub(e.fetchedAt) > c.ttl {
		delete(c.entries, name)
		return nil
	}
	return e.key
}

func (c *KeyCache) Put(name string, key *RecipientKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = cacheEntry{key: key, fetchedAt: c.now()}
}

// Invalidate drops the cached key so the next push refetches it. Called
// after a push the recipient rejected.
func (c *KeyCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}
