package session

import (
	"sync"
	"time"
)

// Credential is the access/identity token pair proving the current user's
// authentication, together with the claims derived from it. It is owned by the
// Cache and mutated only by the Manager.
type Credential struct {
	AccessToken   string
	IdentityToken string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Claims        map[string]string
}

// Expired reports whether the credential is past its expiry at the given instant.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Cache holds the most recent credential for one authenticated identity.
// All access is serialized; the zero value is not usable, construct via NewCache.
type Cache struct {
	mu   sync.RWMutex
	cred Credential
	held bool
	now  func() time.Time
}

// NewCache returns an empty credential cache using wall-clock time.
func NewCache() *Cache {
	return NewCacheWithClock(time.Now)
}

// NewCacheWithClock returns an empty cache with an injectable clock for tests.
func NewCacheWithClock(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{now: now}
}

// Get returns the cached credential when present and not expired.
func (c *Cache) Get() (Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.held || c.cred.Expired(c.now()) {
		return Credential{}, false
	}
	return c.cred, true
}

// Peek returns the cached credential even when expired. Callers use this to
// degrade to last-known-good data during provider outages.
func (c *Cache) Peek() (Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred, c.held
}

// Age returns the time elapsed since the cached credential was issued.
// The second return is false when the cache is empty.
func (c *Cache) Age() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.held {
		return 0, false
	}
	return c.now().Sub(c.cred.IssuedAt), true
}

// Put replaces the cached credential.
func (c *Cache) Put(cred Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
	c.held = true
}

// Clear drops the cached credential. Called on sign-out.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = Credential{}
	c.held = false
}
