package utils

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// lease is a held key with an expiry
type lease struct {
	token      string
	expiration time.Time
}

// LeaseTable hands out exclusive, expiring leases on string keys. An expired
// lease can be taken over, so a crashed holder never blocks a key forever.
type LeaseTable struct {
	items map[string]*lease
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
}

// NewLeaseTable creates a lease table whose leases last ttl
func NewLeaseTable(ttl time.Duration) *LeaseTable {
	return &LeaseTable{
		items: make(map[string]*lease),
		ttl:   ttl,
		now:   time.Now,
	}
}

// TryAcquire takes the lease on key. It returns the holder token and true,
// or "" and false when another live lease holds the key.
func (t *LeaseTable) TryAcquire(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if l, ok := t.items[key]; ok && now.Before(l.expiration) {
		return "", false
	}

	l := &lease{token: uuid.NewString(), expiration: now.Add(t.ttl)}
	t.items[key] = l
	t.cleanupLocked(now)
	return l.token, true
}

// Release drops the lease on key if token still holds it
func (t *LeaseTable) Release(key, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if l, ok := t.items[key]; ok && l.token == token {
		delete(t.items, key)
	}
}

// Held reports whether key currently has a live lease
func (t *LeaseTable) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.items[key]
	return ok && t.now().Before(l.expiration)
}

// cleanupLocked removes expired leases
func (t *LeaseTable) cleanupLocked(now time.Time) {
	for key, l := range t.items {
		if !now.Before(l.expiration) {
			delete(t.items, key)
		}
	}
}
