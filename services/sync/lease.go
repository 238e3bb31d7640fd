package sync

import (
	"sync"
	"time"

	"github.com/unifiedinbox/mailsync/internal/utils"
)

// leaseRegistry single-flights syncs per account. A lease expires after its
// TTL so a crashed worker never wedges an account permanently.
type leaseRegistry struct {
	mu     sync.Mutex
	ttl    time.Duration
	leases map[string]time.Time
}

func newLeaseRegistry(ttl time.Duration) *leaseRegistry {
	return &leaseRegistry{
		ttl:    ttl,
		leases: make(map[string]time.Time),
	}
}

// Acquire takes the lease for accountID. Returns false when a live lease
// is already held by another sync.
func (r *leaseRegistry) Acquire(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := utils.Now()
	if expiry, held := r.leases[accountID]; held && expiry.After(now) {
		return false
	}
	r.leases[accountID] = now.Add(r.ttl)
	return true
}

func (r *leaseRegistry) Release(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.leases, accountID)
}

// Held reports whether a live lease exists for accountID.
func (r *leaseRegistry) Held(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, held := r.leases[accountID]
	return held && expiry.After(utils.Now())
}
