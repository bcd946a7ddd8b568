// Package lock implements the distributed "set-if-absent with expiry"
// mutual-exclusion primitive (spec C5), used to guard the PageRank job,
// Bloom filter serialization, and the frontier-strategy switch.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/crawlgraph/crawlgraph/internal/store"
)

// Locker acquires and releases named locks on the shared KV store.
type Locker struct {
	kv store.KV
}

func NewLocker(kv store.KV) *Locker {
	return &Locker{kv: kv}
}

// Lease is a held lock; callers must Release it (or let the TTL expire on
// crash) and may Heartbeat it to extend the TTL for long-running jobs.
type Lease struct {
	kv    store.KV
	key   string
	token []byte
	ttl   time.Duration
}

// Acquire attempts to take the named lock for ttl. ok=false means someone
// else holds it; the caller should abandon the attempt immediately (spec
// §7 "Lock-contention errors on C5").
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	token := []byte(uuid.NewString())

	acquired, err := l.kv.SetNX(ctx, lockKey(name), token, ttl)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	return &Lease{kv: l.kv, key: lockKey(name), token: token, ttl: ttl}, true, nil
}

// Heartbeat extends the lease's TTL, for jobs that outlive a single TTL
// window (spec §4.5 "periodically extend the TTL").
func (lease *Lease) Heartbeat(ctx context.Context) error {
	return lease.kv.Set(ctx, lease.key, lease.token, lease.ttl)
}

// Release deletes the lock only if this lease's token still matches,
// preventing release of a lock another holder has since acquired after
// this lease's TTL lapsed.
func (lease *Lease) Release(ctx context.Context) (bool, error) {
	return lease.kv.CompareAndDelete(ctx, lease.key, lease.token)
}

func lockKey(name string) string {
	return "lock:" + name
}
