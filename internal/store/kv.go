package store

import (
	"context"
	"time"
)

// KV is the shared key-value store contract (spec §1 "out of scope"
// external collaborator): ordered-enough lookup, atomic compare-and-set,
// and a scripting facility for multi-step atomic mutation (the token
// bucket, the distributed lock, and the frontier's sorted set all depend
// on it). Its exact backing choice is replaceable; this repo ships a
// go-redis adapter and an in-memory adapter satisfying the same
// interface.
type KV interface {
	// Get returns the raw value for key, or ok=false if absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set writes key=value, with ttl<=0 meaning no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX sets key=value only if it does not already exist, returning
	// whether the set happened. Used by the distributed lock (C5).
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (acquired bool, err error)
	// CompareAndDelete deletes key only if its current value equals
	// expected, used to release a lock only if still held by its owner.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (deleted bool, err error)
	Delete(ctx context.Context, key string) error

	// TokenBucketTake atomically loads (tokens, lastRefillAt), refills by
	// elapsed*rate clamped at capacity, consumes n if available, and
	// persists the result in one store-side step (spec C4 token bucket).
	// waitHint reports milliseconds until n tokens would next be available
	// when admitted is false.
	TokenBucketTake(ctx context.Context, key string, capacity float64, refillPerSecond float64, n float64, now time.Time) (admitted bool, waitHintMs int64, err error)
	// TokenBucketPeek reports the current token count after projecting
	// refill to now, without consuming any tokens or persisting the
	// projection. Used by the admin rate-limit inspection route (spec
	// §6 "returns current tokens, wait hint, circuit state").
	TokenBucketPeek(ctx context.Context, key string, capacity float64, refillPerSecond float64, now time.Time) (tokens float64, err error)

	// SortedSetAdd inserts/updates member with score in the named sorted
	// set (the frontier, §4.6).
	SortedSetAdd(ctx context.Context, setKey string, member string, score float64) error
	// SortedSetPopMax atomically pops up to n highest-scoring members.
	SortedSetPopMax(ctx context.Context, setKey string, n int) ([]ScoredMember, error)
	// SortedSetRemove removes member from the set.
	SortedSetRemove(ctx context.Context, setKey string, member string) error
	// SortedSetLen reports the number of resident members.
	SortedSetLen(ctx context.Context, setKey string) (int64, error)
	// SortedSetAll returns every member, used for a full re-score on
	// strategy switch (§4.6).
	SortedSetAll(ctx context.Context, setKey string) ([]ScoredMember, error)

	// Incr atomically increments key by delta (used for OPIC cash cells)
	// and returns the new value. The stored value is its decimal text, as
	// read back through Get.
	Incr(ctx context.Context, key string, delta float64) (float64, error)
}

// ScoredMember is one entry of a sorted set.
type ScoredMember struct {
	Member string
	Score  float64
}
