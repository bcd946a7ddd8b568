package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV adapts github.com/redis/go-redis/v9 to the KV contract. The
// token bucket arithmetic runs as a single Lua script server-side so the
// load-refill-consume-persist sequence is atomic across replicas, per
// spec §4.4.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (r *RedisKV) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	res, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, expected).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// tokenBucketScript implements spec §4.4's token bucket as one atomic
// Redis-side step: load (tokens,last-refill), refill by elapsed*rate
// clamped at capacity, consume n if available, persist.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refillPerSecond = tonumber(ARGV[2])
local n = tonumber(ARGV[3])
local nowMs = tonumber(ARGV[4])

local tokens = capacity
local lastRefillMs = nowMs

local state = redis.call("HMGET", key, "tokens", "last_refill_ms")
if state[1] and state[2] then
	tokens = tonumber(state[1])
	lastRefillMs = tonumber(state[2])
end

local elapsedSeconds = (nowMs - lastRefillMs) / 1000.0
if elapsedSeconds > 0 then
	tokens = math.min(capacity, tokens + elapsedSeconds * refillPerSecond)
	lastRefillMs = nowMs
end

local admitted = 0
local waitHintMs = 0
if tokens >= n then
	tokens = tokens - n
	admitted = 1
else
	local deficit = n - tokens
	waitHintMs = math.ceil((deficit / refillPerSecond) * 1000)
end

redis.call("HMSET", key, "tokens", tostring(tokens), "last_refill_ms", tostring(lastRefillMs))
redis.call("EXPIRE", key, 3600)

return {admitted, waitHintMs}
`)

func (r *RedisKV) TokenBucketTake(ctx context.Context, key string, capacity float64, refillPerSecond float64, n float64, now time.Time) (bool, int64, error) {
	res, err := tokenBucketScript.Run(ctx, r.client, []string{key},
		capacity, refillPerSecond, n, now.UnixMilli()).Result()
	if err != nil {
		return false, 0, err
	}
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return false, 0, nil
	}
	admitted, _ := pair[0].(int64)
	waitHintMs, _ := pair[1].(int64)
	return admitted == 1, waitHintMs, nil
}

// tokenBucketPeekScript projects the refill to now without consuming
// any tokens or persisting the projection, for read-only inspection.
var tokenBucketPeekScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refillPerSecond = tonumber(ARGV[2])
local nowMs = tonumber(ARGV[3])

local tokens = capacity
local lastRefillMs = nowMs

local state = redis.call("HMGET", key, "tokens", "last_refill_ms")
if state[1] and state[2] then
	tokens = tonumber(state[1])
	lastRefillMs = tonumber(state[2])
end

local elapsedSeconds = (nowMs - lastRefillMs) / 1000.0
if elapsedSeconds > 0 then
	tokens = math.min(capacity, tokens + elapsedSeconds * refillPerSecond)
end

return tostring(tokens)
`)

func (r *RedisKV) TokenBucketPeek(ctx context.Context, key string, capacity float64, refillPerSecond float64, now time.Time) (float64, error) {
	res, err := tokenBucketPeekScript.Run(ctx, r.client, []string{key},
		capacity, refillPerSecond, now.UnixMilli()).Text()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(res, 64)
}

func (r *RedisKV) SortedSetAdd(ctx context.Context, setKey string, member string, score float64) error {
	return r.client.ZAdd(ctx, setKey, redis.Z{Score: score, Member: member}).Err()
}

// sortedSetPopMaxScript pops up to n highest-scoring members atomically,
// since go-redis has no single ZPOPMAX-with-removal-of-N-in-one-round-trip
// primitive that also returns scores without a race between ZRANGE and ZREM.
var sortedSetPopMaxScript = redis.NewScript(`
local key = KEYS[1]
local n = tonumber(ARGV[1])
local popped = redis.call("ZPOPMAX", key, n)
return popped
`)

func (r *RedisKV) SortedSetPopMax(ctx context.Context, setKey string, n int) ([]ScoredMember, error) {
	res, err := sortedSetPopMaxScript.Run(ctx, r.client, []string{setKey}, n).Result()
	if err != nil {
		return nil, err
	}
	flat, ok := res.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]ScoredMember, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		member, _ := flat[i].(string)
		scoreStr, _ := flat[i+1].(string)
		score, _ := strconv.ParseFloat(scoreStr, 64)
		out = append(out, ScoredMember{Member: member, Score: score})
	}
	return out, nil
}

func (r *RedisKV) SortedSetRemove(ctx context.Context, setKey string, member string) error {
	return r.client.ZRem(ctx, setKey, member).Err()
}

func (r *RedisKV) SortedSetLen(ctx context.Context, setKey string) (int64, error) {
	return r.client.ZCard(ctx, setKey).Result()
}

func (r *RedisKV) SortedSetAll(ctx context.Context, setKey string) ([]ScoredMember, error) {
	zs, err := r.client.ZRangeWithScores(ctx, setKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (r *RedisKV) Incr(ctx context.Context, key string, delta float64) (float64, error) {
	return r.client.IncrByFloat(ctx, key, delta).Result()
}
