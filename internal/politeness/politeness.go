// Package politeness implements the Politeness Governor (spec C4): a
// per-domain admission gate combining a token bucket, a circuit breaker,
// and a concurrency cap. The Scheduler calls Admit before dispatching a
// domain's request; the FetchWorker reports fetch outcomes through
// RecordResult.
package politeness

import (
	"context"
	"sync"
	"time"

	"github.com/crawlgraph/crawlgraph/internal/store"
)

// CircuitState is the breaker's state machine position (spec §4.4).
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted   bool
	WaitHintMs int64
	Reason     string // "token_bucket", "circuit_open", "concurrency_cap", or "" when admitted
}

// domainState is the in-memory half of a domain's breaker/concurrency
// bookkeeping. The token bucket itself lives in store.KV so it is shared
// across worker processes; the breaker and concurrency cap are scoped to
// this process, matching spec §4.4's note that the breaker protects THIS
// crawler's own connection pool rather than acting as a global lock.
type domainState struct {
	mu sync.Mutex

	circuitState     CircuitState
	consecutiveFails int
	consecutiveOKs   int
	openedAt         time.Time

	inFlight int
}

// Governor is the per-domain admission gate.
type Governor struct {
	kv store.KV

	tokenBucketCapacity  float64
	tokenBucketRefillRPS float64

	failThreshold    int
	successThreshold int
	cooldown         time.Duration

	maxConcurrentPerDomain int

	mu      sync.Mutex
	domains map[string]*domainState
}

func New(kv store.KV, tokenBucketCapacity, tokenBucketRefillRPS float64, failThreshold, successThreshold int, cooldown time.Duration, maxConcurrentPerDomain int) *Governor {
	return &Governor{
		kv:                     kv,
		tokenBucketCapacity:    tokenBucketCapacity,
		tokenBucketRefillRPS:   tokenBucketRefillRPS,
		failThreshold:          failThreshold,
		successThreshold:       successThreshold,
		cooldown:               cooldown,
		maxConcurrentPerDomain: maxConcurrentPerDomain,
		domains:                make(map[string]*domainState),
	}
}

func (g *Governor) stateFor(domain string) *domainState {
	g.mu.Lock()
	defer g.mu.Unlock()
	ds, ok := g.domains[domain]
	if !ok {
		ds = &domainState{circuitState: CircuitClosed}
		g.domains[domain] = ds
	}
	return ds
}

// Admit evaluates the circuit breaker, concurrency cap, and token bucket
// in that order (spec §4.4: the breaker is cheapest to check and gates
// out dead domains before they waste token-bucket state). Callers that
// receive Admitted=true must later call Release once the request
// completes, and must call RecordResult with the outcome.
func (g *Governor) Admit(ctx context.Context, domain string, now time.Time) (Decision, error) {
	ds := g.stateFor(domain)

	ds.mu.Lock()
	switch ds.circuitState {
	case CircuitOpen:
		if now.Sub(ds.openedAt) >= g.cooldown {
			ds.circuitState = CircuitHalfOpen
			ds.consecutiveOKs = 0
		} else {
			waitMs := g.cooldown.Milliseconds() - now.Sub(ds.openedAt).Milliseconds()
			ds.mu.Unlock()
			return Decision{Admitted: false, WaitHintMs: waitMs, Reason: "circuit_open"}, nil
		}
	case CircuitHalfOpen:
		if ds.inFlight > 0 {
			ds.mu.Unlock()
			return Decision{Admitted: false, WaitHintMs: 1000, Reason: "circuit_open"}, nil
		}
	}

	if g.maxConcurrentPerDomain > 0 && ds.inFlight >= g.maxConcurrentPerDomain {
		ds.mu.Unlock()
		return Decision{Admitted: false, WaitHintMs: 200, Reason: "concurrency_cap"}, nil
	}
	ds.mu.Unlock()

	admitted, waitHintMs, err := g.kv.TokenBucketTake(ctx, tokenBucketKey(domain), g.tokenBucketCapacity, g.tokenBucketRefillRPS, 1, now)
	if err != nil {
		return Decision{}, err
	}
	if !admitted {
		return Decision{Admitted: false, WaitHintMs: waitHintMs, Reason: "token_bucket"}, nil
	}

	ds.mu.Lock()
	ds.inFlight++
	ds.mu.Unlock()

	return Decision{Admitted: true}, nil
}

// Release decrements the in-flight concurrency counter. Must be called
// exactly once for every Admit that returned Admitted=true.
func (g *Governor) Release(domain string) {
	ds := g.stateFor(domain)
	ds.mu.Lock()
	if ds.inFlight > 0 {
		ds.inFlight--
	}
	ds.mu.Unlock()
}

// RecordResult feeds a fetch outcome into the breaker state machine
// (spec §4.4): failThreshold consecutive failures trip the breaker
// open; successThreshold consecutive successes in half-open close it;
// a single failure in half-open reopens it.
func (g *Governor) RecordResult(domain string, success bool, now time.Time) {
	ds := g.stateFor(domain)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	switch ds.circuitState {
	case CircuitHalfOpen:
		if success {
			ds.consecutiveOKs++
			if ds.consecutiveOKs >= g.successThreshold {
				ds.circuitState = CircuitClosed
				ds.consecutiveFails = 0
				ds.consecutiveOKs = 0
			}
		} else {
			ds.circuitState = CircuitOpen
			ds.openedAt = now
			ds.consecutiveOKs = 0
		}
	default: // Closed (Open state shouldn't reach here via RecordResult since Admit rejects first)
		if success {
			ds.consecutiveFails = 0
			return
		}
		ds.consecutiveFails++
		if ds.consecutiveFails >= g.failThreshold {
			ds.circuitState = CircuitOpen
			ds.openedAt = now
		}
	}
}

// Inspect reports a domain's current token count, a wait hint for the
// next admission if the bucket is currently empty, and the breaker
// state — the three fields spec.md:149's rate-limit inspection route
// must return.
func (g *Governor) Inspect(ctx context.Context, domain string, now time.Time) (tokens float64, waitHintMs int64, state CircuitState, err error) {
	tokens, err = g.kv.TokenBucketPeek(ctx, tokenBucketKey(domain), g.tokenBucketCapacity, g.tokenBucketRefillRPS, now)
	if err != nil {
		return 0, 0, "", err
	}
	if tokens < 1 && g.tokenBucketRefillRPS > 0 {
		waitHintMs = int64(((1 - tokens) / g.tokenBucketRefillRPS) * 1000)
	}
	return tokens, waitHintMs, g.State(domain), nil
}

// State reports the current breaker state for a domain, used by the
// admin API's rate-limit inspection route.
func (g *Governor) State(domain string) CircuitState {
	ds := g.stateFor(domain)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.circuitState
}

// Reset forces a domain's breaker back to closed, used by the admin
// API's rate-limit reset route.
func (g *Governor) Reset(domain string) {
	ds := g.stateFor(domain)
	ds.mu.Lock()
	ds.circuitState = CircuitClosed
	ds.consecutiveFails = 0
	ds.consecutiveOKs = 0
	ds.mu.Unlock()
}

func tokenBucketKey(domain string) string {
	return "tokenbucket:" + domain
}
