// Package scheduler implements the Scheduler (spec C7): a 10s dispatch
// loop moving ready URLs from the Frontier to the fetch bus past the
// Politeness Governor, an hourly FAILED-retry scan, and a reaper for
// stale IN_PROGRESS entries.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crawlgraph/crawlgraph/internal/bus"
	"github.com/crawlgraph/crawlgraph/internal/frontier"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/politeness"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/timeutil"
)

const dispatchBatchSize = 100

// exhaustedRetryMarker flags a FAILED record whose dead-letter entry has
// already been published, so the retry scan doesn't republish it every
// tick it remains above maxRetryCount.
const exhaustedRetryMarker = 1 << 30

// defaultMaxRetryCount bounds the hourly retry scan (spec §4.7) when New
// is given no positive maxRetryCount from config.
const defaultMaxRetryCount = 3

var backoffParam = timeutil.NewBackoffParam(10*time.Second, 2.0, 30*time.Minute)

// Scheduler moves entries from the Frontier to the fetch bus.
type Scheduler struct {
	frontier     *frontier.Frontier
	governor     *politeness.Governor
	relational   store.Relational
	publisher    bus.Publisher
	maxRetryCount int
	reaperStaleAfter time.Duration
	log          *logrus.Entry
	rng          *rand.Rand
}

func New(f *frontier.Frontier, governor *politeness.Governor, rel store.Relational, pub bus.Publisher, maxRetryCount int, reaperStaleAfter time.Duration, log *logrus.Entry) *Scheduler {
	if maxRetryCount <= 0 {
		maxRetryCount = defaultMaxRetryCount
	}
	return &Scheduler{
		frontier:         f,
		governor:         governor,
		relational:       rel,
		publisher:        pub,
		maxRetryCount:    maxRetryCount,
		reaperStaleAfter: reaperStaleAfter,
		log:              log,
		rng:              rand.New(rand.NewSource(1)),
	}
}

// DispatchTick pops up to dispatchBatchSize entries from the Frontier in
// score order, checking C4 admission for each; admitted entries are
// marked IN_PROGRESS and published to the fetch topic, rejected ones are
// re-inserted with a backed-off score (spec §4.7).
func (s *Scheduler) DispatchTick(ctx context.Context) error {
	entries, err := s.frontier.PopMax(ctx, dispatchBatchSize)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, entry := range entries {
		rec, ok, err := s.relational.GetURL(ctx, entry.URLHash)
		if err != nil {
			s.log.WithError(err).WithField("url_hash", entry.URLHash).Warn("scheduler: failed to load url record")
			continue
		}
		if !ok {
			continue
		}

		decision, err := s.governor.Admit(ctx, rec.Domain, now)
		if err != nil {
			s.log.WithError(err).WithField("domain", rec.Domain).Warn("scheduler: admission check failed")
			continue
		}
		if !decision.Admitted {
			s.requeueWithBackoff(ctx, rec, decision)
			continue
		}

		transitioned, err := s.relational.CompareAndSetStatus(ctx, entry.URLHash, model.StatusPending, model.StatusInProgress)
		if err != nil || !transitioned {
			s.governor.Release(rec.Domain)
			continue
		}
		rec.Status = model.StatusInProgress
		rec.StartedAt = now
		if err := s.relational.UpsertURL(ctx, rec); err != nil {
			s.log.WithError(err).Warn("scheduler: failed to persist IN_PROGRESS start time")
		}

		if err := s.publisher.Publish(ctx, bus.TopicCrawlRequests, bus.Message{Key: rec.Domain, Value: []byte(rec.URLHash)}); err != nil {
			s.log.WithError(err).WithField("url_hash", entry.URLHash).Warn("scheduler: publish failed")
		}
		s.governor.Release(rec.Domain)
	}
	return nil
}

func (s *Scheduler) requeueWithBackoff(ctx context.Context, rec model.URLRecord, decision politeness.Decision) {
	jitter := timeutil.ComputeJitter(2*time.Second, *s.rng)
	delay := timeutil.ExponentialBackoffDelay(rec.RetryCount+1, jitter, *s.rng, backoffParam)
	if decision.WaitHintMs > 0 {
		hint := time.Duration(decision.WaitHintMs) * time.Millisecond
		if hint > delay {
			delay = hint
		}
	}
	nextEligible := time.Now().Add(delay)

	rec.NextEligibleAt = nextEligible
	if err := s.relational.UpsertURL(ctx, rec); err != nil {
		s.log.WithError(err).Warn("scheduler: failed to persist next-eligible time")
	}

	backedOffScore := rec.Priority - float64(delay)/float64(time.Second)
	if err := s.frontier.Reinsert(ctx, rec.URLHash, backedOffScore); err != nil {
		s.log.WithError(err).Warn("scheduler: failed to re-insert rejected entry")
	}
}

// RetryScanTick returns FAILED URLs whose retry count is below the
// configured maximum and whose last attempt is older than 1h back to
// PENDING, decrementing priority with a floor of 1 (spec §4.7).
func (s *Scheduler) RetryScanTick(ctx context.Context) error {
	failed, err := s.relational.ListByStatus(ctx, model.StatusFailed)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-1 * time.Hour)
	for _, rec := range failed {
		if rec.RetryCount >= s.maxRetryCount {
			if rec.RetryCount != exhaustedRetryMarker {
				s.publishExhausted(ctx, rec)
				rec.RetryCount = exhaustedRetryMarker
				if err := s.relational.UpsertURL(ctx, rec); err != nil {
					s.log.WithError(err).Warn("scheduler: failed to mark retries exhausted")
				}
			}
			continue
		}
		if rec.LastAttemptAt.After(cutoff) {
			continue
		}

		transitioned, err := s.relational.CompareAndSetStatus(ctx, rec.URLHash, model.StatusFailed, model.StatusPending)
		if err != nil || !transitioned {
			continue
		}

		rec.Status = model.StatusPending
		rec.Priority = decrementFloor1(rec.Priority)
		if err := s.relational.UpsertURL(ctx, rec); err != nil {
			s.log.WithError(err).Warn("scheduler: failed to persist retry-scan transition")
			continue
		}

		if err := s.frontier.Reinsert(ctx, rec.URLHash, rec.Priority); err != nil {
			s.log.WithError(err).Warn("scheduler: failed to re-insert retried entry")
		}
	}
	return nil
}

// publishExhausted emits a dead-letter record for a URL that has failed
// maxRetryCount times (spec §6 "permanently failed URLs surface on the
// DLQ topic, not silently").
func (s *Scheduler) publishExhausted(ctx context.Context, rec model.URLRecord) {
	err := bus.PublishDLQ(ctx, s.publisher, bus.DLQEntry{
		URL:       rec.NormalizedURL,
		Domain:    rec.Domain,
		Error:     rec.ErrorString,
		Timestamp: rec.LastAttemptAt,
	})
	if err != nil {
		s.log.WithError(err).WithField("url", rec.NormalizedURL).Warn("failed to publish dead-letter entry")
	}
}

func decrementFloor1(priority float64) float64 {
	next := priority - 1
	if next < 1 {
		return 1
	}
	return next
}

// ReaperTick returns IN_PROGRESS URLs whose start timestamp is older
// than reaperStaleAfter (default 30 min, spec §7 cancellation/timeouts)
// back to PENDING and re-inserts them into the Frontier.
func (s *Scheduler) ReaperTick(ctx context.Context) error {
	inProgress, err := s.relational.ListByStatus(ctx, model.StatusInProgress)
	if err != nil {
		return err
	}

	staleBefore := time.Now().Add(-s.reaperStaleAfter)
	for _, rec := range inProgress {
		if rec.StartedAt.After(staleBefore) {
			continue
		}

		transitioned, err := s.relational.CompareAndSetStatus(ctx, rec.URLHash, model.StatusInProgress, model.StatusPending)
		if err != nil || !transitioned {
			continue
		}

		rec.Status = model.StatusPending
		if err := s.relational.UpsertURL(ctx, rec); err != nil {
			s.log.WithError(err).Warn("scheduler: failed to persist reaped status")
			continue
		}

		if err := s.frontier.Reinsert(ctx, rec.URLHash, rec.Priority); err != nil {
			s.log.WithError(err).Warn("scheduler: failed to re-insert reaped entry")
		}
	}
	return nil
}
