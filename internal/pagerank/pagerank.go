// Package pagerank implements the PageRank Job (spec C12): an
// externally-triggered (cron) batch job that rebuilds the link graph
// from store.Relational's edge table and writes converged rank scores.
package pagerank

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/crawlgraph/crawlgraph/internal/lock"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

// lockName is the C5 distributed lock guarding against concurrent runs
// from overlapping cron triggers.
const lockName = "pagerank:run"

// lockTTL bounds how long a single run may hold the lock before another
// scheduler replica is free to retry.
const lockTTL = 30 * time.Minute

// jobIDKey holds the running job's id for the duration of lockTTL, so a
// concurrent trigger can report the existing id instead of a fresh one
// (spec.md:147 "idempotent while a job is running").
const jobIDKey = "pagerank:job:current"

// Job computes PageRank scores over the crawled link graph.
type Job struct {
	relational           store.Relational
	locker               *lock.Locker
	cache                store.KV
	damping              float64
	maxIterations        int
	convergenceThreshold float64
	log                  *logrus.Entry
}

func New(relational store.Relational, locker *lock.Locker, cache store.KV, damping float64, maxIterations int, convergenceThreshold float64, log *logrus.Entry) *Job {
	return &Job{
		relational:           relational,
		locker:               locker,
		cache:                cache,
		damping:              damping,
		maxIterations:        maxIterations,
		convergenceThreshold: convergenceThreshold,
		log:                  log,
	}
}

// Run acquires the distributed lock, builds the in-memory graph, runs
// power iteration to convergence, and writes the resulting ranks
// synchronously. It is a no-op (nil error) if another replica already
// holds the lock. Exported for tests and for any caller that wants to
// block on the full run; TriggerAsync is what the admin API uses.
func (j *Job) Run(ctx context.Context) error {
	lease, acquired, err := j.locker.Acquire(ctx, lockName, lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		j.log.Info("pagerank: another replica holds the run lock, skipping")
		return nil
	}
	defer lease.Release(ctx)

	return j.compute(ctx)
}

// TriggerAsync starts a run in the background and returns immediately
// with a job id (spec.md:147 "asynchronous trigger; 202 with a job id").
// If another replica (or an earlier call in this process) already holds
// the run lock, it returns that run's job id with alreadyRunning=true
// instead of starting a second one.
func (j *Job) TriggerAsync(ctx context.Context) (jobID string, alreadyRunning bool, err error) {
	lease, acquired, err := j.locker.Acquire(ctx, lockName, lockTTL)
	if err != nil {
		return "", false, err
	}
	if !acquired {
		existing, ok, err := j.cache.Get(ctx, jobIDKey)
		if err != nil {
			return "", true, err
		}
		if !ok {
			return "", true, nil
		}
		return string(existing), true, nil
	}

	jobID = uuid.NewString()
	if err := j.cache.Set(ctx, jobIDKey, []byte(jobID), lockTTL); err != nil {
		lease.Release(ctx)
		return "", false, err
	}

	go func() {
		runCtx := context.Background()
		defer lease.Release(runCtx)
		if err := j.compute(runCtx); err != nil {
			j.log.WithError(err).WithField("job_id", jobID).Error("pagerank: async run failed")
		}
	}()

	return jobID, false, nil
}

// compute builds the in-memory graph, runs power iteration to
// convergence, and writes the resulting ranks. Callers must already
// hold the C5 lock.
func (j *Job) compute(ctx context.Context) error {
	edges, err := j.relational.AllEdges(ctx)
	if err != nil {
		return err
	}

	g := buildGraph(edges)
	scores := g.compute(j.damping, j.maxIterations, j.convergenceThreshold)

	now := time.Now()
	ranks := make([]model.RankRecord, 0, len(scores))
	for urlHash, score := range scores {
		rec, ok, err := j.relational.GetURL(ctx, urlHash)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		nd := g.nodes[urlHash]
		ranks = append(ranks, model.RankRecord{
			URL:            rec.NormalizedURL,
			Score:          score,
			InboundCount:   len(nd.inbound),
			OutboundCount:  len(nd.outbound),
			LastCalculated: now,
		})
	}

	return j.relational.WriteRanks(ctx, ranks)
}

// node is one URL's adjacency record in the in-memory link graph.
type node struct {
	inbound  []string
	outbound []string
}

// graph is the full link graph built from the edge table, keyed by
// normalized URL (here, by urlHash, since EdgeRecord carries hashes).
type graph struct {
	nodes map[string]*node
}

func buildGraph(edges []model.EdgeRecord) *graph {
	g := &graph{nodes: make(map[string]*node)}
	ensure := func(hash string) *node {
		n, ok := g.nodes[hash]
		if !ok {
			n = &node{}
			g.nodes[hash] = n
		}
		return n
	}
	for _, e := range edges {
		ensure(e.SourceHash).outbound = append(ensure(e.SourceHash).outbound, e.TargetHash)
		ensure(e.TargetHash).inbound = append(ensure(e.TargetHash).inbound, e.SourceHash)
	}
	return g
}

// compute runs power iteration with uniform redistribution of dangling
// mass (spec §4.12), returning per-URL scores once the L1 delta between
// iterations falls under convergenceThreshold or maxIterations is hit.
func (g *graph) compute(damping float64, maxIterations int, convergenceThreshold float64) map[string]float64 {
	n := len(g.nodes)
	if n == 0 {
		return map[string]float64{}
	}

	scores := make(map[string]float64, n)
	for url := range g.nodes {
		scores[url] = 1.0 / float64(n)
	}

	base := (1 - damping) / float64(n)

	for iter := 0; iter < maxIterations; iter++ {
		next := make(map[string]float64, n)
		danglingMass := 0.0
		for url, nd := range g.nodes {
			if len(nd.outbound) == 0 {
				danglingMass += scores[url]
			}
		}
		danglingShare := damping * danglingMass / float64(n)

		for url := range g.nodes {
			next[url] = base + danglingShare
		}
		for url, nd := range g.nodes {
			if len(nd.outbound) == 0 {
				continue
			}
			share := damping * scores[url] / float64(len(nd.outbound))
			for _, target := range nd.outbound {
				next[target] += share
			}
		}

		delta := 0.0
		for url := range g.nodes {
			delta += absFloat(next[url] - scores[url])
		}
		scores = next
		if delta < convergenceThreshold {
			break
		}
	}

	return scores
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
