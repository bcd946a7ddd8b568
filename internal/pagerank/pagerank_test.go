package pagerank_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/crawlgraph/crawlgraph/internal/lock"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/pagerank"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

func TestRun_ConvergesAndWritesRanks(t *testing.T) {
	rel := store.NewMemoryRelational()
	kv := store.NewMemoryKV()
	locker := lock.NewLocker(kv)
	ctx := context.Background()

	urls := []string{"https://a.example/", "https://b.example/", "https://c.example/"}
	hashes := map[string]string{}
	for _, u := range urls {
		h := "hash-" + u
		hashes[u] = h
		require.NoError(t, rel.UpsertURL(ctx, model.URLRecord{URLHash: h, NormalizedURL: u}))
	}
	// a -> b -> c -> a (a simple cycle, every node has one inbound/outbound edge)
	require.NoError(t, rel.InsertEdge(ctx, model.EdgeRecord{SourceHash: hashes[urls[0]], TargetHash: hashes[urls[1]]}))
	require.NoError(t, rel.InsertEdge(ctx, model.EdgeRecord{SourceHash: hashes[urls[1]], TargetHash: hashes[urls[2]]}))
	require.NoError(t, rel.InsertEdge(ctx, model.EdgeRecord{SourceHash: hashes[urls[2]], TargetHash: hashes[urls[0]]}))

	log := logrus.NewEntry(logrus.New())
	job := pagerank.New(rel, locker, kv, 0.85, 100, 1e-6, log)
	require.NoError(t, job.Run(ctx))

	rankA, ok, err := rel.GetRank(ctx, urls[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 1.0/3.0, rankA.Score, 0.01)
	require.Equal(t, 1, rankA.InboundCount)
	require.Equal(t, 1, rankA.OutboundCount)
}

func TestRun_EmptyGraphWritesNoRanks(t *testing.T) {
	rel := store.NewMemoryRelational()
	kv := store.NewMemoryKV()
	locker := lock.NewLocker(kv)
	log := logrus.NewEntry(logrus.New())
	job := pagerank.New(rel, locker, kv, 0.85, 50, 1e-6, log)
	require.NoError(t, job.Run(context.Background()))
}

func TestRun_SkipsWhenLockHeldByAnotherReplica(t *testing.T) {
	rel := store.NewMemoryRelational()
	kv := store.NewMemoryKV()
	locker := lock.NewLocker(kv)
	ctx := context.Background()

	_, acquired, err := locker.Acquire(ctx, "pagerank:run", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	log := logrus.NewEntry(logrus.New())
	job := pagerank.New(rel, locker, kv, 0.85, 50, 1e-6, log)
	require.NoError(t, job.Run(ctx))
}

func TestTriggerAsync_ReturnsExistingJobIDWhileRunHeld(t *testing.T) {
	rel := store.NewMemoryRelational()
	kv := store.NewMemoryKV()
	locker := lock.NewLocker(kv)
	ctx := context.Background()

	_, acquired, err := locker.Acquire(ctx, "pagerank:run", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, kv.Set(ctx, "pagerank:job:current", []byte("job-123"), time.Hour))

	log := logrus.NewEntry(logrus.New())
	job := pagerank.New(rel, locker, kv, 0.85, 50, 1e-6, log)

	jobID, alreadyRunning, err := job.TriggerAsync(ctx)
	require.NoError(t, err)
	require.True(t, alreadyRunning)
	require.Equal(t, "job-123", jobID)
}

func TestTriggerAsync_StartsNewRunAndReturnsFreshJobID(t *testing.T) {
	rel := store.NewMemoryRelational()
	kv := store.NewMemoryKV()
	locker := lock.NewLocker(kv)
	ctx := context.Background()

	log := logrus.NewEntry(logrus.New())
	job := pagerank.New(rel, locker, kv, 0.85, 50, 1e-6, log)

	jobID, alreadyRunning, err := job.TriggerAsync(ctx)
	require.NoError(t, err)
	require.False(t, alreadyRunning)
	require.NotEmpty(t, jobID)

	time.Sleep(50 * time.Millisecond)
}
