package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/crawlgraph/crawlgraph/internal/bus"
	"github.com/crawlgraph/crawlgraph/internal/frontier"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/politeness"
	"github.com/crawlgraph/crawlgraph/internal/scheduler"
	"github.com/crawlgraph/crawlgraph/internal/seenfilter"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

func newTestScheduler(t *testing.T) (*scheduler.Scheduler, *frontier.Frontier, store.Relational, *bus.MemoryBus) {
	t.Helper()
	kv := store.NewMemoryKV()
	rel := store.NewMemoryRelational()
	publ := bus.NewMemoryBus()
	seen := seenfilter.New(kv, 1000, 0.01)
	f := frontier.New(kv, seen, frontier.BFSStrategy{}, 10)
	gov := politeness.New(kv, 100, 100, 3, 2, time.Minute, 10)
	log := logrus.NewEntry(logrus.New())
	sched := scheduler.New(f, gov, rel, publ, 3, 30*time.Minute, log)
	return sched, f, rel, publ
}

func TestDispatchTick_AdmitsAndPublishes(t *testing.T) {
	sched, f, rel, publ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan bus.Message, 1)
	go publ.Run(ctx, bus.TopicCrawlRequests, "test-group", func(_ context.Context, msg bus.Message) error {
		received <- msg
		return nil
	})

	rec := model.URLRecord{URLHash: "h1", NormalizedURL: "https://example.com/a", Domain: "example.com", Status: model.StatusPending, Priority: 5}
	require.NoError(t, rel.UpsertURL(ctx, rec))
	require.NoError(t, f.Reinsert(ctx, "h1", 5))

	// Give the Run goroutine a moment to register its subscriber channel
	// before DispatchTick publishes.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sched.DispatchTick(ctx))

	select {
	case msg := <-received:
		require.Equal(t, "h1", string(msg.Value))
	case <-time.After(time.Second):
		t.Fatal("expected a published crawl-request message")
	}

	got, ok, err := rel.GetURL(ctx, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusInProgress, got.Status)
}

func TestRetryScanTick_ReturnsOldFailedToPending(t *testing.T) {
	sched, _, rel, _ := newTestScheduler(t)
	ctx := context.Background()

	rec := model.URLRecord{
		URLHash:       "h2",
		Domain:        "example.com",
		Status:        model.StatusFailed,
		RetryCount:    1,
		Priority:      5,
		LastAttemptAt: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, rel.UpsertURL(ctx, rec))

	require.NoError(t, sched.RetryScanTick(ctx))

	got, ok, err := rel.GetURL(ctx, "h2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusPending, got.Status)
	require.Equal(t, 4.0, got.Priority)
}

func TestRetryScanTick_SkipsRecentFailures(t *testing.T) {
	sched, _, rel, _ := newTestScheduler(t)
	ctx := context.Background()

	rec := model.URLRecord{
		URLHash:       "h3",
		Domain:        "example.com",
		Status:        model.StatusFailed,
		RetryCount:    1,
		LastAttemptAt: time.Now(),
	}
	require.NoError(t, rel.UpsertURL(ctx, rec))

	require.NoError(t, sched.RetryScanTick(ctx))

	got, _, err := rel.GetURL(ctx, "h3")
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, got.Status)
}

func TestRetryScanTick_PublishesDLQOnceWhenRetriesExhausted(t *testing.T) {
	sched, _, rel, publ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan bus.Message, 2)
	go publ.Run(ctx, bus.TopicDLQ, "test-group", func(_ context.Context, msg bus.Message) error {
		received <- msg
		return nil
	})
	time.Sleep(20 * time.Millisecond)

	rec := model.URLRecord{
		URLHash:       "h4",
		NormalizedURL: "https://example.com/gone",
		Domain:        "example.com",
		Status:        model.StatusFailed,
		RetryCount:    3,
		ErrorString:   "http status 404",
		LastAttemptAt: time.Now(),
	}
	require.NoError(t, rel.UpsertURL(ctx, rec))

	require.NoError(t, sched.RetryScanTick(ctx))
	require.NoError(t, sched.RetryScanTick(ctx))

	select {
	case msg := <-received:
		require.Equal(t, "example.com", msg.Key)
	case <-time.After(time.Second):
		t.Fatal("expected a published dead-letter message")
	}

	select {
	case <-received:
		t.Fatal("expected the dead-letter entry to be published only once")
	case <-time.After(100 * time.Millisecond):
	}

	got, ok, err := rel.GetURL(ctx, "h4")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusFailed, got.Status)
}

func TestReaperTick_RequeuesStaleInProgress(t *testing.T) {
	sched, f, rel, _ := newTestScheduler(t)
	ctx := context.Background()

	rec := model.URLRecord{
		URLHash:   "h4",
		Domain:    "example.com",
		Status:    model.StatusInProgress,
		Priority:  3,
		StartedAt: time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, rel.UpsertURL(ctx, rec))

	require.NoError(t, sched.ReaperTick(ctx))

	got, _, err := rel.GetURL(ctx, "h4")
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, got.Status)

	n, err := f.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
