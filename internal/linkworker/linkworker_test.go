package linkworker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawlgraph/crawlgraph/internal/frontier"
	"github.com/crawlgraph/crawlgraph/internal/linkworker"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/seenfilter"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/hashutil"
	"github.com/crawlgraph/crawlgraph/pkg/urlutil"
)

func newWorker(maxDepth int) (*linkworker.Worker, store.Relational) {
	kv := store.NewMemoryKV()
	seen := seenfilter.New(kv, 10000, 0.01)
	f := frontier.New(kv, seen, frontier.BFSStrategy{}, maxDepth)
	rel := store.NewMemoryRelational()
	return linkworker.New(f, seen, rel, maxDepth, nil), rel
}

func mustNormalize(t *testing.T, raw string) string {
	t.Helper()
	normalized, err := urlutil.NormalizeURL(raw)
	require.NoError(t, err)
	return normalized
}

func TestHandleLinkDiscoveryBatch_AdmitsNewLinks(t *testing.T) {
	w, rel := newWorker(10)
	ctx := context.Background()

	batch := model.LinkDiscoveryBatch{
		SourceURL:   "https://example.com/",
		SourceHash:  hashutil.URLHash("https://example.com/"),
		SourceDepth: 0,
		Links: []model.DiscoveredLink{
			{RawURL: "https://example.com/a"},
			{RawURL: "https://example.edu/b"},
		},
	}
	require.NoError(t, w.HandleLinkDiscoveryBatch(ctx, batch))

	normalizedA := mustNormalize(t, "https://example.com/a")
	rec, ok, err := rel.GetURL(ctx, hashutil.URLHash(normalizedA))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusPending, rec.Status)
	require.Equal(t, 1, rec.Depth)
}

func TestHandleLinkDiscoveryBatch_SkipsAlreadySeen(t *testing.T) {
	w, rel := newWorker(10)
	ctx := context.Background()

	link := model.DiscoveredLink{RawURL: "https://example.com/dup"}
	batch := model.LinkDiscoveryBatch{SourceHash: "src", Links: []model.DiscoveredLink{link, link}}
	require.NoError(t, w.HandleLinkDiscoveryBatch(ctx, batch))

	normalized := mustNormalize(t, "https://example.com/dup")
	_, ok, err := rel.GetURL(ctx, hashutil.URLHash(normalized))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHandleLinkDiscoveryBatch_SkipsBeyondMaxDepth(t *testing.T) {
	w, rel := newWorker(1)
	ctx := context.Background()

	batch := model.LinkDiscoveryBatch{SourceHash: "src", SourceDepth: 5, Links: []model.DiscoveredLink{{RawURL: "https://example.com/deep"}}}
	require.NoError(t, w.HandleLinkDiscoveryBatch(ctx, batch))

	normalized := mustNormalize(t, "https://example.com/deep")
	_, ok, err := rel.GetURL(ctx, hashutil.URLHash(normalized))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHandleLinkDiscoveryBatch_SplitsOPICCashAmongOutboundLinks(t *testing.T) {
	kv := store.NewMemoryKV()
	seen := seenfilter.New(kv, 10000, 0.01)
	f := frontier.New(kv, seen, frontier.BFSStrategy{}, 10)
	rel := store.NewMemoryRelational()
	opic := &frontier.OPICStrategy{KV: kv}
	w := linkworker.New(f, seen, rel, 10, opic)
	ctx := context.Background()

	sourceHash := hashutil.URLHash("https://example.com/")
	require.NoError(t, opic.DepositCash(ctx, sourceHash, 2.0))

	batch := model.LinkDiscoveryBatch{
		SourceURL:  "https://example.com/",
		SourceHash: sourceHash,
		Links: []model.DiscoveredLink{
			{RawURL: "https://example.com/a"},
			{RawURL: "https://example.com/b"},
		},
	}
	require.NoError(t, w.HandleLinkDiscoveryBatch(ctx, batch))

	normalizedA := mustNormalize(t, "https://example.com/a")
	cashA, err := opic.Cash(ctx, hashutil.URLHash(normalizedA))
	require.NoError(t, err)
	require.InDelta(t, 2.0, cashA, 1e-9) // 1 (initial) + 2.0/2 (split share)
}

func TestHandleLinkDiscoveryBatch_SkipsBlockedDomain(t *testing.T) {
	w, rel := newWorker(10)
	ctx := context.Background()
	require.NoError(t, rel.UpsertDomain(ctx, model.DomainRecord{Domain: "blocked.example", Blocked: true}))

	batch := model.LinkDiscoveryBatch{SourceHash: "src", Links: []model.DiscoveredLink{{RawURL: "https://blocked.example/x"}}}
	require.NoError(t, w.HandleLinkDiscoveryBatch(ctx, batch))

	normalized := mustNormalize(t, "https://blocked.example/x")
	_, ok, err := rel.GetURL(ctx, hashutil.URLHash(normalized))
	require.NoError(t, err)
	require.False(t, ok)
}
