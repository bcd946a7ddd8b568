package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/query"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

type stubCorrector struct{}

func (stubCorrector) Correct(term string) (string, bool) {
	if term == "widgt" {
		return "widget", true
	}
	return term, false
}

type stubExpander struct{}

func (stubExpander) Expand(term string) []string {
	if term == "widget" {
		return []string{"gadget"}
	}
	return nil
}

func seedIndex(t *testing.T, idx store.Index, n int, domain string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, idx.Index(ctx, model.Document{
			DocID:  domain + "-doc-" + string(rune('a'+i)),
			URL:    "https://" + domain + "/" + string(rune('a'+i)),
			Title:  "Widget guide",
			Domain: domain,
			Tokens: []string{"widget", "guide"},
		}))
	}
}

func TestSearch_CachesSecondLookup(t *testing.T) {
	idx := store.NewMemoryIndex()
	kv := store.NewMemoryKV()
	seedIndex(t, idx, 2, "example.com")

	svc := query.New(idx, kv, nil, nil, time.Minute, time.Second, time.Second, 0, 0)
	ctx := context.Background()

	first, err := svc.Search(ctx, "widget", 0, 10, query.SortRelevance)
	require.NoError(t, err)
	require.False(t, first.CachedHit())

	second, err := svc.Search(ctx, "widget", 0, 10, query.SortRelevance)
	require.NoError(t, err)
	require.True(t, second.CachedHit())
}

func TestSearch_AppliesCorrectionAndExpansion(t *testing.T) {
	idx := store.NewMemoryIndex()
	kv := store.NewMemoryKV()
	seedIndex(t, idx, 1, "example.com")

	svc := query.New(idx, kv, stubCorrector{}, stubExpander{}, time.Minute, time.Second, time.Second, 0, 0)
	ctx := context.Background()

	result, err := svc.Search(ctx, "widgt", 0, 10, query.SortRelevance)
	require.NoError(t, err)
	require.Equal(t, "widget", result.DidYouMean)
	require.Equal(t, "widget", result.CorrectedQuery)
}

func TestSearch_DiversifiesSameDomainResults(t *testing.T) {
	idx := store.NewMemoryIndex()
	kv := store.NewMemoryKV()
	seedIndex(t, idx, 5, "crowded.example")

	svc := query.New(idx, kv, nil, nil, time.Minute, time.Second, time.Second, 1, 5)
	ctx := context.Background()

	result, err := svc.Search(ctx, "widget", 0, 10, query.SortRelevance)
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)
}

func TestSearch_PageSizeClampedToMax(t *testing.T) {
	idx := store.NewMemoryIndex()
	kv := store.NewMemoryKV()
	seedIndex(t, idx, 1, "example.com")

	svc := query.New(idx, kv, nil, nil, time.Minute, time.Second, time.Second, 0, 0)
	result, err := svc.Search(context.Background(), "widget", 0, 10000, query.SortRelevance)
	require.NoError(t, err)
	require.Equal(t, 50, result.Size)
}

func TestSearch_CapsQueryLengthAt500Chars(t *testing.T) {
	idx := store.NewMemoryIndex()
	kv := store.NewMemoryKV()
	seedIndex(t, idx, 1, "example.com")

	svc := query.New(idx, kv, nil, nil, time.Minute, time.Second, time.Second, 0, 0)
	long := ""
	for i := 0; i < 600; i++ {
		long += "a"
	}
	_, err := svc.Search(context.Background(), long, 0, 10, query.SortRelevance)
	require.NoError(t, err)
}

func TestSearch_ClassifiesIntent(t *testing.T) {
	require.Equal(t, query.IntentTutorial, query.ClassifyIntent("golang concurrency tutorial"))
	require.Equal(t, query.IntentTroubleshooting, query.ClassifyIntent("golang nil pointer error"))
	require.Equal(t, query.IntentQuestion, query.ClassifyIntent("how do I use channels"))
	require.Equal(t, query.IntentGeneral, query.ClassifyIntent("widget pricing"))
}

func TestSearch_ResultsSortedByDate(t *testing.T) {
	idx := store.NewMemoryIndex()
	kv := store.NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, model.Document{
		DocID: "old", URL: "https://example.com/old", Title: "Widget guide", Domain: "example.com",
		Tokens: []string{"widget"}, LastCrawled: time.Now().Add(-24 * time.Hour),
	}))
	require.NoError(t, idx.Index(ctx, model.Document{
		DocID: "new", URL: "https://example.com/new", Title: "Widget guide", Domain: "example.com",
		Tokens: []string{"widget"}, LastCrawled: time.Now(),
	}))

	svc := query.New(idx, kv, nil, nil, time.Minute, time.Second, time.Second, 0, 0)
	result, err := svc.Search(ctx, "widget", 0, 10, query.SortDate)
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	require.Equal(t, "https://example.com/new", result.Results[0].URL)
}
