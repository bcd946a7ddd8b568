package cli

import (
	"context"
	"testing"

	"github.com/crawlgraph/crawlgraph/internal/frontier"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/seenfilter"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/hashutil"
	"github.com/crawlgraph/crawlgraph/pkg/urlutil"
)

func newTestAdmitter() *seedAdmitter {
	kv := store.NewMemoryKV()
	seen := seenfilter.New(kv, 1000, 0.01)
	f := frontier.New(kv, seen, frontier.BFSStrategy{}, 10)
	rel := store.NewMemoryRelational()
	return newSeedAdmitter(f, seen, rel)
}

func TestSeedAdmitter_AdmitsNewSeed(t *testing.T) {
	a := newTestAdmitter()
	if err := a.AddSeed("https://example.com/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := a.frontier.Len(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("frontier length: got %d, want 1", n)
	}

	normalized, err := urlutil.NormalizeURL("https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, ok, err := a.relational.GetURL(context.Background(), hashutil.URLHash(normalized))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the seed to have been upserted")
	}
	if rec.Status != model.StatusPending {
		t.Errorf("status: got %s, want PENDING", rec.Status)
	}
}

func TestSeedAdmitter_RejectsMalformedURL(t *testing.T) {
	a := newTestAdmitter()
	if err := a.AddSeed("not a url at all \x7f"); err == nil {
		t.Fatal("expected an error for a malformed seed URL")
	}
}

func TestSeedAdmitter_SecondAdmissionOfSameSeedIsNoop(t *testing.T) {
	a := newTestAdmitter()
	if err := a.AddSeed("https://example.com/"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.AddSeed("https://example.com/"); err != nil {
		t.Fatalf("unexpected error on re-admission: %v", err)
	}

	n, err := a.frontier.Len(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("frontier length after re-admission: got %d, want 1", n)
	}
}
