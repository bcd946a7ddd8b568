package cli

import (
	"context"

	"github.com/crawlgraph/crawlgraph/internal/frontier"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/seenfilter"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/hashutil"
	"github.com/crawlgraph/crawlgraph/pkg/urlutil"
)

// seedPriority is the fixed priority assigned to operator-submitted
// seeds (spec.md:145 "admit to Frontier at depth 0, priority 10").
const seedPriority = 10.0

// seedAdmitter admits a raw URL into the frontier at depth 0, with no
// source edge. It backs both the admin API's POST crawl/seeds route and
// `serve`'s own startup admission of --seed-url flags, so a seed
// submitted after startup is admitted exactly the way the initial seeds
// were.
type seedAdmitter struct {
	frontier   *frontier.Frontier
	seen       *seenfilter.Filter
	relational store.Relational
}

func newSeedAdmitter(f *frontier.Frontier, seen *seenfilter.Filter, relational store.Relational) *seedAdmitter {
	return &seedAdmitter{frontier: f, seen: seen, relational: relational}
}

// AddSeed satisfies httpapi.SeedIntake.
func (s *seedAdmitter) AddSeed(rawURL string) error {
	return s.admit(context.Background(), rawURL)
}

func (s *seedAdmitter) admit(ctx context.Context, rawURL string) error {
	normalized, err := urlutil.NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	domain, err := urlutil.RegistrableDomain(normalized)
	if err != nil {
		return err
	}

	seen, err := s.seen.MaybeContains(ctx, normalized)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	urlHash := hashutil.URLHash(normalized)
	candidate := model.FrontierEntry{
		URL:     normalized,
		URLHash: urlHash,
		Domain:  domain,
		Depth:   0,
	}
	admitted, err := s.frontier.Admit(ctx, candidate)
	if err != nil {
		return err
	}
	if !admitted {
		return nil
	}

	if err := s.seen.Add(ctx, normalized); err != nil {
		return err
	}

	rec := model.URLRecord{
		URLHash:       urlHash,
		RawURL:        rawURL,
		NormalizedURL: normalized,
		Domain:        domain,
		Depth:         0,
		Priority:      seedPriority,
		Status:        model.StatusPending,
	}
	return s.relational.UpsertURL(ctx, rec)
}
