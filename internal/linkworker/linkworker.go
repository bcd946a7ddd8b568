// Package linkworker implements the Link-Discovery Worker (spec C9):
// consumes link-discovery batches, normalizes and dedups each candidate
// against the C2 seen filter, assigns an initial frontier priority, and
// admits it into the Frontier plus the link-graph edge table.
package linkworker

import (
	"context"
	"strings"
	"time"

	"github.com/crawlgraph/crawlgraph/internal/frontier"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/seenfilter"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/hashutil"
	"github.com/crawlgraph/crawlgraph/pkg/urlutil"
)

// maxAdmissionsPerBatch caps the number of distinct URLs admitted from a
// single source page (spec §4.9 "at most 50 distinct admissions per
// source page, to bound fan-out from link-farm pages").
const maxAdmissionsPerBatch = 50

const (
	basePriority       = 5.0
	institutionalBonus = 2.0
	newsPathBonus      = 1.0
)

// Worker turns discovered links into frontier-admitted, edge-recorded
// URL records.
type Worker struct {
	frontier   *frontier.Frontier
	seen       *seenfilter.Filter
	relational store.Relational
	maxDepth   int
	// opic tracks OPIC cash balances (spec §4.6) independent of whether
	// OPIC is the Frontier's active scoring strategy, so switching to it
	// later does not start from a cold balance for every resident URL.
	// Nil disables the tracking entirely.
	opic *frontier.OPICStrategy
}

func New(f *frontier.Frontier, seen *seenfilter.Filter, relational store.Relational, maxDepth int, opic *frontier.OPICStrategy) *Worker {
	return &Worker{frontier: f, seen: seen, relational: relational, maxDepth: maxDepth, opic: opic}
}

// HandleLinkDiscoveryBatch processes one batch (spec §4.9).
func (w *Worker) HandleLinkDiscoveryBatch(ctx context.Context, batch model.LinkDiscoveryBatch) error {
	var sourceCashShare float64
	if w.opic != nil && len(batch.Links) > 0 {
		sourceCash, err := w.opic.Cash(ctx, batch.SourceHash)
		if err != nil {
			return err
		}
		sourceCashShare = sourceCash / float64(len(batch.Links))
	}

	admitted := 0
	for _, link := range batch.Links {
		if admitted >= maxAdmissionsPerBatch {
			break
		}

		normalized, err := urlutil.NormalizeURL(link.RawURL)
		if err != nil {
			continue
		}

		domain, err := urlutil.RegistrableDomain(normalized)
		if err != nil {
			continue
		}

		if rec, ok, err := w.relational.GetDomain(ctx, domain); err == nil && ok && rec.Blocked {
			continue
		}

		seen, err := w.seen.MaybeContains(ctx, normalized)
		if err != nil {
			return err
		}
		if seen {
			continue
		}

		depth := batch.SourceDepth + 1
		if w.maxDepth > 0 && depth > w.maxDepth {
			continue
		}

		urlHash := hashutil.URLHash(normalized)
		priority := initialPriority(normalized, depth)

		candidate := model.FrontierEntry{
			URL:        normalized,
			URLHash:    urlHash,
			Domain:     domain,
			Depth:      depth,
			AnchorText: link.AnchorText,
		}
		ok, err = w.frontier.Admit(ctx, candidate)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if err := w.seen.Add(ctx, normalized); err != nil {
			return err
		}

		if w.opic != nil {
			// Spec §4.6: a newly discovered URL starts with cash=1, plus
			// its even share of the source page's cash split on the
			// source's own fetch completion.
			if err := w.opic.DepositCash(ctx, urlHash, 1+sourceCashShare); err != nil {
				return err
			}
		}

		rec := model.URLRecord{
			URLHash:       urlHash,
			RawURL:        link.RawURL,
			NormalizedURL: normalized,
			Domain:        domain,
			Depth:         depth,
			Priority:      priority,
			Status:        model.StatusPending,
			SourceURLHash: batch.SourceHash,
		}
		if err := w.relational.UpsertURL(ctx, rec); err != nil {
			return err
		}

		edge := model.EdgeRecord{
			SourceHash: batch.SourceHash,
			TargetHash: urlHash,
			AnchorText: link.AnchorText,
			FirstSeen:  time.Now(),
		}
		if err := w.relational.InsertEdge(ctx, edge); err != nil {
			return err
		}

		admitted++
	}
	return nil
}

// initialPriority scores a freshly discovered URL (spec §4.9): base 5,
// +2 for .edu/.gov domains, +1 for paths that look like news/article
// content, -1 per depth level.
func initialPriority(normalized string, depth int) float64 {
	priority := basePriority
	lower := strings.ToLower(normalized)
	if strings.Contains(lower, ".edu/") || strings.HasSuffix(hostOf(lower), ".edu") ||
		strings.Contains(lower, ".gov/") || strings.HasSuffix(hostOf(lower), ".gov") {
		priority += institutionalBonus
	}
	if strings.Contains(lower, "/news/") || strings.Contains(lower, "/article/") {
		priority += newsPathBonus
	}
	priority -= float64(depth)
	return priority
}

func hostOf(normalized string) string {
	withoutScheme := normalized
	if idx := strings.Index(withoutScheme, "://"); idx >= 0 {
		withoutScheme = withoutScheme[idx+3:]
	}
	if idx := strings.IndexAny(withoutScheme, "/?#"); idx >= 0 {
		withoutScheme = withoutScheme[:idx]
	}
	return withoutScheme
}
