// Package frontier implements the URL Frontier (spec C6): a priority
// queue of pending URLs backed by store.KV's sorted set, scored by a
// pluggable strategy and admitted only past the depth cap and the C2
// seen-filter.
package frontier

import (
	"context"
	"fmt"
	"strings"

	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/seenfilter"
	"github.com/crawlgraph/crawlgraph/internal/store"
)

const setKey = "frontier:pending"

// Strategy computes a frontier admission score for a candidate URL (spec
// §4.6). Higher scores pop first.
type Strategy interface {
	Name() string
	Score(ctx context.Context, candidate model.FrontierEntry) (float64, error)
}

// AdmissionFilter is implemented by strategies that can refuse admission
// outright based on their own score, distinct from the generic
// depth/seen-filter checks every strategy shares (spec §9 Open Question
// (a): Focused's zero score for an out-of-whitelist domain means refuse,
// not "admit at the bottom of the queue").
type AdmissionFilter interface {
	Admissible(score float64) bool
}

// Frontier is the priority queue of not-yet-dispatched URLs.
type Frontier struct {
	kv       store.KV
	seen     *seenfilter.Filter
	strategy Strategy
	maxDepth int
}

func New(kv store.KV, seen *seenfilter.Filter, strategy Strategy, maxDepth int) *Frontier {
	return &Frontier{kv: kv, seen: seen, strategy: strategy, maxDepth: maxDepth}
}

// SetStrategy swaps the active scoring strategy and re-scores every
// resident member under the caller-held distributed lock (spec §4.6:
// "switching strategies triggers a full re-score of resident entries").
// Callers (the admin API route) are responsible for holding the C5 lock
// for the duration of this call.
func (f *Frontier) SetStrategy(ctx context.Context, strategy Strategy) error {
	members, err := f.kv.SortedSetAll(ctx, setKey)
	if err != nil {
		return err
	}
	f.strategy = strategy

	for _, m := range members {
		entry := model.FrontierEntry{URLHash: m.Member}
		score, err := strategy.Score(ctx, entry)
		if err != nil {
			return err
		}
		if err := f.kv.SortedSetAdd(ctx, setKey, m.Member, score); err != nil {
			return err
		}
	}
	return nil
}

// StrategyName reports the active strategy's name, for the admin API.
func (f *Frontier) StrategyName() string {
	return f.strategy.Name()
}

// Admit offers a candidate URL for insertion. It is a no-op (ok=false) if
// depth exceeds maxDepth or the URL has already been seen by C2; the
// caller (link-discovery worker) must still mark it seen via Filter.Add
// separately since Admit does not mutate the seen filter.
func (f *Frontier) Admit(ctx context.Context, candidate model.FrontierEntry) (ok bool, err error) {
	if f.maxDepth > 0 && candidate.Depth > f.maxDepth {
		return false, nil
	}

	alreadySeen, err := f.seen.MaybeContains(ctx, candidate.URL)
	if err != nil {
		return false, err
	}
	if alreadySeen {
		return false, nil
	}

	score, err := f.strategy.Score(ctx, candidate)
	if err != nil {
		return false, err
	}
	if filter, ok := f.strategy.(AdmissionFilter); ok && !filter.Admissible(score) {
		return false, nil
	}
	candidate.Score = score

	if err := f.kv.SortedSetAdd(ctx, setKey, candidate.URLHash, score); err != nil {
		return false, err
	}
	return true, nil
}

// Reinsert re-adds an already-admitted URL at a caller-supplied score,
// used for retry backoff (spec §4.7 FAILED-retry scan) without running
// it back through Admit's depth/seen checks.
func (f *Frontier) Reinsert(ctx context.Context, urlHash string, score float64) error {
	return f.kv.SortedSetAdd(ctx, setKey, urlHash, score)
}

// PopMax removes and returns up to n of the highest-scoring resident
// entries, for the scheduler's dispatch tick.
func (f *Frontier) PopMax(ctx context.Context, n int) ([]model.FrontierEntry, error) {
	members, err := f.kv.SortedSetPopMax(ctx, setKey, n)
	if err != nil {
		return nil, err
	}
	entries := make([]model.FrontierEntry, len(members))
	for i, m := range members {
		entries[i] = model.FrontierEntry{URLHash: m.Member, Score: m.Score}
	}
	return entries, nil
}

// Remove deletes a resident entry, e.g. when the scheduler decides not
// to re-enqueue it.
func (f *Frontier) Remove(ctx context.Context, urlHash string) error {
	return f.kv.SortedSetRemove(ctx, setKey, urlHash)
}

// Len reports the number of resident entries, for admin stats.
func (f *Frontier) Len(ctx context.Context) (int64, error) {
	return f.kv.SortedSetLen(ctx, setKey)
}

// BFSStrategy scores purely by (inverse) depth: shallower pages first.
// Entries at the same depth score equally; no tie-break is applied.
// This is the default, matching spec §4.6's description of breadth-first
// as the baseline strategy.
type BFSStrategy struct{}

func (BFSStrategy) Name() string { return "bfs" }

func (BFSStrategy) Score(_ context.Context, candidate model.FrontierEntry) (float64, error) {
	return -float64(candidate.Depth), nil
}

// BestFirstStrategy scores by the weighted blend of spec §4.6: 50% the
// candidate's last-known PageRank, 30% its domain's authority (approximated
// as the domain's historical fetch success rate, since no domain-level
// PageRank is tracked), and 20% shallowness relative to MaxDepth, scaled to
// roughly [0,100].
type BestFirstStrategy struct {
	Relational store.Relational
	MaxDepth   int
}

func (BestFirstStrategy) Name() string { return "best_first" }

func (s BestFirstStrategy) Score(ctx context.Context, candidate model.FrontierEntry) (float64, error) {
	var pageRank float64
	if rank, ok, err := s.Relational.GetRank(ctx, candidate.URL); err != nil {
		return 0, err
	} else if ok {
		pageRank = rank.Score
	}

	var domainAuthority float64
	if dom, ok, err := s.Relational.GetDomain(ctx, candidate.Domain); err != nil {
		return 0, err
	} else if ok && dom.Attempts > 0 {
		domainAuthority = float64(dom.Successes) / float64(dom.Attempts)
	}

	maxDepth := s.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}
	depthTerm := float64(maxDepth-candidate.Depth) / float64(maxDepth)
	if depthTerm < 0 {
		depthTerm = 0
	}

	return (0.5*pageRank + 0.3*domainAuthority + 0.2*depthTerm) * 100, nil
}

// OPICStrategy implements Online Page Importance Computation: each
// URL holds a "cash" balance in store.KV that is split among its
// outbound links at crawl time and accumulated on the target; the
// frontier score is the target's current cash balance (spec §4.6).
type OPICStrategy struct {
	KV store.KV
}

func (OPICStrategy) Name() string { return "opic" }

func (s OPICStrategy) Score(ctx context.Context, candidate model.FrontierEntry) (float64, error) {
	return s.Cash(ctx, candidate.URLHash)
}

// Cash reports a URL's current OPIC cash balance, 0 if it has never
// received a deposit. Exposed separately from Score so the link-discovery
// worker can read a source page's balance before splitting it among
// outbound links, regardless of whether OPIC is the active strategy.
func (s OPICStrategy) Cash(ctx context.Context, urlHash string) (float64, error) {
	raw, ok, err := s.KV.Get(ctx, opicCashKey(urlHash))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var cash float64
	if _, err := fmt.Sscanf(string(raw), "%f", &cash); err != nil {
		return 0, nil
	}
	return cash, nil
}

// DepositCash credits amount to target's OPIC cash cell, called by the
// link-discovery worker when splitting a fetched page's cash among its
// outbound links.
func (s OPICStrategy) DepositCash(ctx context.Context, targetURLHash string, amount float64) error {
	_, err := s.KV.Incr(ctx, opicCashKey(targetURLHash), amount)
	return err
}

func opicCashKey(urlHash string) string {
	return "opic:cash:" + urlHash
}

// FocusedStrategy scores by keyword overlap between the candidate's
// anchor text and a configured keyword set, blended with PageRank, and
// refuses admission outright to domains outside a configured whitelist
// (spec §4.6 "score = 0 if domain is outside the whitelist ... refused
// admission", spec §9 Open Question (a)).
type FocusedStrategy struct {
	Relational      store.Relational
	Keywords        map[string]struct{}
	DomainWhitelist map[string]struct{}
}

func (FocusedStrategy) Name() string { return "focused" }

func (s FocusedStrategy) Score(ctx context.Context, candidate model.FrontierEntry) (float64, error) {
	if len(s.DomainWhitelist) > 0 {
		if _, ok := s.DomainWhitelist[candidate.Domain]; !ok {
			return 0, nil
		}
	}

	matchCount := 0
	if len(s.Keywords) > 0 {
		anchor := strings.ToLower(candidate.AnchorText)
		for kw := range s.Keywords {
			if strings.Contains(anchor, strings.ToLower(kw)) {
				matchCount++
			}
		}
	}
	keywordScore := 0.0
	if len(s.Keywords) > 0 {
		keywordScore = float64(matchCount) / float64(len(s.Keywords)) * 50
	}

	rankKnown := false
	var pageRank float64
	if rank, ok, err := s.Relational.GetRank(ctx, candidate.URL); err != nil {
		return 0, err
	} else if ok {
		rankKnown = true
		pageRank = rank.Score
	}
	rankScore := 25.0
	if rankKnown {
		rankScore = pageRank * 50
	}

	return keywordScore + rankScore, nil
}

// Admissible refuses entries scored zero, i.e. domains outside the
// configured whitelist.
func (FocusedStrategy) Admissible(score float64) bool { return score > 0 }
