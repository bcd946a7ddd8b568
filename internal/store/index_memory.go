package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/crawlgraph/crawlgraph/internal/model"
)

// MemoryIndex is a small in-process inverted index used by tests and
// `crawlgraph serve --dev`. It uses the same field-weighted disjunctive
// scoring as the bleve adapter, minus stemming/fuzzy text analysis, and
// additionally multiplies each score by log1p(PageRank+1), which the bleve
// adapter does not, so query-pipeline tests can run without a real index
// store.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]model.Document
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]model.Document)}
}

func (m *MemoryIndex) Index(_ context.Context, doc model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.DocID] = doc
	return nil
}

func (m *MemoryIndex) Get(_ context.Context, docID string) (model.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[docID]
	return d, ok, nil
}

func (m *MemoryIndex) Delete(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, docID)
	return nil
}

func (m *MemoryIndex) DocumentCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

func (m *MemoryIndex) Search(_ context.Context, req SearchRequest) ([]SearchHit, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []SearchHit
	for _, doc := range m.docs {
		if !satisfiesMustTerms(doc, req.MustTerms) {
			continue
		}

		score := fieldScore(doc, req.ShouldTerms, req.TitleBoost, req.TokenBoost, req.ContentBoost)
		score += fieldScore(doc, req.SynonymTerms, req.TitleBoost/2, req.TokenBoost/2, req.ContentBoost/2)
		if score <= 0 && len(req.MustTerms) == 0 {
			continue
		}
		score *= math.Log1p(doc.PageRank + 1)
		hits = append(hits, SearchHit{DocID: doc.DocID, Score: score, Document: doc})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	total := len(hits)

	from := req.From
	if from > len(hits) {
		from = len(hits)
	}
	to := from + req.Size
	if req.Size <= 0 || to > len(hits) {
		to = len(hits)
	}
	return hits[from:to], total, nil
}

func (m *MemoryIndex) SuggestTitlePrefix(_ context.Context, prefix string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[string]struct{}{}
	var out []string
	prefix = strings.ToLower(prefix)
	for _, doc := range m.docs {
		title := strings.ToLower(doc.Title)
		if strings.HasPrefix(title, prefix) {
			if _, dup := seen[title]; dup {
				continue
			}
			seen[title] = struct{}{}
			out = append(out, doc.Title)
			if len(out) >= limit {
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func fieldScore(doc model.Document, terms []string, titleBoost, tokenBoost, contentBoost float64) float64 {
	if len(terms) == 0 {
		return 0
	}
	var score float64
	lowerTitle := strings.ToLower(doc.Title)
	lowerBody := strings.ToLower(doc.Body)
	for _, term := range terms {
		lowerTerm := strings.ToLower(term)
		if strings.Contains(lowerTitle, lowerTerm) {
			score += titleBoost
		}
		if containsToken(doc.Tokens, lowerTerm) {
			score += tokenBoost
		}
		if strings.Contains(lowerBody, lowerTerm) {
			score += contentBoost
		}
	}
	return score
}

func satisfiesMustTerms(doc model.Document, mustTerms []string) bool {
	for _, must := range mustTerms {
		if !containsToken(doc.Tokens, must) {
			return false
		}
	}
	return true
}

func containsToken(tokens []string, term string) bool {
	for _, t := range tokens {
		if strings.EqualFold(t, term) {
			return true
		}
	}
	return false
}
