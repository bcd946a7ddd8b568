// Package query implements the Query Service (spec C13): the
// normalize -> correct -> expand -> compose -> search -> diversify ->
// paginate pipeline, with result caching through store.KV.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/tokenize"
)

// Field boosts for the composed query (spec §4.13 step 4 "field-weighted
// disjunctive query"). Titles matter most, then explicit tokens, then
// raw body content.
const (
	titleBoost   = 3.0
	tokenBoost   = 2.0
	contentBoost = 1.0

	defaultPageSize = 10
	maxPageSize     = 50

	// maxQueryLength caps a normalized query (spec §4.13 step 1 "cap
	// length at 500").
	maxQueryLength = 500

	// defaultDiversifyTopN and defaultMaxSameDomain are the
	// diversification window of spec §4.13 step 5 ("cap ... at 3 within
	// the top 10"). A Service field left at zero falls back to these
	// defaults; a positive Service field replaces its default.
	defaultDiversifyTopN = 10
	defaultMaxSameDomain = 3
)

// SortMode selects the result ordering (spec.md:151 query param
// "sort=<relevance|date|pagerank>").
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortDate      SortMode = "date"
	SortPageRank  SortMode = "pagerank"
)

// Corrector proposes a spelling-corrected rewrite of a query term. It is
// optional: a nil Corrector makes stage 2 of the pipeline a no-op, which
// is a deliberate simplification (spec §9 Open Question) rather than a
// fabricated dependency — see DESIGN.md.
type Corrector interface {
	Correct(term string) (corrected string, changed bool)
}

// SynonymExpander proposes additional disjunctive terms for a query
// term (spec §4.13 step 3).
type SynonymExpander interface {
	Expand(term string) []string
}

// Hit is one ranked search result, shaped per spec.md:153's documented
// response contract.
type Hit struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Score       float64   `json:"score"`
	LastCrawled time.Time `json:"lastCrawled"`
}

// Result is one page of search results, matching spec.md:153's
// documented shape:
// {query, totalResults, page, size, results, correctedQuery?,
// didYouMean?, relatedSearches, executionTimeMs}.
type Result struct {
	Query           string   `json:"query"`
	TotalResults    int      `json:"totalResults"`
	Page            int      `json:"page"`
	Size            int      `json:"size"`
	Results         []Hit    `json:"results"`
	CorrectedQuery  string   `json:"correctedQuery,omitempty"`
	DidYouMean      string   `json:"didYouMean,omitempty"`
	RelatedSearches []string `json:"relatedSearches"`
	ExecutionTimeMs int64    `json:"executionTimeMs"`

	// cachedHit is an in-process-only flag (never round-tripped through
	// the cache payload, since unexported fields are skipped by
	// encoding/json) reporting whether this Result came from the KV
	// cache rather than a fresh index search.
	cachedHit bool
}

// CachedHit reports whether this Result was served from the query
// cache rather than a fresh index search.
func (r Result) CachedHit() bool { return r.cachedHit }

// Service runs the query pipeline against an inverted index, with
// result caching and per-domain diversification.
type Service struct {
	index          store.Index
	cache          store.KV
	corrector      Corrector
	expander       SynonymExpander
	resultCacheTTL time.Duration
	queryTimeout   time.Duration
	indexTimeout   time.Duration
	maxSameDomain  int
	diversifyTopN  int
}

func New(
	index store.Index,
	cache store.KV,
	corrector Corrector,
	expander SynonymExpander,
	resultCacheTTL time.Duration,
	queryTimeout time.Duration,
	indexTimeout time.Duration,
	maxSameDomain int,
	diversifyTopN int,
) *Service {
	return &Service{
		index:          index,
		cache:          cache,
		corrector:      corrector,
		expander:       expander,
		resultCacheTTL: resultCacheTTL,
		queryTimeout:   queryTimeout,
		indexTimeout:   indexTimeout,
		maxSameDomain:  maxSameDomain,
		diversifyTopN:  diversifyTopN,
	}
}

// Search runs the full pipeline for one query string, page, size, and
// sort mode. size<=0 falls back to defaultPageSize; size is clamped at
// maxPageSize. The cache key carries sort, since two
// requests for the same terms but different orderings are different
// queries (spec §4.13 "cached ... keyed by (normalized query, page,
// size, sort)").
func (s *Service) Search(ctx context.Context, rawQuery string, page, size int, sort SortMode) (Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if page < 0 {
		page = 0
	}
	size = clampPageSize(size)
	if sort == "" {
		sort = SortRelevance
	}

	normalized := normalizeQuery(rawQuery)
	cacheKey := s.cacheKey(normalized, page, size, sort)

	if cached, ok, err := s.lookupCache(ctx, cacheKey); err == nil && ok {
		cached.cachedHit = true
		cached.ExecutionTimeMs = time.Since(start).Milliseconds()
		return cached, nil
	}

	tokens := tokenize.Tokens(normalized, model.MaxTokens)
	terms, didYouMean := s.correctTerms(tokens)
	correctedQuery := ""
	if didYouMean != "" {
		correctedQuery = strings.Join(terms, " ")
	}
	synonyms := s.expandTerms(terms)
	entities := detectEntities(normalized)
	intent := classifyIntent(normalized)

	req := store.SearchRequest{
		MustTerms:    entities,
		ShouldTerms:  terms,
		SynonymTerms: synonyms,
		TitleBoost:   titleBoost,
		TokenBoost:   tokenBoost,
		ContentBoost: contentBoostFor(intent),
		From:         page * size,
		Size:         size,
	}

	hits, total, err := s.searchIndex(ctx, req)
	if err != nil {
		return Result{}, err
	}

	hits = s.diversify(hits)
	hits = sortHits(hits, sort)

	result := Result{
		Query:           rawQuery,
		TotalResults:    total,
		Page:            page,
		Size:            size,
		Results:         toHits(hits),
		CorrectedQuery:  correctedQuery,
		DidYouMean:      didYouMean,
		RelatedSearches: relatedSearches(terms, synonyms),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
	s.storeCache(ctx, cacheKey, result)
	return result, nil
}

func toHits(hits []store.SearchHit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{
			URL:         h.Document.URL,
			Title:       h.Document.Title,
			Snippet:     h.Document.Snippet,
			Score:       h.Score,
			LastCrawled: h.Document.LastCrawled,
		}
	}
	return out
}

func (s *Service) searchIndex(ctx context.Context, req store.SearchRequest) ([]store.SearchHit, int, error) {
	indexCtx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	return s.index.Search(indexCtx, req)
}

// correctTerms runs stage 2 (spelling correction) over every tokenized
// term, reporting the first corrected term as didYouMean (spec §4.13
// step 2 "record didYouMean if any substitution occurred").
func (s *Service) correctTerms(terms []string) ([]string, string) {
	if s.corrector == nil {
		return terms, ""
	}
	didYouMean := ""
	out := make([]string, len(terms))
	for i, term := range terms {
		fixed, changed := s.corrector.Correct(term)
		out[i] = fixed
		if changed && didYouMean == "" {
			didYouMean = fixed
		}
	}
	return out, didYouMean
}

// expandTerms runs stage 3 (synonym expansion), collecting secondary
// disjuncts for every query term.
func (s *Service) expandTerms(terms []string) []string {
	if s.expander == nil {
		return nil
	}
	var synonyms []string
	for _, term := range terms {
		synonyms = append(synonyms, s.expander.Expand(term)...)
	}
	return synonyms
}

// relatedSearches returns a small list of synonym-substituted variants
// of the query (spec §4.13 step 6 "a small list of related searches").
func relatedSearches(terms, synonyms []string) []string {
	if len(terms) == 0 || len(synonyms) == 0 {
		return []string{}
	}
	related := make([]string, 0, len(synonyms))
	base := strings.Join(terms, " ")
	last := terms[len(terms)-1]
	for _, syn := range synonyms {
		if syn == "" || syn == last {
			continue
		}
		variant := strings.TrimSuffix(base, last) + syn
		related = append(related, strings.TrimSpace(variant))
		if len(related) >= 3 {
			break
		}
	}
	return related
}

var (
	programmingLanguages = map[string]struct{}{
		"go": {}, "golang": {}, "java": {}, "python": {}, "javascript": {}, "typescript": {},
		"rust": {}, "ruby": {}, "php": {}, "c++": {}, "c#": {}, "kotlin": {}, "swift": {}, "scala": {},
	}
	yearPattern    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	versionPattern = regexp.MustCompile(`\b\d+\.\d+\.\d+\b`)
)

// detectEntities extracts entity-driven must-match terms from a
// normalized query: programming language names, 4-digit years, and
// version triples (spec §4.13 step 3 "detect entities").
func detectEntities(normalized string) []string {
	var entities []string
	for _, word := range strings.Fields(normalized) {
		if _, ok := programmingLanguages[word]; ok {
			entities = append(entities, word)
		}
	}
	entities = append(entities, yearPattern.FindAllString(normalized, -1)...)
	entities = append(entities, versionPattern.FindAllString(normalized, -1)...)
	return entities
}

var (
	questionPattern        = regexp.MustCompile(`^(what|why|how|when|where|who|is|are|can|does|do)\b|\?$`)
	tutorialPattern        = regexp.MustCompile(`\b(tutorial|guide|howto|how-to|walkthrough|getting started)\b`)
	documentationPattern   = regexp.MustCompile(`\b(docs?|documentation|reference|api)\b`)
	troubleshootingPattern = regexp.MustCompile(`\b(error|exception|fix|bug|issue|fails?|failing|crash|troubleshoot)\b`)
)

// Intent is the classified purpose of a search query (spec §4.13 step 3
// "classify intent").
type Intent string

const (
	IntentQuestion        Intent = "question"
	IntentTutorial        Intent = "tutorial"
	IntentDocumentation   Intent = "documentation"
	IntentTroubleshooting Intent = "troubleshooting"
	IntentGeneral         Intent = "general"
)

// classifyIntent buckets a normalized query by regex over its text.
// ClassifyIntent below is the exported entry point for callers (e.g.
// analytics) that want the classification independent of running a
// full search.
func classifyIntent(normalized string) Intent {
	switch {
	case troubleshootingPattern.MatchString(normalized):
		return IntentTroubleshooting
	case questionPattern.MatchString(normalized):
		return IntentQuestion
	case tutorialPattern.MatchString(normalized):
		return IntentTutorial
	case documentationPattern.MatchString(normalized):
		return IntentDocumentation
	default:
		return IntentGeneral
	}
}

// ClassifyIntent classifies a raw (not yet normalized) query string.
func ClassifyIntent(rawQuery string) Intent {
	return classifyIntent(normalizeQuery(rawQuery))
}

// contentBoostFor raises the body-content field's weight for
// troubleshooting queries, where the matching text (a stack trace, an
// error message) lives in the body rather than the title.
func contentBoostFor(intent Intent) float64 {
	if intent == IntentTroubleshooting {
		return contentBoost * 2
	}
	return contentBoost
}

// diversify caps same-domain results within the top diversifyTopN hits
// at maxSameDomain, demoting the overflow to the end of the slice
// rather than dropping it (spec §4.13 step 5). Falls back to the spec's
// fixed defaults (cap 3 within top 10) when the Service was not
// configured with its own bounds.
func (s *Service) diversify(hits []store.SearchHit) []store.SearchHit {
	maxSameDomain := s.maxSameDomain
	if maxSameDomain <= 0 {
		maxSameDomain = defaultMaxSameDomain
	}
	diversifyTopN := s.diversifyTopN
	if diversifyTopN <= 0 {
		diversifyTopN = defaultDiversifyTopN
	}
	if len(hits) <= diversifyTopN {
		return hits
	}

	window := hits[:diversifyTopN]
	rest := hits[diversifyTopN:]

	domainCount := make(map[string]int)
	kept := make([]store.SearchHit, 0, len(window))
	overflow := make([]store.SearchHit, 0)
	for _, h := range window {
		domainCount[h.Document.Domain]++
		if domainCount[h.Document.Domain] <= maxSameDomain {
			kept = append(kept, h)
		} else {
			overflow = append(overflow, h)
		}
	}

	result := make([]store.SearchHit, 0, len(hits))
	result = append(result, kept...)
	result = append(result, overflow...)
	result = append(result, rest...)
	return result
}

// sortHits reorders relevance-scored hits for date or pagerank sort
// modes (spec.md:151 "sort=<relevance|date|pagerank>"); relevance
// leaves the index's own ranking untouched.
func sortHits(hits []store.SearchHit, sort SortMode) []store.SearchHit {
	switch sort {
	case SortDate:
		sorted := append([]store.SearchHit(nil), hits...)
		sortSliceStable(sorted, func(i, j int) bool {
			return sorted[i].Document.LastCrawled.After(sorted[j].Document.LastCrawled)
		})
		return sorted
	case SortPageRank:
		sorted := append([]store.SearchHit(nil), hits...)
		sortSliceStable(sorted, func(i, j int) bool {
			return sorted[i].Document.PageRank > sorted[j].Document.PageRank
		})
		return sorted
	default:
		return hits
	}
}

// sortSliceStable is a tiny insertion sort: result sets here are
// page-sized (<= maxPageSize), so an O(n^2) stable sort is simpler than
// pulling in sort.SliceStable's reflection-based comparator for a
// closure that already indexes the slice being sorted.
func sortSliceStable(hits []store.SearchHit, less func(i, j int) bool) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

func (s *Service) cacheKey(normalizedQuery string, page, size int, sort SortMode) string {
	sum := sha256.Sum256([]byte(normalizedQuery))
	return "query:cache:" + hex.EncodeToString(sum[:]) + ":" + strconv.Itoa(page) + ":" + strconv.Itoa(size) + ":" + string(sort)
}

func (s *Service) lookupCache(ctx context.Context, key string) (Result, bool, error) {
	if s.cache == nil {
		return Result{}, false, nil
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return Result{}, false, err
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{}, false, nil
	}
	return result, true, nil
}

func (s *Service) storeCache(ctx context.Context, key string, result Result) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, raw, s.resultCacheTTL)
}

// normalizeQuery lowercases, collapses whitespace, and caps length at
// maxQueryLength (spec §4.13 step 1).
func normalizeQuery(raw string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if len(normalized) > maxQueryLength {
		normalized = normalized[:maxQueryLength]
	}
	return normalized
}

// clampPageSize applies the default and bounds a caller-requested size
// (spec §4.13 step 6 "paginate").
func clampPageSize(size int) int {
	if size <= 0 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}
