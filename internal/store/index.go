package store

import (
	"context"

	"github.com/crawlgraph/crawlgraph/internal/model"
)

// SearchHit is one scored result from the inverted index.
type SearchHit struct {
	DocID    string
	Score    float64
	Document model.Document
}

// SearchRequest composes the query pipeline's field-weighted disjunctive
// query (spec §4.13 step 4).
type SearchRequest struct {
	// MustTerms are ANDed keyword matches (entity-driven must-matches).
	MustTerms []string
	// ShouldTerms are the main query's terms, boosted per TitleBoost etc.
	ShouldTerms []string
	// SynonymTerms are secondary disjuncts, boosted at half weight.
	SynonymTerms []string
	TitleBoost   float64
	TokenBoost   float64
	ContentBoost float64
	From, Size   int
}

// Index is the inverted-index store contract (spec §1 "out of scope"
// external collaborator, fulfilled here with blevesearch/bleve).
type Index interface {
	// Index writes or overwrites the document keyed by DocID.
	Index(ctx context.Context, doc model.Document) error
	Get(ctx context.Context, docID string) (model.Document, bool, error)
	Delete(ctx context.Context, docID string) error
	Search(ctx context.Context, req SearchRequest) (hits []SearchHit, total int, err error)
	// SuggestTitlePrefix returns up to limit distinct title-prefix matches.
	SuggestTitlePrefix(ctx context.Context, prefix string, limit int) ([]string, error)
	// DocumentCount reports the total indexed document count (idempotent
	// indexing property: re-indexing the same URL must not change this).
	DocumentCount(ctx context.Context) (int, error)
}
