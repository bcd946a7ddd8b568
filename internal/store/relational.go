package store

import (
	"context"

	"github.com/crawlgraph/crawlgraph/internal/model"
)

// Relational is the shared relational-store contract covering the four
// tables of spec §6 "Persisted state layout": crawl_urls, page_links,
// page_rank, and domain_metadata.
type Relational interface {
	// UpsertURL inserts a URL record, or updates it if urlHash already
	// exists. Exactly one record per urlHash (spec §3 invariant).
	UpsertURL(ctx context.Context, rec model.URLRecord) error
	GetURL(ctx context.Context, urlHash string) (model.URLRecord, bool, error)
	// CompareAndSetStatus updates a record's status only if its current
	// status equals expected, implementing the compare-and-set guard of
	// spec §5.
	CompareAndSetStatus(ctx context.Context, urlHash string, expected, next model.URLStatus) (bool, error)
	// ListByStatus returns records whose status matches, for the hourly
	// retry scan and the reaper.
	ListByStatus(ctx context.Context, status model.URLStatus) ([]model.URLRecord, error)

	InsertEdge(ctx context.Context, edge model.EdgeRecord) error
	// AllEdges returns every edge, used by the PageRank job to build the
	// in-memory link graph.
	AllEdges(ctx context.Context) ([]model.EdgeRecord, error)

	UpsertDomain(ctx context.Context, rec model.DomainRecord) error
	GetDomain(ctx context.Context, domain string) (model.DomainRecord, bool, error)
	IncrDomainCounters(ctx context.Context, domain string, attempts, successes, failures int64) error
	// IncrEmptyBodyCount increments a domain's empty-body counter (spec
	// §7 "Parse failures ... an 'empty-body' counter is incremented").
	IncrEmptyBodyCount(ctx context.Context, domain string) error

	WriteRanks(ctx context.Context, ranks []model.RankRecord) error
	GetRank(ctx context.Context, url string) (model.RankRecord, bool, error)
}
