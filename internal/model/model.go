// Package model holds the shared data-model types that flow between the
// frontier, scheduler, fetch/link workers, indexer, PageRank job, and query
// service. Types here are plain data: no behavior, no package dependencies
// beyond the standard library.
package model

import "time"

// URLStatus is a URL record's position in its status DAG.
type URLStatus string

const (
	StatusPending    URLStatus = "PENDING"
	StatusInProgress URLStatus = "IN_PROGRESS"
	StatusCompleted  URLStatus = "COMPLETED"
	StatusFailed     URLStatus = "FAILED"
	StatusBlocked    URLStatus = "BLOCKED"
)

// URLRecord is keyed by urlHash = sha256(normalized URL). Exactly one record
// exists per urlHash.
type URLRecord struct {
	URLHash         string
	RawURL          string
	NormalizedURL   string
	Domain          string
	Depth           int
	Priority        float64
	Status          URLStatus
	RetryCount      int
	LastAttemptAt   time.Time
	NextEligibleAt  time.Time
	SourceURLHash   string
	ErrorString     string
	StartedAt       time.Time
	LastSuccessAt   time.Time
}

// EdgeRecord is an immutable (source, target) link-graph edge. Multi-edges
// collapse by (SourceHash, TargetHash).
type EdgeRecord struct {
	SourceHash string
	TargetHash string
	AnchorText string
	FirstSeen  time.Time
}

// DomainRecord tracks per-domain politeness configuration and aggregate
// counters. Created on first sighting, never destroyed.
type DomainRecord struct {
	Domain          string
	CrawlDelayMs    int64
	ConcurrencyCap  int
	Blocked         bool
	Attempts        int64
	Successes       int64
	Failures        int64
	// EmptyBodyCount counts terminal parse failures that were completed
	// with empty content rather than retried (spec §7 "empty-body"
	// counter).
	EmptyBodyCount  int64
	LastCrawledAt   time.Time
}

// Document is keyed by sha256(canonical URL) and is the unit written to the
// inverted index.
type Document struct {
	DocID             string
	URL               string
	Title             string
	Snippet           string
	Body              string
	Tokens            []string
	OutboundLinks     []string
	Domain            string
	CrawlDepth        int
	LastCrawled       time.Time
	LastIndexed       time.Time
	ContentLength     int
	SimHash           uint64
	PageRank          float64
	InboundLinkCount  int
}

// MaxTokens bounds the distinct token set per document (spec §3 Document
// invariant).
const MaxTokens = 10000

// MaxSnippetLength is the word-boundary-truncated snippet cap.
const MaxSnippetLength = 200

// MaxBodyBytes is the post-cleanup body cap.
const MaxBodyBytes = 100 * 1024

// RankRecord is a PageRank job's per-URL output. Owned exclusively by the
// PageRank job; no concurrent writers.
type RankRecord struct {
	URL            string
	Score          float64
	InboundCount   int
	OutboundCount  int
	LastCalculated time.Time
}

// FingerprintRecord is a SimHash fingerprint written at index time and read
// for duplicate lookup.
type FingerprintRecord struct {
	URL       string
	SimHash   uint64
	WrittenAt time.Time
}

// FrontierEntry is a (URL, score) pair in the frontier's sorted set.
type FrontierEntry struct {
	URL        string
	URLHash    string
	Score      float64
	Domain     string
	Depth      int
	AnchorText string
}

// RobotsRule is a single (pattern, allow) directive in original-appearance
// order within the most-specific matching user-agent group.
type RobotsRule struct {
	Pattern string
	Allow   bool
}

// RobotsCacheEntry is the parsed, cached robots.txt state for one domain.
type RobotsCacheEntry struct {
	Domain      string
	Rules       []RobotsRule
	CrawlDelay  time.Duration
	SitemapURLs []string
	FetchedAt   time.Time
	Exists      bool
}

// RobotsCacheTTL is the cache lifetime for a parsed robots.txt entry.
const RobotsCacheTTL = 24 * time.Hour

// IndexJob is the bus payload the Fetch Worker emits for the Indexer
// (spec §4.8 step 4 "one index job keyed by URL").
type IndexJob struct {
	URL           string
	Title         string
	Body          string
	OutboundLinks []string
	Domain        string
	CrawlDepth    int
	LastCrawled   time.Time
}

// DiscoveredLink is one outbound link found on a fetched page, carried
// in a LinkDiscoveryBatch.
type DiscoveredLink struct {
	RawURL     string
	AnchorText string
}

// LinkDiscoveryBatch is the bus payload the Fetch Worker emits for the
// Link-Discovery Worker (spec §4.8 step 4 "one link-discovery batch
// keyed by the source domain").
type LinkDiscoveryBatch struct {
	SourceURL   string
	SourceHash  string
	SourceDepth int
	Links       []DiscoveredLink
}
