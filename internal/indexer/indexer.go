// Package indexer implements the Indexer (spec C11): consumes index
// jobs, tokenizes body text, checks the Content Deduplicator, and writes
// documents to the inverted index.
package indexer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/crawlgraph/crawlgraph/internal/dedup"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/hashutil"
	"github.com/crawlgraph/crawlgraph/pkg/tokenize"
)

// relationalRankSource is the narrow slice of store.Relational the Indexer
// needs to adopt scores published by the PageRank job (C12).
type relationalRankSource interface {
	GetRank(ctx context.Context, url string) (model.RankRecord, bool, error)
}

// maxBodyInputBytes bounds tokenizer input (spec §4.11 "≤50 KiB input").
const maxBodyInputBytes = 50 * 1024

// defaultPageRank is assigned to newly indexed documents until the next
// PageRank run (spec §4.11 "default 1.0 for new").
const defaultPageRank = 1.0

// Indexer builds and writes Document records.
type Indexer struct {
	index      store.Index
	dedup      *dedup.Deduplicator
	rankSource relationalRankSource
}

func New(index store.Index, deduplicator *dedup.Deduplicator, rankSource relationalRankSource) *Indexer {
	return &Indexer{index: index, dedup: deduplicator, rankSource: rankSource}
}

// HandleIndexJob processes one index job end to end (spec §4.11).
func (ix *Indexer) HandleIndexJob(ctx context.Context, job model.IndexJob) error {
	docID := hashutil.URLHash(job.URL)

	body := job.Body
	if len(body) > maxBodyInputBytes {
		body = body[:maxBodyInputBytes]
	}

	fp := dedup.ComputeSimHash(body)
	if dup, found, err := ix.dedup.FindDuplicate(ctx, fp, docID); err != nil {
		return err
	} else if found {
		existing, ok, err := ix.index.Get(ctx, dup.DocID)
		if err != nil {
			return err
		}
		if ok && !dedup.ShouldReplace(existing, model.Document{PageRank: defaultPageRank, LastCrawled: job.LastCrawled}) {
			// Existing copy wins; skip the write entirely (spec §4.10).
			return nil
		}
	}

	tokens := tokenize.Tokens(body, model.MaxTokens)
	snippet := buildSnippet(body, model.MaxSnippetLength)

	pageRank := defaultPageRank
	inboundCount := 0
	if prior, ok, err := ix.index.Get(ctx, docID); err == nil && ok {
		pageRank = prior.PageRank
		inboundCount = prior.InboundLinkCount
	}
	if ix.rankSource != nil {
		if rank, ok, err := ix.rankSource.GetRank(ctx, job.URL); err == nil && ok {
			pageRank = rank.Score
			inboundCount = rank.InboundCount
		}
	}

	doc := model.Document{
		DocID:            docID,
		URL:              job.URL,
		Title:            job.Title,
		Snippet:          snippet,
		Body:             body,
		Tokens:           tokens,
		OutboundLinks:    job.OutboundLinks,
		Domain:           job.Domain,
		CrawlDepth:       job.CrawlDepth,
		LastCrawled:      job.LastCrawled,
		LastIndexed:      time.Now(),
		ContentLength:    len(body),
		SimHash:          fp,
		PageRank:         pageRank,
		InboundLinkCount: inboundCount,
	}

	if err := ix.index.Index(ctx, doc); err != nil {
		return err
	}
	if fp != 0 {
		if err := ix.dedup.Record(ctx, docID, job.URL, fp, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// buildSnippet truncates cleaned body to maxLen at a word boundary,
// appending an ellipsis when truncated (spec §4.11).
func buildSnippet(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	truncated := body[:maxLen]
	if idx := strings.LastIndexByte(truncated, ' '); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}

// DecodeIndexJob unmarshals a bus message value into an IndexJob.
func DecodeIndexJob(raw []byte) (model.IndexJob, error) {
	var job model.IndexJob
	err := json.Unmarshal(raw, &job)
	return job, err
}

// EncodeIndexJob marshals an IndexJob for publication.
func EncodeIndexJob(job model.IndexJob) ([]byte, error) {
	return json.Marshal(job)
}
