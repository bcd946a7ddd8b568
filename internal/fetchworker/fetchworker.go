// Package fetchworker implements the Fetch Worker (spec C8): consumes
// crawl-request jobs, checks robots, performs the bounded HTTP GET,
// extracts title/text/links, and emits an index job plus a
// link-discovery batch.
package fetchworker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crawlgraph/crawlgraph/internal/bus"
	"github.com/crawlgraph/crawlgraph/internal/extractor"
	"github.com/crawlgraph/crawlgraph/internal/model"
	"github.com/crawlgraph/crawlgraph/internal/politeness"
	"github.com/crawlgraph/crawlgraph/internal/robots"
	"github.com/crawlgraph/crawlgraph/internal/store"
	"github.com/crawlgraph/crawlgraph/pkg/urlutil"
)

// terminalRetryCount marks a URL record as ineligible for the scheduler's
// hourly retry scan (spec §4.7 "blocked/non-retryable failures do not
// re-enter PENDING").
const terminalRetryCount = 1 << 30

// Worker fetches, parses, and dispatches one crawl job at a time.
type Worker struct {
	relational   store.Relational
	robotsCache  *robots.Cache
	governor     *politeness.Governor
	publisher    bus.Publisher
	extractor    extractor.DomExtractor
	httpClient   *http.Client
	userAgent    string
	maxRedirects int
	maxBodyBytes int64
	log          *logrus.Entry
}

func New(
	relational store.Relational,
	robotsCache *robots.Cache,
	governor *politeness.Governor,
	publisher bus.Publisher,
	domExtractor extractor.DomExtractor,
	userAgent string,
	fetchTimeout time.Duration,
	maxRedirects int,
	maxBodyBytes int64,
	log *logrus.Entry,
) *Worker {
	client := &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return &Worker{
		relational:   relational,
		robotsCache:  robotsCache,
		governor:     governor,
		publisher:    publisher,
		extractor:    domExtractor,
		httpClient:   client,
		userAgent:    userAgent,
		maxRedirects: maxRedirects,
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

// HandleCrawlRequest processes one urlHash from the crawl-requests topic
// (spec §4.8 steps 1-5).
func (w *Worker) HandleCrawlRequest(ctx context.Context, urlHash string) error {
	rec, ok, err := w.relational.GetURL(ctx, urlHash)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	parsed, err := url.Parse(rec.NormalizedURL)
	if err != nil {
		return w.finalize(ctx, rec, model.StatusFailed, false, err.Error())
	}

	// 1. Robots check.
	allowed, err := w.robotsCache.IsAllowed(ctx, parsed.Scheme, rec.Domain, parsed.Path)
	if err != nil {
		return w.finalize(ctx, rec, model.StatusFailed, true, err.Error())
	}
	if !allowed {
		return w.finalize(ctx, rec, model.StatusBlocked, false, "disallowed by robots.txt")
	}

	// 2. Fetch.
	body, status, err := w.fetch(ctx, rec.NormalizedURL)
	if err != nil {
		w.governor.RecordResult(rec.Domain, false, time.Now())
		return w.finalize(ctx, rec, model.StatusFailed, true, err.Error())
	}
	if status < 200 || status >= 300 {
		retryable := status == http.StatusTooManyRequests || status >= 500
		w.governor.RecordResult(rec.Domain, false, time.Now())
		return w.finalize(ctx, rec, model.StatusFailed, retryable, "http status "+strconv.Itoa(status))
	}
	w.governor.RecordResult(rec.Domain, true, time.Now())

	// 3. Parse. A parse failure (malformed HTML yielding no text) is
	// terminal but not an error: the URL is marked COMPLETED with empty
	// content so it is never reprocessed, and an empty-body counter is
	// incremented instead of publishing to the DLQ (spec §7).
	result, classifiedErr := w.extractor.Extract(*parsed, body)
	if classifiedErr != nil {
		if err := w.relational.IncrEmptyBodyCount(ctx, rec.Domain); err != nil {
			w.log.WithError(err).WithField("url", rec.NormalizedURL).Warn("fetchworker: failed to increment empty-body counter")
		}
		return w.finalize(ctx, rec, model.StatusCompleted, false, classifiedErr.Error())
	}

	title := extractor.ExtractTitle(result.DocumentRoot)
	text := extractor.ExtractText(result.ContentNode)
	if len(text) > model.MaxBodyBytes {
		text = text[:model.MaxBodyBytes]
	}
	links := filterLinks(extractor.ExtractLinks(parsed, result.ContentNode))

	// 4. Emit.
	indexJob := model.IndexJob{
		URL:           rec.NormalizedURL,
		Title:         title,
		Body:          text,
		OutboundLinks: links,
		Domain:        rec.Domain,
		CrawlDepth:    rec.Depth,
		LastCrawled:   time.Now(),
	}
	if err := w.publishIndexJob(ctx, indexJob); err != nil {
		w.log.WithError(err).Warn("fetchworker: failed to publish index job")
	}

	discovered := make([]model.DiscoveredLink, 0, len(links))
	for _, link := range links {
		discovered = append(discovered, model.DiscoveredLink{RawURL: link})
	}
	batch := model.LinkDiscoveryBatch{
		SourceURL:   rec.NormalizedURL,
		SourceHash:  rec.URLHash,
		SourceDepth: rec.Depth,
		Links:       discovered,
	}
	if err := w.publishLinkDiscoveryBatch(ctx, rec.Domain, batch); err != nil {
		w.log.WithError(err).Warn("fetchworker: failed to publish link-discovery batch")
	}

	// 5. Finalize.
	return w.finalize(ctx, rec, model.StatusCompleted, false, "")
}

func (w *Worker) fetch(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBodyBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// filterLinks drops non-http(s) schemes and media-extension targets
// (spec §4.8 step 3).
func filterLinks(raw []string) []string {
	var links []string
	for _, link := range raw {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if urlutil.HasMediaExtension(link) {
			continue
		}
		links = append(links, link)
	}
	return links
}

func (w *Worker) finalize(ctx context.Context, rec model.URLRecord, next model.URLStatus, retryEligible bool, errString string) error {
	transitioned, err := w.relational.CompareAndSetStatus(ctx, rec.URLHash, model.StatusInProgress, next)
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}

	rec.Status = next
	rec.LastAttemptAt = time.Now()
	rec.ErrorString = errString

	switch next {
	case model.StatusCompleted:
		rec.LastSuccessAt = time.Now()
		rec.RetryCount = 0
	case model.StatusFailed:
		if retryEligible {
			rec.RetryCount++
		} else {
			rec.RetryCount = terminalRetryCount
		}
	}

	if err := w.relational.UpsertURL(ctx, rec); err != nil {
		return err
	}

	if next == model.StatusFailed && !retryEligible {
		dlqErr := bus.PublishDLQ(ctx, w.publisher, bus.DLQEntry{
			URL:       rec.NormalizedURL,
			Domain:    rec.Domain,
			Error:     errString,
			Timestamp: rec.LastAttemptAt,
		})
		if dlqErr != nil {
			w.log.WithError(dlqErr).WithField("url", rec.NormalizedURL).Warn("failed to publish dead-letter entry")
		}
	}

	var successes, failures int64
	switch next {
	case model.StatusCompleted:
		successes = 1
	case model.StatusFailed:
		failures = 1
	}
	return w.relational.IncrDomainCounters(ctx, rec.Domain, 1, successes, failures)
}

func (w *Worker) publishIndexJob(ctx context.Context, job model.IndexJob) error {
	raw, err := EncodeIndexJob(job)
	if err != nil {
		return err
	}
	return w.publisher.Publish(ctx, bus.TopicIndexRequests, bus.Message{Key: job.URL, Value: raw})
}

func (w *Worker) publishLinkDiscoveryBatch(ctx context.Context, domain string, batch model.LinkDiscoveryBatch) error {
	raw, err := EncodeLinkDiscoveryBatch(batch)
	if err != nil {
		return err
	}
	return w.publisher.Publish(ctx, bus.TopicLinkDiscoveries, bus.Message{Key: domain, Value: raw})
}

// EncodeIndexJob marshals an IndexJob for publication on TopicIndexRequests.
func EncodeIndexJob(job model.IndexJob) ([]byte, error) {
	return json.Marshal(job)
}

// DecodeIndexJob unmarshals a TopicIndexRequests message value.
func DecodeIndexJob(raw []byte) (model.IndexJob, error) {
	var job model.IndexJob
	err := json.Unmarshal(raw, &job)
	return job, err
}

// EncodeLinkDiscoveryBatch marshals a LinkDiscoveryBatch for publication on
// TopicLinkDiscoveries.
func EncodeLinkDiscoveryBatch(batch model.LinkDiscoveryBatch) ([]byte, error) {
	return json.Marshal(batch)
}

// DecodeLinkDiscoveryBatch unmarshals a TopicLinkDiscoveries message value.
func DecodeLinkDiscoveryBatch(raw []byte) (model.LinkDiscoveryBatch, error) {
	var batch model.LinkDiscoveryBatch
	err := json.Unmarshal(raw, &batch)
	return batch, err
}
