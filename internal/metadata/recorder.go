package metadata

import (
	"time"

	"github.com/sirupsen/logrus"
)

// MetadataSink is the observational write-path every pipeline component
// calls: fetch events, error records, and artifact records. It never
// influences control flow (see ErrorCause's doc comment in data.go).
type MetadataSink interface {
	RecordFetch(event FetchEvent)
	RecordError(record ErrorRecord)
	RecordArtifact(record ArtifactRecord)
}

// CrawlFinalizer is called exactly once, after crawl termination, to
// record a terminal summary. It must be constructed without reading
// metadata and must not influence scheduling, retries, or termination.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(stats crawlStats)
}

// Recorder is a logrus-backed MetadataSink/CrawlFinalizer. Every record
// becomes one structured log line; nothing here is read back by any
// caller, consistent with the observational-only contract above.
type Recorder struct {
	log *logrus.Entry
}

// NewRecorder builds a Recorder that logs through log, or through the
// logrus standard logger if log is nil.
func NewRecorder(log *logrus.Entry) *Recorder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Recorder{log: log}
}

func (r *Recorder) RecordFetch(event FetchEvent) {
	r.log.WithFields(logrus.Fields{
		"url":          event.fetchUrl,
		"http_status":  event.httpStatus,
		"duration_ms":  event.duration.Milliseconds(),
		"content_type": event.contentType,
		"retry_count":  event.retryCount,
		"crawl_depth":  event.crawlDepth,
	}).Info("fetch event")
}

func (r *Recorder) RecordError(record ErrorRecord) {
	fields := logrus.Fields{
		"package":     record.packageName,
		"action":      record.action,
		"cause":       causeString(record.cause),
		"error":       record.errorString,
		"observed_at": record.observedAt,
	}
	for _, attr := range record.attrs {
		fields[string(attr.Key)] = attr.Value
	}
	r.log.WithFields(fields).Warn("pipeline error")
}

func (r *Recorder) RecordArtifact(record ArtifactRecord) {
	r.log.WithField("paths", record.paths).Debug("artifact recorded")
}

func (r *Recorder) RecordFinalCrawlStats(stats crawlStats) {
	r.log.WithFields(logrus.Fields{
		"total_pages":  stats.totalPages,
		"total_errors": stats.totalErrors,
		"total_assets": stats.totalAssets,
		"duration_ms":  stats.durationMs,
	}).Info("crawl finished")
}

func causeString(c ErrorCause) string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// NewFetchEvent constructs a FetchEvent for RecordFetch.
func NewFetchEvent(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount, crawlDepth int) FetchEvent {
	return FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	}
}

// NewErrorRecord constructs an ErrorRecord for RecordError.
func NewErrorRecord(packageName, action string, cause ErrorCause, errorString string, attrs ...Attribute) ErrorRecord {
	return ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: errorString,
		observedAt:  time.Now(),
		attrs:       attrs,
	}
}

// NewArtifactRecord constructs an ArtifactRecord for RecordArtifact.
func NewArtifactRecord(paths string) ArtifactRecord {
	return ArtifactRecord{paths: paths}
}

// NewCrawlStats constructs a crawlStats summary for RecordFinalCrawlStats.
func NewCrawlStats(totalPages, totalErrors, totalAssets int, durationMs int64) crawlStats {
	return crawlStats{
		totalPages:  totalPages,
		totalErrors: totalErrors,
		totalAssets: totalAssets,
		durationMs:  durationMs,
	}
}
