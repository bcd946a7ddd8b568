// Package bus defines the message-bus contract external collaborator of
// spec §1: at-least-once delivery, partitioned topics with key-based
// routing, per-partition ordering, consumer groups, offset commits, and a
// dead-letter facility. Production traffic rides github.com/segmentio/kafka-go;
// tests and `crawlgraph serve --dev` use an in-memory bus satisfying the
// same interface.
package bus

import "context"

// Topic names match spec §6 "Bus topics".
const (
	TopicCrawlRequests   = "crawl-requests"
	TopicIndexRequests   = "index-requests"
	TopicLinkDiscoveries = "link-discoveries"
	TopicDLQ             = "crawl-dlq"
)

// Message is one bus record: Key drives partition routing (per spec,
// domain for crawl-requests/link-discoveries, url for index-requests).
type Message struct {
	Key   string
	Value []byte
}

// Publisher publishes keyed messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

// Handler processes one consumed message. Returning an error leaves the
// message unacknowledged, triggering bus-level redelivery (spec §7, store
// errors retried in-band, then left to bus redelivery on final failure).
type Handler func(ctx context.Context, msg Message) error

// Consumer drives a handler over a topic's partitions within a consumer
// group, committing offsets only after the handler returns successfully
// (explicit acknowledgement after persistence, spec §4.8 step 5).
type Consumer interface {
	// Run blocks, dispatching messages to handler until ctx is cancelled.
	Run(ctx context.Context, topic string, groupID string, handler Handler) error
	Close() error
}
