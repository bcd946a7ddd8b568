package bus

import (
	"context"
	"encoding/json"
	"time"
)

// DLQEntry is the payload shape for crawl-dlq messages (spec §6).
type DLQEntry struct {
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishDLQ emits a terminal-failure record to the dead-letter topic.
func PublishDLQ(ctx context.Context, pub Publisher, entry DLQEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, TopicDLQ, Message{Key: entry.Domain, Value: payload})
}
