package notify

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/vaultit/qvarn-go/jsonx"
)

// KafkaPublisher is the optional fire-and-forget AsyncPublisher side channel
// (spec §4.9 DOMAIN STACK addition): each created notification is also
// published to a kafka-go writer, strictly after the owning transaction has
// committed.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish implements AsyncPublisher.
func (p *KafkaPublisher) Publish(ctx context.Context, n Notification) error {
	data, err := jsonx.Marshal(map[string]interface{}{
		"id":                n.ID,
		"listener_id":       n.ListenerID,
		"resource_id":       n.ResourceID,
		"resource_revision": n.ResourceRevision,
		"resource_change":   string(n.ResourceChange),
		"timestamp":         n.Timestamp,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(n.ListenerID), Value: data})
}

// Close releases the underlying kafka-go writer's connections.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
