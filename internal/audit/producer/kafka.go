// Package producer publishes analysis requests to Kafka so cmd/worker can run
// threat analysis out of process.
package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"membership-crm/core/internal/audit"
)

// KafkaProducer implements audit.Publisher using segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a producer writing analysis requests to topic.
// Returns nil (disabled) when brokers or topic are empty. Call Close when
// shutting down.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish serializes the request as JSON and writes it, keyed by IP so all
// requests for one source land on the same partition in order.
func (p *KafkaProducer) Publish(ctx context.Context, req audit.AnalysisRequest) error {
	if p == nil || p.writer == nil {
		return nil
	}
	value, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(req.IP),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
