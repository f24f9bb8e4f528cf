// Package redpanda streams gateway audit events to a Redpanda/Kafka
// topic. Auditing is strictly best-effort: publish failures are logged
// by callers and never fail the request being audited.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Producer implements domain.AuditPublisher over franz-go.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to the brokers and targets one audit topic.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(5),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	slog.Info("audit producer connected", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Producer{client: client, topic: topic}, nil
}

// Publish delivers one audit event, keyed by principal so one user's
// events stay ordered within a partition.
func (p *Producer) Publish(ctx context.Context, ev domain.AuditEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=redpanda.Publish: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.Principal),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("op=redpanda.Publish: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close() error {
	p.client.Close()
	return nil
}
