package repository

import (
	"context"
	"errors"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
	domrepo "github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/repository"
	pkgkafka "github.com/algorithmical-ai/automated-day-trading-sub001/pkg/kafka"
)

// BatchPublisher is the slice of *kafka.Producer used for audit records.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaAuditPublisher emits audit records as JSON, keyed by ticker so a
// ticker's history stays ordered within one partition.
type KafkaAuditPublisher struct {
	producer        BatchPublisher
	rejectionsTopic string
	decisionsTopic  string
}

var _ domrepo.AuditSink = (*KafkaAuditPublisher)(nil)

func NewKafkaAuditPublisher(producer BatchPublisher, rejectionsTopic, decisionsTopic string) *KafkaAuditPublisher {
	return &KafkaAuditPublisher{producer: producer, rejectionsTopic: rejectionsTopic, decisionsTopic: decisionsTopic}
}

func (p *KafkaAuditPublisher) Init(context.Context) error {
	if p.rejectionsTopic == "" || p.decisionsTopic == "" {
		return errors.New("kafka audit topics are required")
	}
	return nil
}

func (p *KafkaAuditPublisher) StoreRejections(ctx context.Context, records []models.RejectionRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(records))
	for i, r := range records {
		msgs[i] = pkgkafka.Message{Key: []byte(r.Ticker), Value: r}
	}
	return p.producer.PublishBatch(ctx, p.rejectionsTopic, msgs)
}

func (p *KafkaAuditPublisher) StoreDecisions(ctx context.Context, decisions []models.BanditDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(decisions))
	for i, d := range decisions {
		msgs[i] = pkgkafka.Message{Key: []byte(d.Ticker), Value: d}
	}
	return p.producer.PublishBatch(ctx, p.decisionsTopic, msgs)
}

// Health is a no-op. The writer dials lazily and failures surface on publish.
func (p *KafkaAuditPublisher) Health(context.Context) error { return nil }

// Close leaves the producer open; it is shared with the error log collector.
func (p *KafkaAuditPublisher) Close() error { return nil }
