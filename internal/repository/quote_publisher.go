package repository

import (
	"context"

	"github.com/anshul202/derivative-api/internal/domain/models"
	domrepo "github.com/anshul202/derivative-api/internal/domain/repository"
	pkgkafka "github.com/anshul202/derivative-api/pkg/kafka"
)

// KafkaQuotePublisher implements QuotePublisher for Kafka.
type KafkaQuotePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaQuotePublisher creates a Kafka quote publisher.
func NewKafkaQuotePublisher(producer *pkgkafka.Producer, topic string) domrepo.QuotePublisher {
	return &KafkaQuotePublisher{producer: producer, topic: topic}
}

// PublishQuote emits one quote keyed by contract symbol, so all quotes of a
// contract land on the same partition.
func (p *KafkaQuotePublisher) PublishQuote(ctx context.Context, q *models.QuoteEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(q.Contract), q)
}

func (p *KafkaQuotePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopQuotePublisher drops quotes. Used when Kafka is disabled.
type NoopQuotePublisher struct{}

func (NoopQuotePublisher) PublishQuote(context.Context, *models.QuoteEvent) error { return nil }
func (NoopQuotePublisher) Close() error                                           { return nil }
