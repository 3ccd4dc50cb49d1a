package repository

import (
    "context"
    "errors"

    "github.com/segmentio/kafka-go"

    "PricePulse/internal/domain/models"
    domrepo "PricePulse/internal/domain/repository"
    pkgkafka "PricePulse/pkg/kafka"
)

var (
    _ domrepo.AlertPublisher = (*KafkaAlertPublisher)(nil)
    _ domrepo.AlertPublisher = FanoutPublisher(nil)
)

// KafkaAlertPublisher publishes deal alerts as JSON keyed by product id.
type KafkaAlertPublisher struct {
    producer *pkgkafka.Producer
    topic    string
}

func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) *KafkaAlertPublisher {
    return &KafkaAlertPublisher{producer: producer, topic: topic}
}

func (p *KafkaAlertPublisher) PublishDeal(ctx context.Context, a *models.DealAlert) error {
    return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
        Key:     []byte(a.ProductID),
        Value:   a,
        Headers: []kafka.Header{{Key: "trace_id", Value: []byte(a.ID)}, {Key: "source", Value: []byte(a.Source)}},
    }})
}

func (p *KafkaAlertPublisher) Close() error {
    if p.producer != nil {
        return p.producer.Close()
    }
    return nil
}

// FanoutPublisher delivers each alert to every publisher and joins their errors.
type FanoutPublisher []domrepo.AlertPublisher

func (f FanoutPublisher) PublishDeal(ctx context.Context, a *models.DealAlert) error {
    var errs []error
    for _, p := range f {
        if p == nil {
            continue
        }
        if err := p.PublishDeal(ctx, a); err != nil {
            errs = append(errs, err)
        }
    }
    return errors.Join(errs...)
}

func (f FanoutPublisher) Close() error {
    var errs []error
    for _, p := range f {
        if p != nil {
            errs = append(errs, p.Close())
        }
    }
    return errors.Join(errs...)
}
