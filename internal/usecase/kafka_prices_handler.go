package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	pkgkafka "PricePulse/pkg/kafka"
	"PricePulse/pkg/util"
)

// Processor is the downstream a decoded observation is handed to.
type Processor interface {
	Process(ctx context.Context, p *models.PricePoint) error
}

// KafkaPricesHandler consumes price observations from Kafka.
type KafkaPricesHandler struct {
	topic   string
	proc    Processor
	metrics domrepo.Metrics
}

func NewKafkaPricesHandler(topic string, proc Processor, metrics domrepo.Metrics) *KafkaPricesHandler {
	return &KafkaPricesHandler{topic: topic, proc: proc, metrics: metrics}
}

func (h *KafkaPricesHandler) Topic() string { return h.topic }

// incoming message schema: {product_id, retailer, date, price}; date is
// YYYY-MM-DD, RFC3339 or unix seconds, as a string or a number.
type priceMessage struct {
	ProductID string      `json:"product_id"`
	Retailer  string      `json:"retailer"`
	Date      interface{} `json:"date"`
	Price     float64     `json:"price"`
}

func (h *KafkaPricesHandler) Handle(ctx context.Context, b []byte) error {
	var m priceMessage
	if err := pkgkafka.Decode(b, &m); err != nil {
		h.recordError("consumer_unmarshal")
		return fmt.Errorf("%w: %w", pkgkafka.ErrPermanent, err)
	}
	p, err := m.point()
	if err != nil {
		h.recordError("consumer_validate")
		return fmt.Errorf("%w: %w", pkgkafka.ErrPermanent, err)
	}

	start := time.Now()
	if err := h.proc.Process(ctx, &p); err != nil {
		if errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrProductNotFound) {
			return fmt.Errorf("%w: %w", pkgkafka.ErrPermanent, err)
		}
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordLatency("consumer_process", time.Since(start).Seconds())
	}
	return nil
}

func (m priceMessage) point() (models.PricePoint, error) {
	var raw string
	switch v := m.Date.(type) {
	case string:
		raw = strings.TrimSpace(v)
	case float64:
		if v > 1e11 { // ms
			v /= 1000
		}
		raw = fmt.Sprintf("%.0f", v)
	}
	d, ok := util.ParseDate(raw)
	if !ok {
		return models.PricePoint{}, fmt.Errorf("%w: bad date %v", models.ErrInvalidInput, m.Date)
	}
	p := models.PricePoint{ProductID: strings.TrimSpace(m.ProductID), Retailer: strings.TrimSpace(m.Retailer), Date: d, Price: m.Price}
	return p, ValidateObservation(p)
}

func (h *KafkaPricesHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaPricesHandler)(nil)
