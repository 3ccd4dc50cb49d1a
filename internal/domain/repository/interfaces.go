package repository

import (
	"context"

	"PricePulse/internal/domain/models"
)

// PriceStore holds raw price observations.
type PriceStore interface {
	Init(ctx context.Context) error // ensure tables, seed data
	// LoadProduct returns every observation of a product ordered by date, then retailer.
	LoadProduct(ctx context.Context, productID string) ([]models.PricePoint, error)
	ProductIDs(ctx context.Context) ([]string, error)
	// Snapshot returns observations within lookbackDays of the latest date (0 = all).
	Snapshot(ctx context.Context, lookbackDays int) ([]models.PricePoint, error)
	Append(ctx context.Context, p models.PricePoint) error
	Health(ctx context.Context) error
	Close() error
}

// ActivityStore keeps per-identity view counters and tracked products.
type ActivityStore interface {
	RecordView(ctx context.Context, id models.Identity, productID string) error
	Track(ctx context.Context, id models.Identity, productID string) error
	Untrack(ctx context.Context, id models.Identity, productID string) error
	Snapshot(ctx context.Context, id models.Identity) (models.ActivitySnapshot, error)
}

// Catalog exposes static product metadata.
type Catalog interface {
	Products() []models.CatalogProduct
	Product(id string) (models.CatalogProduct, bool)
}

// AlertPublisher fans deal alerts out to downstream consumers.
type AlertPublisher interface {
	PublishDeal(ctx context.Context, a *models.DealAlert) error
	Close() error
}

type Metrics interface {
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordLastPrice(productID, retailer string, price float64)
	RecordDeal(productID, source string)
	RecordCache(name string, hit bool)
}
