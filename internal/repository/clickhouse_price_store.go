package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	pkgch "PricePulse/pkg/clickhouse"
	applogger "PricePulse/pkg/logger"
)

var _ domrepo.PriceStore = (*CHPriceStore)(nil)

// CHPriceStore implements PriceStore on the price_observations table.
// Every query runs through a circuit breaker; an open breaker surfaces as ErrDatasetUnavailable.
type CHPriceStore struct {
	ch     *pkgch.Client
	db     *sql.DB
	table  string
	dbName string
	cb     *gobreaker.CircuitBreaker[any]
	seed   func() ([]models.PricePoint, error)
	l      *applogger.Logger
}

// BreakerSettings tunes the store's circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewCHPriceStore(ch *pkgch.Client, database string, bs BreakerSettings, seed func() ([]models.PricePoint, error)) *CHPriceStore {
	s := &CHPriceStore{
		ch:     ch,
		db:     ch.DB(),
		dbName: database,
		table:  database + ".price_observations",
		seed:   seed,
	}
	s.cb = newBreaker("clickhouse-prices", bs, func(from, to gobreaker.State) {
		if s.l != nil {
			s.l.Warn("clickhouse breaker state change",
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		}
	})
	return s
}

// SetLogger injects a structured logger.
func (s *CHPriceStore) SetLogger(l *applogger.Logger) { s.l = l }

func newBreaker(name string, bs BreakerSettings, onChange func(from, to gobreaker.State)) *gobreaker.CircuitBreaker[any] {
	if bs.FailureThreshold == 0 {
		bs.FailureThreshold = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.FailureThreshold
		},
		// a cancelled request says nothing about the database
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, models.ErrInvalidInput)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if onChange != nil {
				onChange(from, to)
			}
		},
	})
}

// guard runs fn through the breaker and maps breaker rejections and driver errors to ErrDatasetUnavailable.
func guard[T any](cb *gobreaker.CircuitBreaker[any], op string, fn func() (T, error)) (T, error) {
	var zero T
	v, err := cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, models.ErrInvalidInput) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %s: %v", models.ErrDatasetUnavailable, op, err)
	}
	out, _ := v.(T)
	return out, nil
}

func (s *CHPriceStore) Init(ctx context.Context) error {
	if err := s.ch.InitSchema(ctx, pkgch.PriceSchema(s.dbName)); err != nil {
		return fmt.Errorf("%w: %v", models.ErrDatasetUnavailable, err)
	}
	if s.seed == nil {
		return nil
	}
	var n uint64
	if err := s.db.QueryRowContext(ctx, "SELECT count() FROM "+s.table).Scan(&n); err != nil {
		return fmt.Errorf("%w: count observations: %v", models.ErrDatasetUnavailable, err)
	}
	if n > 0 {
		return nil
	}
	points, err := s.seed()
	if err != nil {
		return fmt.Errorf("seed price store: %w", err)
	}
	start := time.Now()
	if err := s.insertBatch(ctx, points); err != nil {
		return err
	}
	if s.l != nil {
		s.l.Info("clickhouse price store seeded",
			applogger.Int("rows", len(points)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *CHPriceStore) LoadProduct(ctx context.Context, productID string) ([]models.PricePoint, error) {
	q := fmt.Sprintf(`
        SELECT product_id, retailer, date, price
        FROM %s FINAL
        WHERE product_id = ?
        ORDER BY date ASC, retailer ASC
    `, s.table)
	return guard(s.cb, "load_product", func() ([]models.PricePoint, error) {
		return s.query(ctx, "load_product", q, productID)
	})
}

func (s *CHPriceStore) ProductIDs(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT product_id FROM %s ORDER BY product_id", s.table)
	return guard(s.cb, "product_ids", func() ([]string, error) {
		rows, err := s.db.QueryContext(ctx, q)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	})
}

func (s *CHPriceStore) Snapshot(ctx context.Context, lookbackDays int) ([]models.PricePoint, error) {
	where := ""
	if lookbackDays > 0 {
		where = fmt.Sprintf("WHERE date >= (SELECT max(date) FROM %s) - %d", s.table, lookbackDays)
	}
	q := fmt.Sprintf(`
        SELECT product_id, retailer, date, price
        FROM %s FINAL
        %s
        ORDER BY date ASC, retailer ASC, product_id ASC
    `, s.table, where)
	return guard(s.cb, "snapshot", func() ([]models.PricePoint, error) {
		return s.query(ctx, "snapshot", q)
	})
}

func (s *CHPriceStore) Append(ctx context.Context, p models.PricePoint) error {
	if p.ProductID == "" || p.Retailer == "" || p.Price <= 0 {
		return fmt.Errorf("%w: observation %+v", models.ErrInvalidInput, p)
	}
	_, err := guard(s.cb, "append", func() (struct{}, error) {
		return struct{}{}, s.insertBatch(ctx, []models.PricePoint{p})
	})
	return err
}

func (s *CHPriceStore) Health(ctx context.Context) error {
	_, err := guard(s.cb, "health", func() (struct{}, error) {
		return struct{}{}, s.ch.Health(ctx)
	})
	return err
}

// Close is a no-op; the client is owned by the caller.
func (s *CHPriceStore) Close() error { return nil }

func (s *CHPriceStore) query(ctx context.Context, op, q string, args ...any) ([]models.PricePoint, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse query error", applogger.String("op", op), applogger.Error(err))
		}
		return nil, err
	}
	defer rows.Close()

	out := make([]models.PricePoint, 0, 256)
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.ProductID, &p.Retailer, &p.Date, &p.Price); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse scan error", applogger.String("op", op), applogger.Error(err))
			}
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		p.Date = models.Day(p.Date)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse query ok",
			applogger.String("op", op),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// insertBatch writes multi-row VALUES inserts in chunks.
func (s *CHPriceStore) insertBatch(ctx context.Context, points []models.PricePoint) error {
	const chunkSize = 2000
	for start := 0; start < len(points); start += chunkSize {
		end := min(start+chunkSize, len(points))
		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*4)
		for _, p := range points[start:end] {
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, p.ProductID, p.Retailer, models.Day(p.Date), p.Price)
		}
		q := fmt.Sprintf("INSERT INTO %s (product_id, retailer, date, price) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert observations: %w", err)
		}
	}
	return nil
}
