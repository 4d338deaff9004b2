package repository

import (
	"context"

	"github.com/anshul202/derivative-api/internal/domain/models"
)

// SolarResource estimates expected solar generation for a site.
type SolarResource interface {
	MonthlyProfile(ctx context.Context, lat, lon float64) (*models.SolarProfile, error)
}

// MarketData supplies the current electricity spot price.
type MarketData interface {
	SpotPrice(ctx context.Context) (*models.SpotPrice, error)
}

// FXSource supplies currency conversion rates.
type FXSource interface {
	USDINR(ctx context.Context) (float64, error)
}

// PriceHistory reads historical electricity prices for calibration.
type PriceHistory interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Recent(ctx context.Context, limit int) ([]models.HistoryPoint, error)
	Append(ctx context.Context, points []models.HistoryPoint) error
	Health(ctx context.Context) error
	Close() error
}

// QuotePublisher emits computed quotes to downstream consumers.
type QuotePublisher interface {
	PublishQuote(ctx context.Context, q *models.QuoteEvent) error
	Close() error
}

type Metrics interface {
	RecordSimulation(status string, paths int)
	RecordProviderError(provider string)
	RecordQuote(contract, currency string, price float64)
	RecordLatency(op string, seconds float64)
}
