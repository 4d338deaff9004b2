package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/anshul202/derivative-api/internal/domain/models"
	domrepo "github.com/anshul202/derivative-api/internal/domain/repository"
	"github.com/anshul202/derivative-api/internal/engine"
	applogger "github.com/anshul202/derivative-api/pkg/logger"
	"github.com/anshul202/derivative-api/pkg/util"
)

// Defaults applied when a request leaves knobs unset.
var (
	DefaultConfidences = []float64{0.90, 0.95, 0.99}
)

// PricingConfig carries engine policy configured at startup.
type PricingConfig struct {
	PremiumRate     float64 // annual risk premium rate
	PriceFloor      float64 // non-negativity floor, 0 disables
	HistoryLookback int     // observations requested from storage
	MinObservations int     // below this, calibration falls back to defaults
}

// PricingService composes market data, solar weighting and the pricing
// engine into contract quotes.
type PricingService struct {
	orc       *engine.Orchestrator
	solar     domrepo.SolarResource
	market    domrepo.MarketData
	fx        domrepo.FXSource
	history   domrepo.PriceHistory // may be nil
	publisher domrepo.QuotePublisher
	metrics   domrepo.Metrics
	cfg       PricingConfig
	l         *applogger.Logger
}

// NewPricingService wires the pricing use case.
func NewPricingService(
	orc *engine.Orchestrator,
	solar domrepo.SolarResource,
	market domrepo.MarketData,
	fx domrepo.FXSource,
	history domrepo.PriceHistory,
	publisher domrepo.QuotePublisher,
	metrics domrepo.Metrics,
	cfg PricingConfig,
	l *applogger.Logger,
) *PricingService {
	if cfg.PremiumRate <= 0 {
		cfg.PremiumRate = 0.02
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = 365
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = 30
	}
	return &PricingService{
		orc: orc, solar: solar, market: market, fx: fx,
		history: history, publisher: publisher, metrics: metrics,
		cfg: cfg, l: l,
	}
}

// PriceFutures computes a quote for one delivery contract.
func (s *PricingService) PriceFutures(ctx context.Context, req *models.FuturesRequest) (*models.FuturesResponse, error) {
	start := time.Now()
	now := time.Now().UTC()

	contract, err := req.ResolveContract(now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidConfiguration, err)
	}

	usdinr, err := s.fx.USDINR(ctx)
	if err != nil {
		return nil, fmt.Errorf("fx rate: %w", err)
	}

	spot, err := s.market.SpotPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("spot price: %w", err)
	}
	s.recordSpot(spot)
	// The engine simulates in USD/MWh; the IEX feed quotes Rs/MWh.
	spotUSD := spot.Price / usdinr

	profile, err := s.solar.MonthlyProfile(ctx, req.Latitude, req.Longitude)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError("pvwatts")
		}
		return nil, fmt.Errorf("solar profile: %w", err)
	}
	weights, err := engine.NewGenerationWeightProfile(profile.Monthly)
	if err != nil {
		return nil, fmt.Errorf("generation weights: %w", err)
	}

	days := util.DaysUntil(now, contract.Year, contract.Month)
	horizon := req.HorizonSteps
	if horizon < days+1 {
		horizon = days + 1 // daily steps must reach into the delivery month
	}

	premium, err := engine.AnnualRateSchedule(s.cfg.PremiumRate, float64(days)+31)
	if err != nil {
		return nil, fmt.Errorf("premium schedule: %w", err)
	}

	currency, err := engine.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	fxRate := 1.0
	if currency == engine.CurrencyINR {
		fxRate = usdinr
	}

	confidences := req.Confidences
	if len(confidences) == 0 {
		confidences = DefaultConfidences
	}

	ereq := engine.Request{
		InitialPrice:   spotUSD,
		HorizonSteps:   horizon,
		PathCount:      req.Paths,
		Seed:           req.Seed,
		Seeded:         req.Seeded || req.Seed != 0,
		FloorEnabled:   s.cfg.PriceFloor > 0,
		Floor:          s.cfg.PriceFloor,
		Confidences:    confidences,
		Weights:        weights,
		Premium:        premium,
		DeliveryYear:   contract.Year,
		DeliveryMonth:  contract.Month,
		DaysToDelivery: days,
		FxRate:         fxRate,
		Currency:       currency,
		AsOf:           now,
		StepDuration:   24 * time.Hour,
	}
	if err := s.calibrate(ctx, &ereq, spotUSD, usdinr); err != nil {
		return nil, err
	}

	result, err := s.orc.ComputePrice(ctx, ereq)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordSimulation(status, req.Paths)
		s.metrics.RecordLatency("price_futures", time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	symbol := contract.Symbol()
	if s.metrics != nil {
		s.metrics.RecordQuote(symbol, string(currency), result.Quote.Price)
	}
	s.publish(&models.QuoteEvent{
		Contract:  symbol,
		Price:     result.Quote.Price,
		Currency:  string(result.Quote.Currency),
		SpotPrice: spot.Price,
		Paths:     result.Ensemble.PathCount(),
		Seed:      result.Meta.Seed,
		AsOf:      result.Quote.AsOf,
	})

	return buildResponse(symbol, spotUSD, days, result), nil
}

// PriceStrip prices one contract per upcoming delivery month from a single
// shared ensemble and reports portfolio revenue risk across the strip.
func (s *PricingService) PriceStrip(ctx context.Context, req *models.StripRequest) (*models.StripResponse, error) {
	start := time.Now()
	now := time.Now().UTC()

	usdinr, err := s.fx.USDINR(ctx)
	if err != nil {
		return nil, fmt.Errorf("fx rate: %w", err)
	}
	spot, err := s.market.SpotPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("spot price: %w", err)
	}
	s.recordSpot(spot)
	spotUSD := spot.Price / usdinr

	profile, err := s.solar.MonthlyProfile(ctx, req.Latitude, req.Longitude)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError("pvwatts")
		}
		return nil, fmt.Errorf("solar profile: %w", err)
	}
	weights, err := engine.NewGenerationWeightProfile(profile.Monthly)
	if err != nil {
		return nil, fmt.Errorf("generation weights: %w", err)
	}

	n := req.Months
	if n <= 0 || n > 12 {
		n = 12
	}

	// Consecutive delivery months starting with the next calendar month.
	deliveries := make([]engine.Delivery, n)
	days := make([]int, n)
	genMWh := make(map[time.Month]float64, n)
	y, m := now.Year(), now.Month()
	for i := 0; i < n; i++ {
		m++
		if m > time.December {
			m = time.January
			y++
		}
		deliveries[i] = engine.Delivery{Year: y, Month: m}
		days[i] = util.DaysUntil(now, y, m)
		kwh, ok := profile.Monthly[m]
		if !ok {
			return nil, fmt.Errorf("%w: no generation for %s", engine.ErrUnknownMonth, m)
		}
		genMWh[m] = kwh / 1000
	}
	last := n - 1
	horizon := days[last] + 27 // cover the final delivery month without crossing into the next

	premium, err := engine.AnnualRateSchedule(s.cfg.PremiumRate, float64(days[last])+31)
	if err != nil {
		return nil, fmt.Errorf("premium schedule: %w", err)
	}
	currency, err := engine.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	fxRate := 1.0
	if currency == engine.CurrencyINR {
		fxRate = usdinr
	}

	ereq := engine.Request{
		InitialPrice:   spotUSD,
		HorizonSteps:   horizon,
		PathCount:      req.Paths,
		Seed:           req.Seed,
		Seeded:         req.Seed != 0,
		FloorEnabled:   s.cfg.PriceFloor > 0,
		Floor:          s.cfg.PriceFloor,
		Confidences:    DefaultConfidences,
		Weights:        weights,
		Premium:        premium,
		DeliveryYear:   deliveries[last].Year,
		DeliveryMonth:  deliveries[last].Month,
		DaysToDelivery: days[last],
		FxRate:         fxRate,
		Currency:       currency,
		AsOf:           now,
		StepDuration:   24 * time.Hour,
	}
	if err := s.calibrate(ctx, &ereq, spotUSD, usdinr); err != nil {
		return nil, err
	}

	result, err := s.orc.ComputePrice(ctx, ereq)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordSimulation(status, req.Paths)
		s.metrics.RecordLatency("price_strip", time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	pricer := engine.NewFuturesPricer()
	contracts := make([]models.StripContract, 0, n)
	total := 0.0
	for i := 0; i < n; i++ {
		d := deliveries[i]
		quote, err := pricer.Price(result.Ensemble, weights, premium, d.Year, d.Month, days[i], fxRate, currency)
		if err != nil {
			return nil, fmt.Errorf("price %s %d: %w", d.Month, d.Year, err)
		}
		symbol := models.Contract{Month: d.Month, Year: d.Year}.Symbol()
		revenue := genMWh[d.Month] * quote.Price
		total += revenue
		contracts = append(contracts, models.StripContract{
			Contract:        symbol,
			DeliveryMonth:   fmt.Sprintf("%04d-%02d", d.Year, d.Month),
			GenerationMWh:   genMWh[d.Month],
			Price:           quote.Price,
			ExpectedRevenue: revenue,
			DaysToDelivery:  days[i],
		})
		if s.metrics != nil {
			s.metrics.RecordQuote(symbol, string(currency), quote.Price)
		}
		s.publish(&models.QuoteEvent{
			Contract:  symbol,
			Price:     quote.Price,
			Currency:  string(currency),
			SpotPrice: spot.Price,
			Paths:     result.Ensemble.PathCount(),
			Seed:      result.Meta.Seed,
			AsOf:      quote.AsOf,
		})
	}

	revMetrics, err := engine.AnalyzeRevenue(result.Ensemble, genMWh, deliveries)
	if err != nil {
		return nil, fmt.Errorf("revenue analysis: %w", err)
	}

	warnings := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, w.Message)
	}

	return &models.StripResponse{
		Contracts:           contracts,
		TotalPortfolioValue: total,
		AnnualGenerationMWh: profile.AnnualKWh / 1000,
		Portfolio: models.PortfolioMetrics{
			// Revenue statistics scale linearly with the fx rate; ratios
			// are currency-invariant.
			MeanRevenue:         revMetrics.MeanRevenue * fxRate,
			RevenueVolatility:   revMetrics.RevenueVolatility * fxRate,
			SharpeRatio:         revMetrics.SharpeRatio,
			ValueAtRisk95:       revMetrics.ValueAtRisk95 * fxRate,
			ExpectedShortfall95: revMetrics.ExpectedShortfall95 * fxRate,
			SeasonalPremium:     revMetrics.SeasonalPremium,
			SolarPriceCorr:      revMetrics.SolarPriceCorr,
		},
		// Terminal price risk for the shared ensemble, in USD/MWh like the
		// single-contract response.
		Risk:     buildRiskSummary(result.Report),
		Currency: string(currency),
		AsOf:     result.Quote.AsOf,
		Warnings: warnings,
	}, nil
}

// calibrate fills the request's parameters from stored history when enough
// observations exist, falling back to spot-anchored defaults otherwise.
// History holds the feed's Rs/MWh observations; the engine calibrates on
// USD/MWh.
func (s *PricingService) calibrate(ctx context.Context, ereq *engine.Request, spotUSD, usdinr float64) error {
	if s.history != nil {
		points, err := s.history.Recent(ctx, s.cfg.HistoryLookback)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordProviderError("history")
			}
			if s.l != nil {
				s.l.Warn("price history unavailable, using default calibration", applogger.Error(err))
			}
		} else if len(points) >= s.cfg.MinObservations {
			pts := make([]engine.PricePoint, len(points))
			for i, p := range points {
				pts[i] = engine.PricePoint{Timestamp: p.Timestamp, Price: p.Price / usdinr}
			}
			series, err := engine.NewPriceSeries(pts)
			if err != nil {
				return fmt.Errorf("history series: %w", err)
			}
			ereq.Series = series
			return nil
		}
	}

	// Spot-anchored defaults: moderate daily mean reversion toward the
	// current spot with 25% of spot as annualized volatility.
	ereq.Params = &engine.OUParameters{
		MeanReversionSpeed: 6,
		LongRunMean:        spotUSD,
		Volatility:         0.25 * spotUSD,
		TimeStep:           1.0 / 365,
	}
	return nil
}

// recordSpot appends a live spot observation to stored history without
// blocking the response path. Fallback quotes are synthetic and would bias
// calibration, so they are not recorded.
func (s *PricingService) recordSpot(spot *models.SpotPrice) {
	if s.history == nil || spot.Source != "iex" {
		return
	}
	point := models.HistoryPoint{Timestamp: spot.Timestamp, Price: spot.Price}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.history.Append(ctx, []models.HistoryPoint{point}); err != nil && s.l != nil {
			s.l.Warn("spot history append failed", applogger.Error(err))
		}
	}()
}

// publish emits a quote event without blocking the response path.
func (s *PricingService) publish(event *models.QuoteEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishQuote(ctx, event); err != nil && s.l != nil {
			s.l.Warn("quote publish failed",
				applogger.String("contract", event.Contract),
				applogger.Error(err),
			)
		}
	}()
}

func buildRiskSummary(report *engine.RiskReport) *models.RiskSummary {
	risk := &models.RiskSummary{
		ValueAtRisk:       make(map[string]float64, len(report.VaR)),
		ExpectedShortfall: make(map[string]float64, len(report.ES)),
		Greeks:            report.Greeks,
		MeanTerminal:      report.MeanTerminal,
		StdTerminal:       report.StdTerminal,
	}
	for c, v := range report.VaR {
		risk.ValueAtRisk[confidenceKey(c)] = v
	}
	for c, v := range report.ES {
		risk.ExpectedShortfall[confidenceKey(c)] = v
	}
	return risk
}

func buildResponse(symbol string, spotUSD float64, days int, result *engine.Result) *models.FuturesResponse {
	warnings := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, w.Message)
	}

	return &models.FuturesResponse{
		Contract:       symbol,
		Price:          result.Quote.Price,
		Currency:       string(result.Quote.Currency),
		AsOf:           result.Quote.AsOf,
		DaysToDelivery: days,
		SpotPrice:      spotUSD,
		Parameters: map[string]float64{
			"mean_reversion_speed": result.Meta.Params.MeanReversionSpeed,
			"long_run_mean":        result.Meta.Params.LongRunMean,
			"volatility":           result.Meta.Params.Volatility,
			"time_step":            result.Meta.Params.TimeStep,
		},
		Risk:     buildRiskSummary(result.Report),
		Warnings: warnings,
	}
}

func confidenceKey(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// MarketSnapshot exposes the current spot price with USD conversion.
func (s *PricingService) MarketSnapshot(ctx context.Context) (map[string]interface{}, error) {
	spot, err := s.market.SpotPrice(ctx)
	if err != nil {
		return nil, err
	}
	usdinr, err := s.fx.USDINR(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"spot_price_rs_mwh":  spot.Price,
		"spot_price_usd_mwh": spot.Price / usdinr,
		"spot_price_rs_kwh":  spot.Price / 1000,
		"spot_price_usd_kwh": spot.Price / usdinr / 1000,
		"source":             spot.Source,
		"timestamp":          spot.Timestamp,
	}, nil
}

// SolarOutput exposes the monthly generation profile for a site.
func (s *PricingService) SolarOutput(ctx context.Context, lat, lon float64) (*models.SolarProfile, error) {
	profile, err := s.solar.MonthlyProfile(ctx, lat, lon)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderError("pvwatts")
		}
		return nil, err
	}
	return profile, nil
}
