package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/anshul202/derivative-api/internal/domain/models"
	domrepo "github.com/anshul202/derivative-api/internal/domain/repository"
	"github.com/anshul202/derivative-api/internal/engine"
)

type fakeSolar struct {
	profile *models.SolarProfile
	err     error
}

func (f *fakeSolar) MonthlyProfile(ctx context.Context, lat, lon float64) (*models.SolarProfile, error) {
	return f.profile, f.err
}

type fakeMarket struct {
	spot *models.SpotPrice
	err  error
}

func (f *fakeMarket) SpotPrice(ctx context.Context) (*models.SpotPrice, error) {
	return f.spot, f.err
}

type fakeFX struct{ rate float64 }

func (f *fakeFX) USDINR(ctx context.Context) (float64, error) { return f.rate, nil }

type fakeHistory struct {
	points  []models.HistoryPoint
	err     error
	appends chan []models.HistoryPoint
}

func (f *fakeHistory) Init(ctx context.Context) error { return nil }
func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]models.HistoryPoint, error) {
	return f.points, f.err
}
func (f *fakeHistory) Append(ctx context.Context, points []models.HistoryPoint) error {
	if f.appends != nil {
		f.appends <- points
	}
	return nil
}
func (f *fakeHistory) Health(ctx context.Context) error { return nil }
func (f *fakeHistory) Close() error                     { return nil }

type fakePublisher struct {
	events chan *models.QuoteEvent
}

func (f *fakePublisher) PublishQuote(ctx context.Context, q *models.QuoteEvent) error {
	f.events <- q
	return nil
}
func (f *fakePublisher) Close() error { return nil }

type fakeMetrics struct {
	simulations []string
	providerErr []string
	quotes      int
}

func (f *fakeMetrics) RecordSimulation(status string, paths int) {
	f.simulations = append(f.simulations, status)
}
func (f *fakeMetrics) RecordProviderError(provider string) {
	f.providerErr = append(f.providerErr, provider)
}
func (f *fakeMetrics) RecordQuote(contract, currency string, price float64) { f.quotes++ }
func (f *fakeMetrics) RecordLatency(op string, seconds float64)             {}

func flatProfile() *models.SolarProfile {
	monthly := make(map[time.Month]float64, 12)
	for m := time.January; m <= time.December; m++ {
		monthly[m] = 120000
	}
	return &models.SolarProfile{
		Latitude: 28.6, Longitude: 77.2, SystemKW: 1000,
		Monthly: monthly, AnnualKWh: 12 * 120000,
	}
}

func dailyHistory(n int, meanRs float64) []models.HistoryPoint {
	points := make([]models.HistoryPoint, n)
	start := time.Now().UTC().AddDate(0, 0, -n)
	for i := range points {
		// A deterministic oscillation around the mean is enough for the
		// estimator to fit finite parameters.
		points[i] = models.HistoryPoint{
			Timestamp: start.AddDate(0, 0, i),
			Price:     meanRs + 250*math.Sin(float64(i)/5),
		}
	}
	return points
}

func newService(t *testing.T, history *fakeHistory, pub *fakePublisher, m *fakeMetrics) *PricingService {
	t.Helper()
	var publisher domrepo.QuotePublisher
	if pub != nil {
		publisher = pub
	}
	var metrics domrepo.Metrics
	if m != nil {
		metrics = m
	}
	var hist domrepo.PriceHistory
	if history != nil {
		hist = history
	}
	return NewPricingService(
		engine.NewOrchestrator(nil, nil, nil, nil),
		&fakeSolar{profile: flatProfile()},
		&fakeMarket{spot: &models.SpotPrice{Price: 4150, Currency: "INR", Source: "iex", Timestamp: time.Now()}},
		&fakeFX{rate: 83},
		hist,
		publisher,
		metrics,
		PricingConfig{PremiumRate: 0.02, MinObservations: 30},
		nil,
	)
}

func baseFuturesRequest() *models.FuturesRequest {
	return &models.FuturesRequest{
		Month:        "JUN",
		Latitude:     28.6,
		Longitude:    77.2,
		Paths:        400,
		HorizonSteps: 365,
		Seed:         42,
		Confidences:  []float64{0.95},
		Currency:     "USD",
	}
}

func TestPriceFuturesSpotAnchoredFallback(t *testing.T) {
	m := &fakeMetrics{}
	svc := newService(t, nil, nil, m)

	resp, err := svc.PriceFutures(context.Background(), baseFuturesRequest())
	if err != nil {
		t.Fatalf("price futures: %v", err)
	}

	if resp.SpotPrice != 50 {
		t.Fatalf("spot should convert 4150 Rs at 83 to 50 USD, got %g", resp.SpotPrice)
	}
	if resp.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", resp.Currency)
	}
	if resp.Price <= 0 {
		t.Fatalf("price = %g, want > 0", resp.Price)
	}
	if resp.DaysToDelivery < 0 || resp.DaysToDelivery > 366 {
		t.Fatalf("days to delivery %d out of range for next June", resp.DaysToDelivery)
	}

	// Without usable history the calibration anchors to spot.
	if got := resp.Parameters["long_run_mean"]; got != 50 {
		t.Fatalf("fallback long-run mean = %g, want 50", got)
	}
	if got := resp.Parameters["volatility"]; got != 12.5 {
		t.Fatalf("fallback volatility = %g, want 12.5", got)
	}

	if resp.Risk == nil {
		t.Fatal("risk summary missing")
	}
	if _, ok := resp.Risk.ValueAtRisk["0.95"]; !ok {
		t.Fatalf("missing 0.95 VaR, got %v", resp.Risk.ValueAtRisk)
	}
	if len(m.simulations) != 1 || m.simulations[0] != "ok" {
		t.Fatalf("simulation metric = %v, want one ok", m.simulations)
	}
	if m.quotes != 1 {
		t.Fatalf("quote metric recorded %d times, want 1", m.quotes)
	}
}

func TestPriceFuturesReproducibleWithSeed(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	first, err := svc.PriceFutures(context.Background(), baseFuturesRequest())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.PriceFutures(context.Background(), baseFuturesRequest())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Price != second.Price {
		t.Fatalf("seeded runs differ: %g vs %g", first.Price, second.Price)
	}
}

func TestPriceFuturesCalibratesFromHistory(t *testing.T) {
	// History is stored in Rs/MWh; calibration must land in the engine's USD
	// scale. 4300 Rs at 83 is about 51.8 USD.
	hist := &fakeHistory{points: dailyHistory(200, 4300)}
	svc := newService(t, hist, nil, nil)

	resp, err := svc.PriceFutures(context.Background(), baseFuturesRequest())
	if err != nil {
		t.Fatalf("price futures: %v", err)
	}
	// Estimated parameters, not the spot-anchored defaults.
	if resp.Parameters["volatility"] == 12.5 && resp.Parameters["long_run_mean"] == 50 {
		t.Fatalf("expected estimated parameters, got fallback: %v", resp.Parameters)
	}
	if resp.Parameters["mean_reversion_speed"] <= 0 {
		t.Fatalf("estimated speed = %g, want > 0", resp.Parameters["mean_reversion_speed"])
	}
	if mean := resp.Parameters["long_run_mean"]; mean < 40 || mean > 65 {
		t.Fatalf("long-run mean %g not converted to the USD scale", mean)
	}
}

func TestPriceFuturesAppendsSpotToHistory(t *testing.T) {
	hist := &fakeHistory{appends: make(chan []models.HistoryPoint, 1)}
	svc := newService(t, hist, nil, nil)

	if _, err := svc.PriceFutures(context.Background(), baseFuturesRequest()); err != nil {
		t.Fatalf("price futures: %v", err)
	}

	select {
	case points := <-hist.appends:
		if len(points) != 1 {
			t.Fatalf("appended %d points, want 1", len(points))
		}
		if points[0].Price != 4150 {
			t.Fatalf("appended price %g, want the raw 4150 Rs observation", points[0].Price)
		}
		if points[0].Timestamp.IsZero() {
			t.Fatal("appended point has no timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("spot observation never appended to history")
	}
}

func TestPriceFuturesSkipsFallbackSpotInHistory(t *testing.T) {
	hist := &fakeHistory{appends: make(chan []models.HistoryPoint, 1)}
	svc := newService(t, hist, nil, nil)
	svc.market = &fakeMarket{spot: &models.SpotPrice{Price: 3000, Currency: "INR", Source: "fallback", Timestamp: time.Now()}}

	if _, err := svc.PriceFutures(context.Background(), baseFuturesRequest()); err != nil {
		t.Fatalf("price futures: %v", err)
	}

	select {
	case points := <-hist.appends:
		t.Fatalf("fallback quote %v must not reach stored history", points)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPriceFuturesHistoryErrorFallsBack(t *testing.T) {
	m := &fakeMetrics{}
	hist := &fakeHistory{err: errors.New("connection refused")}
	svc := newService(t, hist, nil, m)

	resp, err := svc.PriceFutures(context.Background(), baseFuturesRequest())
	if err != nil {
		t.Fatalf("history failure should not fail pricing: %v", err)
	}
	if resp.Parameters["long_run_mean"] != 50 {
		t.Fatalf("expected fallback calibration, got %v", resp.Parameters)
	}
	found := false
	for _, p := range m.providerErr {
		if p == "history" {
			found = true
		}
	}
	if !found {
		t.Fatalf("history provider error not recorded: %v", m.providerErr)
	}
}

func TestPriceFuturesINRAppliesFxRate(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	usdReq := baseFuturesRequest()
	usd, err := svc.PriceFutures(context.Background(), usdReq)
	if err != nil {
		t.Fatalf("usd: %v", err)
	}

	inrReq := baseFuturesRequest()
	inrReq.Currency = "INR"
	inr, err := svc.PriceFutures(context.Background(), inrReq)
	if err != nil {
		t.Fatalf("inr: %v", err)
	}

	if inr.Currency != "INR" {
		t.Fatalf("currency = %q, want INR", inr.Currency)
	}
	if math.Abs(inr.Price-usd.Price*83) > 1e-9*inr.Price {
		t.Fatalf("INR price %g != USD price %g x 83", inr.Price, usd.Price)
	}
}

func TestPriceFuturesPublishesQuote(t *testing.T) {
	pub := &fakePublisher{events: make(chan *models.QuoteEvent, 1)}
	svc := newService(t, nil, pub, nil)

	resp, err := svc.PriceFutures(context.Background(), baseFuturesRequest())
	if err != nil {
		t.Fatalf("price futures: %v", err)
	}

	select {
	case ev := <-pub.events:
		if ev.Contract != resp.Contract {
			t.Fatalf("event contract = %q, want %q", ev.Contract, resp.Contract)
		}
		if ev.Price != resp.Price {
			t.Fatalf("event price = %g, want %g", ev.Price, resp.Price)
		}
		if ev.SpotPrice != 4150 {
			t.Fatalf("event spot should stay in Rs/MWh, got %g", ev.SpotPrice)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("quote event never published")
	}
}

func TestPriceFuturesMarketDataError(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	svc.market = &fakeMarket{err: errors.New("iex unreachable")}

	if _, err := svc.PriceFutures(context.Background(), baseFuturesRequest()); err == nil {
		t.Fatal("expected error when spot price is unavailable")
	}
}

func TestPriceFuturesBadContract(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	req := baseFuturesRequest()
	req.Month = ""
	req.Contract = "SOLAR-XXX25"
	_, err := svc.PriceFutures(context.Background(), req)
	if !errors.Is(err, engine.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestPriceStripTwelveContracts(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	resp, err := svc.PriceStrip(context.Background(), &models.StripRequest{
		Latitude: 28.6, Longitude: 77.2,
		Months: 12, Paths: 400, Seed: 7, Currency: "USD",
	})
	if err != nil {
		t.Fatalf("price strip: %v", err)
	}

	if len(resp.Contracts) != 12 {
		t.Fatalf("got %d contracts, want 12", len(resp.Contracts))
	}
	seen := make(map[time.Month]bool, 12)
	total := 0.0
	for i, c := range resp.Contracts {
		parsed, err := models.ParseContract(c.Contract)
		if err != nil {
			t.Fatalf("contract %d symbol %q: %v", i, c.Contract, err)
		}
		if seen[parsed.Month] {
			t.Fatalf("month %s priced twice", parsed.Month)
		}
		seen[parsed.Month] = true
		if c.Price <= 0 {
			t.Fatalf("contract %s price = %g, want > 0", c.Contract, c.Price)
		}
		if c.GenerationMWh != 120 {
			t.Fatalf("contract %s generation = %g MWh, want 120", c.Contract, c.GenerationMWh)
		}
		if i > 0 && c.DaysToDelivery <= resp.Contracts[i-1].DaysToDelivery {
			t.Fatalf("days to delivery not increasing at %d: %d then %d",
				i, resp.Contracts[i-1].DaysToDelivery, c.DaysToDelivery)
		}
		total += c.ExpectedRevenue
	}
	if math.Abs(total-resp.TotalPortfolioValue) > 1e-6 {
		t.Fatalf("portfolio value %g != revenue sum %g", resp.TotalPortfolioValue, total)
	}
	if resp.AnnualGenerationMWh != 12*120 {
		t.Fatalf("annual generation = %g, want %g", resp.AnnualGenerationMWh, 12*120.0)
	}

	p := resp.Portfolio
	if p.MeanRevenue <= 0 || p.RevenueVolatility <= 0 {
		t.Fatalf("degenerate revenue stats: mean %g std %g", p.MeanRevenue, p.RevenueVolatility)
	}
	if p.ExpectedShortfall95 > p.ValueAtRisk95 {
		t.Fatalf("ES95 %g exceeds VaR95 %g", p.ExpectedShortfall95, p.ValueAtRisk95)
	}
	if len(p.SeasonalPremium) != 12 {
		t.Fatalf("seasonal premium has %d entries, want 12", len(p.SeasonalPremium))
	}

	if resp.Risk == nil {
		t.Fatal("strip risk summary missing")
	}
	for _, key := range []string{"0.9", "0.95", "0.99"} {
		if _, ok := resp.Risk.ValueAtRisk[key]; !ok {
			t.Fatalf("missing %s VaR in strip risk, got %v", key, resp.Risk.ValueAtRisk)
		}
	}
	if len(resp.Risk.Greeks) == 0 {
		t.Fatal("strip risk has no sensitivities")
	}
}

func TestPriceStripReproducibleWithSeed(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	req := &models.StripRequest{Latitude: 28.6, Longitude: 77.2, Months: 6, Paths: 300, Seed: 11, Currency: "USD"}

	first, err := svc.PriceStrip(context.Background(), req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.PriceStrip(context.Background(), req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(first.Contracts) != 6 || len(second.Contracts) != 6 {
		t.Fatalf("contract counts %d/%d, want 6", len(first.Contracts), len(second.Contracts))
	}
	for i := range first.Contracts {
		if first.Contracts[i].Price != second.Contracts[i].Price {
			t.Fatalf("seeded strip differs at %d: %g vs %g",
				i, first.Contracts[i].Price, second.Contracts[i].Price)
		}
	}
}

func TestMarketSnapshotConversions(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	snap, err := svc.MarketSnapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap["spot_price_rs_mwh"].(float64) != 4150 {
		t.Fatalf("rs/mwh = %v, want 4150", snap["spot_price_rs_mwh"])
	}
	if snap["spot_price_usd_mwh"].(float64) != 50 {
		t.Fatalf("usd/mwh = %v, want 50", snap["spot_price_usd_mwh"])
	}
	if snap["spot_price_usd_kwh"].(float64) != 0.05 {
		t.Fatalf("usd/kwh = %v, want 0.05", snap["spot_price_usd_kwh"])
	}
}
