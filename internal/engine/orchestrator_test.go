package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func baseRequest(t *testing.T) Request {
	t.Helper()
	weights, err := NewGenerationWeightProfile(map[time.Month]float64{
		time.January: 1, time.February: 1, time.March: 1.2, time.April: 1.3,
		time.May: 1.4, time.June: 1.1, time.July: 0.8, time.August: 0.8,
		time.September: 1, time.October: 1.1, time.November: 0.9, time.December: 0.8,
	})
	if err != nil {
		t.Fatalf("weights: %v", err)
	}
	premium, err := AnnualRateSchedule(0.02, 365)
	if err != nil {
		t.Fatalf("premium: %v", err)
	}
	return Request{
		Params:         &OUParameters{MeanReversionSpeed: 4, LongRunMean: 42, Volatility: 6, TimeStep: 1.0 / 365},
		InitialPrice:   45,
		HorizonSteps:   90,
		PathCount:      2000,
		Seed:           99,
		Seeded:         true,
		Confidences:    []float64{0.9, 0.95, 0.99},
		Weights:        weights,
		Premium:        premium,
		DeliveryYear:   2025,
		DeliveryMonth:  time.May,
		DaysToDelivery: 120,
		FxRate:         1,
		Currency:       CurrencyUSD,
		AsOf:           time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestComputePriceEndToEnd(t *testing.T) {
	orc := NewOrchestrator(nil, nil, nil, nil)
	res, err := orc.ComputePrice(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("compute price: %v", err)
	}

	if res.Quote.Price <= 0 || math.IsNaN(res.Quote.Price) {
		t.Fatalf("bad quote price %g", res.Quote.Price)
	}
	if res.Quote.Currency != CurrencyUSD {
		t.Fatalf("currency %s, want USD", res.Quote.Currency)
	}
	for _, c := range []float64{0.9, 0.95, 0.99} {
		v, ok := res.Report.ValueAtRisk(c)
		if !ok {
			t.Fatalf("missing VaR at %g", c)
		}
		es, ok := res.Report.ExpectedShortfall(c)
		if !ok {
			t.Fatalf("missing ES at %g", c)
		}
		if es > v {
			t.Fatalf("ES %g above VaR %g at confidence %g", es, v, c)
		}
	}
	if res.Ensemble.PathCount() != 2000 {
		t.Fatalf("ensemble path count %d, want 2000", res.Ensemble.PathCount())
	}
	if res.Meta.Seed != 99 {
		t.Fatalf("seed %d not recorded in meta", res.Meta.Seed)
	}
}

func TestComputePriceReproducible(t *testing.T) {
	orc := NewOrchestrator(nil, nil, nil, nil)
	req := baseRequest(t)

	a, err := orc.ComputePrice(context.Background(), req)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := orc.ComputePrice(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if a.Quote.Price != b.Quote.Price {
		t.Fatalf("seeded runs diverged: %g vs %g", a.Quote.Price, b.Quote.Price)
	}
	for name, g := range a.Report.Greeks {
		if b.Report.Greeks[name] != g {
			t.Fatalf("greek %s diverged: %g vs %g", name, g, b.Report.Greeks[name])
		}
	}
}

func TestComputePriceEstimatesWhenParamsAbsent(t *testing.T) {
	series := genOUSeries(t, 300, 45, 30, 48, 5, 11)

	req := baseRequest(t)
	req.Params = nil
	req.Series = series
	req.InitialPrice = 0 // fall back to the last observation

	res, err := NewOrchestrator(nil, nil, nil, nil).ComputePrice(context.Background(), req)
	if err != nil {
		t.Fatalf("compute price: %v", err)
	}
	if res.Meta.InitialPrice != series.Last().Price {
		t.Fatalf("initial price %g, want last observation %g", res.Meta.InitialPrice, series.Last().Price)
	}
	if res.Meta.Params.MeanReversionSpeed <= 0 {
		t.Fatalf("estimated speed %g not positive", res.Meta.Params.MeanReversionSpeed)
	}
}

func TestComputePriceFailsFastBeforeSimulating(t *testing.T) {
	orc := NewOrchestrator(nil, nil, nil, nil)

	req := baseRequest(t)
	req.DeliveryMonth = time.Month(0)
	if _, err := orc.ComputePrice(context.Background(), req); !errors.Is(err, ErrUnknownMonth) {
		t.Fatalf("month 0: expected ErrUnknownMonth, got %v", err)
	}

	req = baseRequest(t)
	req.DeliveryYear = 0
	if _, err := orc.ComputePrice(context.Background(), req); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("year 0: expected ErrInvalidConfiguration, got %v", err)
	}

	req = baseRequest(t)
	req.FxRate = -2
	if _, err := orc.ComputePrice(context.Background(), req); !errors.Is(err, ErrInvalidFxRate) {
		t.Fatalf("expected ErrInvalidFxRate, got %v", err)
	}

	req = baseRequest(t)
	req.Confidences = []float64{0.95, 1.2}
	if _, err := orc.ComputePrice(context.Background(), req); !errors.Is(err, ErrInvalidConfidence) {
		t.Fatalf("expected ErrInvalidConfidence, got %v", err)
	}

	req = baseRequest(t)
	req.Params = nil
	req.Series = PriceSeries{}
	if _, err := orc.ComputePrice(context.Background(), req); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestComputePriceHorizonMustCoverDeliveryMonth(t *testing.T) {
	req := baseRequest(t)
	req.DeliveryMonth = time.December // 90 daily steps from Feb 1 end in early May
	if _, err := NewOrchestrator(nil, nil, nil, nil).ComputePrice(context.Background(), req); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}

	// The horizon reaches May 2025 but not May 2026; the same calendar month
	// in the wrong year is not coverage.
	req = baseRequest(t)
	req.DeliveryYear = 2026
	if _, err := NewOrchestrator(nil, nil, nil, nil).ComputePrice(context.Background(), req); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("May 2026 beyond horizon: expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestComputePriceYearOutDeliveryConvergesToLongRunMean(t *testing.T) {
	// Deterministic fast reversion from 100 toward 50. By June next year the
	// paths sit at the long-run mean, so the quote must be 50 even though the
	// horizon still holds near-spot points from the June of the request date.
	req := baseRequest(t)
	req.Params = &OUParameters{MeanReversionSpeed: 30, LongRunMean: 50, Volatility: 0, TimeStep: 1.0 / 365}
	req.InitialPrice = 100
	req.AsOf = time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	req.HorizonSteps = 381
	req.PathCount = 100
	req.DeliveryYear = 2027
	req.DeliveryMonth = time.June
	req.DaysToDelivery = 365
	req.Premium = zeroPremium()
	req.Weights = flatWeights(1)

	res, err := NewOrchestrator(nil, nil, nil, nil).ComputePrice(context.Background(), req)
	if err != nil {
		t.Fatalf("compute price: %v", err)
	}
	if math.Abs(res.Quote.Price-50) > 0.1 {
		t.Fatalf("June 2027 quote %g pulled toward spot by residual June 2026 points, want 50", res.Quote.Price)
	}
}

func TestComputePriceFloorWarningSurfaced(t *testing.T) {
	req := baseRequest(t)
	req.FloorEnabled = true
	req.Floor = 0.01

	res, err := NewOrchestrator(nil, nil, nil, nil).ComputePrice(context.Background(), req)
	if err != nil {
		t.Fatalf("compute price: %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Code == WarnPriceFloor {
			found = true
		}
	}
	if !found {
		t.Fatalf("floor warning missing from %v", res.Warnings)
	}
}

func TestComputePriceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewOrchestrator(nil, nil, nil, nil).ComputePrice(ctx, baseRequest(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
