package engine

import (
	"errors"
	"math"
	"testing"
	"time"
)

func flatGeneration(mwh float64) map[time.Month]float64 {
	m := make(map[time.Month]float64, 12)
	for i := time.January; i <= time.December; i++ {
		m[i] = mwh
	}
	return m
}

func allDeliveries(year int) []Delivery {
	deliveries := make([]Delivery, 12)
	for i := range deliveries {
		deliveries[i] = Delivery{Year: year, Month: time.Month(i + 1)}
	}
	return deliveries
}

func TestAnalyzeRevenueConstantPaths(t *testing.T) {
	// Every path holds a constant price, so the annual revenue of path p is
	// exactly 12 * gen * price_p.
	ens := monthlyEnsemble([]float64{40, 50, 60})

	metrics, err := AnalyzeRevenue(ens, flatGeneration(100), allDeliveries(2025))
	if err != nil {
		t.Fatalf("analyze revenue: %v", err)
	}

	wantMean := 12 * 100 * 50.0
	if math.Abs(metrics.MeanRevenue-wantMean) > 1e-9 {
		t.Fatalf("mean revenue = %g, want %g", metrics.MeanRevenue, wantMean)
	}
	if metrics.RevenueVolatility <= 0 {
		t.Fatalf("volatility = %g, want > 0", metrics.RevenueVolatility)
	}
	// Three paths put the 5% tail index at zero: both measures collapse to
	// the worst outcome.
	worst := 12 * 100 * 40.0
	if metrics.ValueAtRisk95 != worst || metrics.ExpectedShortfall95 != worst {
		t.Fatalf("tail = (%g, %g), want both %g", metrics.ValueAtRisk95, metrics.ExpectedShortfall95, worst)
	}
	// Flat generation and flat prices mean every month contributes equally.
	for i, s := range metrics.SeasonalPremium {
		if math.Abs(s) > 1e-12 {
			t.Fatalf("seasonal premium[%d] = %g, want 0", i, s)
		}
	}
}

func TestAnalyzeRevenueESNotAboveVaR(t *testing.T) {
	prices := make([]float64, 200)
	for i := range prices {
		prices[i] = 30 + float64(i)*0.37
	}
	metrics, err := AnalyzeRevenue(monthlyEnsemble(prices), flatGeneration(80), allDeliveries(2025))
	if err != nil {
		t.Fatalf("analyze revenue: %v", err)
	}
	if metrics.ExpectedShortfall95 > metrics.ValueAtRisk95 {
		t.Fatalf("ES95 %g exceeds VaR95 %g", metrics.ExpectedShortfall95, metrics.ValueAtRisk95)
	}
	if metrics.SharpeRatio <= 0 {
		t.Fatalf("sharpe = %g, want > 0", metrics.SharpeRatio)
	}
}

func TestAnalyzeRevenueSeasonalAndCorrelation(t *testing.T) {
	// One heavy generation month shifts its revenue share above the average.
	gen := flatGeneration(100)
	gen[time.June] = 300

	metrics, err := AnalyzeRevenue(monthlyEnsemble([]float64{45, 55}), gen, allDeliveries(2025))
	if err != nil {
		t.Fatalf("analyze revenue: %v", err)
	}
	if metrics.SeasonalPremium[5] <= 0 {
		t.Fatalf("June premium = %g, want > 0", metrics.SeasonalPremium[5])
	}
	for i, s := range metrics.SeasonalPremium {
		if i != 5 && s >= 0 {
			t.Fatalf("month %d premium = %g, want < 0", i+1, s)
		}
	}
	// Constant prices across months leave no price variance to correlate.
	if metrics.SolarPriceCorr != 0 {
		t.Fatalf("correlation = %g, want 0 for flat prices", metrics.SolarPriceCorr)
	}
}

func TestAnalyzeRevenueValidation(t *testing.T) {
	ens := monthlyEnsemble([]float64{50})

	if _, err := AnalyzeRevenue(ens, flatGeneration(1), nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("empty months: %v", err)
	}
	if _, err := AnalyzeRevenue(ens, flatGeneration(1), []Delivery{{Year: 2025, Month: time.Month(13)}}); !errors.Is(err, ErrUnknownMonth) {
		t.Fatalf("month 13: %v", err)
	}
	if _, err := AnalyzeRevenue(ens, map[time.Month]float64{time.January: 1}, []Delivery{{Year: 2025, Month: time.June}}); !errors.Is(err, ErrUnknownMonth) {
		t.Fatalf("missing generation: %v", err)
	}
	if _, err := AnalyzeRevenue(nil, flatGeneration(1), allDeliveries(2025)); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("nil ensemble: %v", err)
	}
	if _, err := AnalyzeRevenue(ens, flatGeneration(1), []Delivery{{Month: time.June}}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("zero delivery year: %v", err)
	}
}

func TestAnalyzeRevenueIgnoresOtherYearOccurrence(t *testing.T) {
	// June 2025 trades at 100, June 2026 at 50; a delivery in June 2026 must
	// see only the 2026 points.
	ens := twoJuneEnsemble(100, 50)

	metrics, err := AnalyzeRevenue(ens, flatGeneration(10), []Delivery{{Year: 2026, Month: time.June}})
	if err != nil {
		t.Fatalf("analyze revenue: %v", err)
	}
	if want := 10 * 50.0; math.Abs(metrics.MeanRevenue-want) > 1e-9 {
		t.Fatalf("mean revenue %g mixes June 2025 prices into June 2026, want %g", metrics.MeanRevenue, want)
	}
}
