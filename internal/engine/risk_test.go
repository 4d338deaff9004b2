package engine

import (
	"errors"
	"math"
	"testing"
)

func simulateForRisk(t *testing.T, params OUParameters, paths int, seed uint64) (*PathEnsemble, *RiskAnalyzer) {
	t.Helper()
	sim := NewSimulator()
	ens, err := sim.Simulate(params, SimulationConfig{
		HorizonSteps: 6,
		PathCount:    paths,
		InitialPrice: 80,
		Seed:         seed,
		Seeded:       true,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	return ens, NewRiskAnalyzer(sim)
}

func TestAnalyzeESNotAboveVaR(t *testing.T) {
	params := OUParameters{MeanReversionSpeed: 6, LongRunMean: 50, Volatility: 5, TimeStep: 1.0 / 12}
	ens, analyzer := simulateForRisk(t, params, 4000, 21)

	confidences := []float64{0.9, 0.95, 0.99}
	report, err := analyzer.Analyze(ens, confidences)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, c := range confidences {
		v, ok := report.ValueAtRisk(c)
		if !ok {
			t.Fatalf("missing VaR at %g", c)
		}
		es, ok := report.ExpectedShortfall(c)
		if !ok {
			t.Fatalf("missing ES at %g", c)
		}
		if es > v {
			t.Fatalf("ES(%g)=%g exceeds VaR(%g)=%g", c, es, c, v)
		}
	}
	// Lower quantile at higher confidence.
	if report.VaR[0.99] > report.VaR[0.9] {
		t.Fatalf("VaR(0.99)=%g above VaR(0.9)=%g", report.VaR[0.99], report.VaR[0.9])
	}
}

func TestAnalyzeInvalidConfidence(t *testing.T) {
	params := OUParameters{MeanReversionSpeed: 6, LongRunMean: 50, Volatility: 5, TimeStep: 1.0 / 12}
	ens, analyzer := simulateForRisk(t, params, 100, 2)

	for _, c := range []float64{0, 1, 1.5, -0.2} {
		if _, err := analyzer.Analyze(ens, []float64{c}); !errors.Is(err, ErrInvalidConfidence) {
			t.Fatalf("confidence %g: expected ErrInvalidConfidence, got %v", c, err)
		}
	}
}

// With Euler stepping the terminal price is linear in the spot and the
// long-run mean, so common random numbers make those finite-difference
// sensitivities match the analytic partials almost exactly:
//
//	dE[X_T]/dX_0 = a^T,  dE[X_T]/dtheta = 1 - a^T,  a = 1 - speed*dt
func TestAnalyzeGreeksMatchAnalyticUnderCRN(t *testing.T) {
	params := OUParameters{MeanReversionSpeed: 6, LongRunMean: 50, Volatility: 5, TimeStep: 1.0 / 12}
	a := 1 - params.MeanReversionSpeed*params.TimeStep
	aT := math.Pow(a, 6)

	for _, paths := range []int{1000, 10_000} {
		ens, analyzer := simulateForRisk(t, params, paths, 31)
		report, err := analyzer.Analyze(ens, []float64{0.95})
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}

		if got := report.Greeks[GreekSpot]; math.Abs(got-aT) > 1e-6 {
			t.Fatalf("paths=%d spot greek %g, want %g", paths, got, aT)
		}
		if got := report.Greeks[GreekLongRunMean]; math.Abs(got-(1-aT)) > 1e-6 {
			t.Fatalf("paths=%d long-run-mean greek %g, want %g", paths, got, 1-aT)
		}

		// Speed sensitivity carries a small forward-difference bias plus
		// residual noise; CRN keeps it near the analytic partial
		// (x0-theta) * T * a^(T-1) * (-dt).
		analytic := (80.0 - 50.0) * 6 * math.Pow(a, 5) * (-params.TimeStep)
		if got := report.Greeks[GreekSpeed]; math.Abs(got-analytic) > 0.1 {
			t.Fatalf("paths=%d speed greek %g, want about %g", paths, got, analytic)
		}

		if got := report.Greeks[GreekVolatility]; math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("volatility greek not finite: %g", got)
		}
	}
}

func TestAnalyzeGreeksReproducible(t *testing.T) {
	params := OUParameters{MeanReversionSpeed: 6, LongRunMean: 50, Volatility: 5, TimeStep: 1.0 / 12}
	ens, analyzer := simulateForRisk(t, params, 500, 8)

	r1, err := analyzer.Analyze(ens, []float64{0.95})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	r2, err := analyzer.Analyze(ens, []float64{0.95})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for name, v := range r1.Greeks {
		if r2.Greeks[name] != v {
			t.Fatalf("greek %s not reproducible: %g vs %g", name, v, r2.Greeks[name])
		}
	}
}
