package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RevenueMetrics summarizes the distribution of production-weighted revenue
// over a strip of delivery months, computed from one shared ensemble.
type RevenueMetrics struct {
	MeanRevenue         float64   `json:"mean_revenue"`
	RevenueVolatility   float64   `json:"revenue_volatility"`
	SharpeRatio         float64   `json:"sharpe_ratio"`
	ValueAtRisk95       float64   `json:"value_at_risk_95"`
	ExpectedShortfall95 float64   `json:"expected_shortfall_95"`
	SeasonalPremium     []float64 `json:"seasonal_premium"`
	SolarPriceCorr      float64   `json:"correlation_solar_price"`
}

// Delivery identifies one delivery month of a strip. The year matters: a
// horizon long enough to contain the same calendar month twice must not mix
// the two occurrences.
type Delivery struct {
	Year  int
	Month time.Month
}

// AnalyzeRevenue computes per-path strip revenue (generation times the path's
// mean simulated price in each delivery month) and reports distributional
// risk over those revenues. Revenue-side VaR and ES use the sorted-index
// convention on the lower 5% tail, so ES95 <= VaR95 always holds.
func AnalyzeRevenue(ensemble *PathEnsemble, generationMWh map[time.Month]float64, deliveries []Delivery) (*RevenueMetrics, error) {
	if ensemble == nil || ensemble.PathCount() == 0 {
		return nil, fmt.Errorf("%w: empty ensemble", ErrInsufficientData)
	}
	if len(deliveries) == 0 {
		return nil, fmt.Errorf("%w: no delivery months supplied", ErrInvalidConfiguration)
	}

	indices := make([][]int, len(deliveries))
	for mi, d := range deliveries {
		if d.Month < time.January || d.Month > time.December {
			return nil, fmt.Errorf("%w: month %d", ErrUnknownMonth, d.Month)
		}
		if d.Year < 1 {
			return nil, fmt.Errorf("%w: delivery year %d", ErrInvalidConfiguration, d.Year)
		}
		if _, ok := generationMWh[d.Month]; !ok {
			return nil, fmt.Errorf("%w: no generation for %s", ErrUnknownMonth, d.Month)
		}
		idx := monthIndices(ensemble.Timestamps(), d.Year, d.Month)
		if len(idx) == 0 {
			return nil, fmt.Errorf("%w: ensemble horizon has no points in %s %d", ErrInvalidConfiguration, d.Month, d.Year)
		}
		indices[mi] = idx
	}

	paths := ensemble.PathCount()
	revenues := make([]float64, paths)
	monthlyMeanRevenue := make([]float64, len(deliveries))
	monthlyMeanPrice := make([]float64, len(deliveries))
	for p := 0; p < paths; p++ {
		row := ensemble.Path(p)
		for mi, d := range deliveries {
			sum := 0.0
			for _, i := range indices[mi] {
				sum += row[i]
			}
			monthMean := sum / float64(len(indices[mi]))
			rev := generationMWh[d.Month] * monthMean
			revenues[p] += rev
			monthlyMeanRevenue[mi] += rev
			monthlyMeanPrice[mi] += monthMean
		}
	}
	for mi := range deliveries {
		monthlyMeanRevenue[mi] /= float64(paths)
		monthlyMeanPrice[mi] /= float64(paths)
	}

	mean, std := stat.MeanStdDev(revenues, nil)

	sorted := append([]float64(nil), revenues...)
	sort.Float64s(sorted)
	tail := int(0.05 * float64(len(sorted)))
	varRevenue := sorted[0]
	esRevenue := sorted[0]
	if tail > 0 {
		varRevenue = sorted[tail]
		esRevenue = stat.Mean(sorted[:tail], nil)
	}

	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std
	}

	avgMonthly := stat.Mean(monthlyMeanRevenue, nil)
	seasonal := make([]float64, 12)
	if avgMonthly > 0 {
		for mi := range deliveries {
			if mi >= 12 {
				break
			}
			seasonal[mi] = monthlyMeanRevenue[mi]/avgMonthly - 1
		}
	}

	corr := 0.0
	if len(deliveries) > 1 {
		gen := make([]float64, len(deliveries))
		for mi, d := range deliveries {
			gen[mi] = generationMWh[d.Month]
		}
		if c := stat.Correlation(gen, monthlyMeanPrice, nil); !math.IsNaN(c) {
			corr = c
		}
	}

	out := &RevenueMetrics{
		MeanRevenue:         mean,
		RevenueVolatility:   std,
		SharpeRatio:         sharpe,
		ValueAtRisk95:       varRevenue,
		ExpectedShortfall95: esRevenue,
		SeasonalPremium:     seasonal,
		SolarPriceCorr:      corr,
	}
	for _, v := range []float64{out.MeanRevenue, out.RevenueVolatility, out.ValueAtRisk95, out.ExpectedShortfall95} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite revenue statistic", ErrNumericalInstability)
		}
	}
	return out, nil
}

// monthIndices returns the horizon point indices falling in the month of the
// given year, excluding the initial observation at index 0. Matching on the
// calendar month alone would conflate two occurrences of the same month when
// the horizon spans more than a year.
func monthIndices(ts []time.Time, year int, month time.Month) []int {
	var idx []int
	for i := 1; i < len(ts); i++ {
		if ts[i].Year() == year && ts[i].Month() == month {
			idx = append(idx, i)
		}
	}
	return idx
}
