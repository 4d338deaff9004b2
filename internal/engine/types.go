package engine

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// hoursPerYear converts between wall-clock spacing and annualized time steps.
const hoursPerYear = 365 * 24

// PricePoint is one observation of an electricity price.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// PriceSeries is an ordered, immutable sequence of price observations.
// Construction validates chronology, timestamp uniqueness and non-negativity,
// so downstream code can rely on those invariants without re-checking.
type PriceSeries struct {
	pts []PricePoint
}

// NewPriceSeries validates and wraps a slice of observations.
func NewPriceSeries(points []PricePoint) (PriceSeries, error) {
	if len(points) == 0 {
		return PriceSeries{}, fmt.Errorf("%w: empty price series", ErrInsufficientData)
	}
	pts := make([]PricePoint, len(points))
	copy(pts, points)
	for i, p := range pts {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			return PriceSeries{}, fmt.Errorf("%w: non-finite price at index %d", ErrInvalidConfiguration, i)
		}
		if p.Price < 0 {
			return PriceSeries{}, fmt.Errorf("%w: negative price %.4f at index %d", ErrInvalidConfiguration, p.Price, i)
		}
		if i > 0 && !pts[i-1].Timestamp.Before(p.Timestamp) {
			return PriceSeries{}, fmt.Errorf("%w: timestamps not strictly increasing at index %d", ErrInvalidConfiguration, i)
		}
	}
	return PriceSeries{pts: pts}, nil
}

// SeriesFromPrices builds a series with evenly spaced timestamps, mostly a
// convenience for callers holding a bare price slice.
func SeriesFromPrices(start time.Time, step time.Duration, prices []float64) (PriceSeries, error) {
	pts := make([]PricePoint, len(prices))
	for i, p := range prices {
		pts[i] = PricePoint{Timestamp: start.Add(time.Duration(i) * step), Price: p}
	}
	return NewPriceSeries(pts)
}

// Len returns the number of observations.
func (s PriceSeries) Len() int { return len(s.pts) }

// At returns the i-th observation.
func (s PriceSeries) At(i int) PricePoint { return s.pts[i] }

// Prices returns a copy of the price column.
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.pts))
	for i, p := range s.pts {
		out[i] = p.Price
	}
	return out
}

// Last returns the most recent observation.
func (s PriceSeries) Last() PricePoint { return s.pts[len(s.pts)-1] }

// OUParameters hold a calibrated Ornstein-Uhlenbeck model:
//
//	dX = MeanReversionSpeed * (LongRunMean - X) dt + Volatility dW
//
// TimeStep is the discretization step in years.
type OUParameters struct {
	MeanReversionSpeed float64 `json:"mean_reversion_speed"`
	LongRunMean        float64 `json:"long_run_mean"`
	Volatility         float64 `json:"volatility"`
	TimeStep           float64 `json:"time_step"`
}

// Validate enforces the parameter domain, including the Euler discretization
// stability bound speed*dt < 2.
func (p OUParameters) Validate() error {
	for name, v := range map[string]float64{
		"mean_reversion_speed": p.MeanReversionSpeed,
		"long_run_mean":        p.LongRunMean,
		"volatility":           p.Volatility,
		"time_step":            p.TimeStep,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidConfiguration, name)
		}
	}
	if p.MeanReversionSpeed <= 0 {
		return fmt.Errorf("%w: mean_reversion_speed must be > 0, got %g", ErrInvalidConfiguration, p.MeanReversionSpeed)
	}
	if p.Volatility < 0 {
		return fmt.Errorf("%w: volatility must be >= 0, got %g", ErrInvalidConfiguration, p.Volatility)
	}
	if p.TimeStep <= 0 {
		return fmt.Errorf("%w: time_step must be > 0, got %g", ErrInvalidConfiguration, p.TimeStep)
	}
	if p.MeanReversionSpeed*p.TimeStep >= 2 {
		return fmt.Errorf("%w: speed*dt = %g violates stability bound (< 2)",
			ErrInvalidConfiguration, p.MeanReversionSpeed*p.TimeStep)
	}
	return nil
}

// EnsembleMeta records how an ensemble was generated. Downstream consumers
// need it to interpret results consistently (floor policy) and to re-simulate
// under common random numbers (seed, parameters, initial price).
type EnsembleMeta struct {
	Params       OUParameters  `json:"params"`
	InitialPrice float64       `json:"initial_price"`
	Seed         uint64        `json:"seed"`
	FloorEnabled bool          `json:"floor_enabled"`
	Floor        float64       `json:"floor"`
	AsOf         time.Time     `json:"as_of"`
	StepDuration time.Duration `json:"step_duration"`
	Workers      int           `json:"-"`
}

// PathEnsemble is a fixed collection of simulated price trajectories.
// Path count and horizon are fixed at construction; all paths share the same
// timestamps and were generated from the same parameters and seed partition.
type PathEnsemble struct {
	paths      [][]float64 // pathCount x (steps+1)
	timestamps []time.Time // steps+1
	meta       EnsembleMeta
}

// PathCount returns the number of independent paths.
func (e *PathEnsemble) PathCount() int { return len(e.paths) }

// Steps returns the number of horizon steps T (each path has T+1 values).
func (e *PathEnsemble) Steps() int { return len(e.timestamps) - 1 }

// Path returns the i-th trajectory. The slice is shared; treat as read-only.
func (e *PathEnsemble) Path(i int) []float64 { return e.paths[i] }

// Timestamps returns the shared time axis. Treat as read-only.
func (e *PathEnsemble) Timestamps() []time.Time { return e.timestamps }

// Meta returns the generation metadata.
func (e *PathEnsemble) Meta() EnsembleMeta { return e.meta }

// TerminalPrices copies the final value of each path.
func (e *PathEnsemble) TerminalPrices() []float64 {
	out := make([]float64, len(e.paths))
	for i, p := range e.paths {
		out[i] = p[len(p)-1]
	}
	return out
}

// GenerationWeightProfile maps calendar months to expected solar output
// weights. Weights need not sum to one; they are normalized before use.
type GenerationWeightProfile struct {
	weights map[time.Month]float64
}

// NewGenerationWeightProfile validates month keys and non-negative weights.
func NewGenerationWeightProfile(weights map[time.Month]float64) (GenerationWeightProfile, error) {
	if len(weights) == 0 {
		return GenerationWeightProfile{}, fmt.Errorf("%w: empty generation weight profile", ErrInvalidConfiguration)
	}
	m := make(map[time.Month]float64, len(weights))
	total := 0.0
	for month, w := range weights {
		if month < time.January || month > time.December {
			return GenerationWeightProfile{}, fmt.Errorf("%w: month %d", ErrUnknownMonth, month)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return GenerationWeightProfile{}, fmt.Errorf("%w: weight for %s must be a non-negative number, got %g",
				ErrInvalidConfiguration, month, w)
		}
		m[month] = w
		total += w
	}
	if total == 0 {
		return GenerationWeightProfile{}, fmt.Errorf("%w: all generation weights are zero", ErrInvalidConfiguration)
	}
	return GenerationWeightProfile{weights: m}, nil
}

// Weight returns the raw weight for a month and whether the month is present.
func (g GenerationWeightProfile) Weight(m time.Month) (float64, bool) {
	w, ok := g.weights[m]
	return w, ok
}

// RelativeWeight returns a month's weight relative to the mean monthly weight
// after normalization. A profile with equal weights yields 1 for every month,
// so the weighting degrades gracefully to an unweighted average.
func (g GenerationWeightProfile) RelativeWeight(m time.Month) (float64, bool) {
	w, ok := g.weights[m]
	if !ok {
		return 0, false
	}
	total := 0.0
	for _, v := range g.weights {
		total += v
	}
	mean := total / float64(len(g.weights))
	return w / mean, true
}

// PremiumPoint is one knot of a risk-premium schedule.
type PremiumPoint struct {
	Days     float64 `json:"days"`
	Fraction float64 `json:"fraction"`
}

// RiskPremiumSchedule maps time-to-delivery in days to a premium fraction by
// piecewise-linear interpolation over its knots. The expected (not enforced)
// shape is monotonic non-decreasing.
type RiskPremiumSchedule struct {
	pts []PremiumPoint
}

// NewRiskPremiumSchedule validates knots: non-negative days and fractions,
// strictly increasing days.
func NewRiskPremiumSchedule(points []PremiumPoint) (RiskPremiumSchedule, error) {
	if len(points) == 0 {
		return RiskPremiumSchedule{}, fmt.Errorf("%w: empty risk premium schedule", ErrInvalidConfiguration)
	}
	pts := make([]PremiumPoint, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Days < pts[j].Days })
	for i, p := range pts {
		if p.Days < 0 || math.IsNaN(p.Days) || math.IsInf(p.Days, 0) {
			return RiskPremiumSchedule{}, fmt.Errorf("%w: schedule days must be >= 0, got %g", ErrInvalidConfiguration, p.Days)
		}
		if p.Fraction < 0 || math.IsNaN(p.Fraction) || math.IsInf(p.Fraction, 0) {
			return RiskPremiumSchedule{}, fmt.Errorf("%w: premium fraction must be >= 0, got %g", ErrInvalidConfiguration, p.Fraction)
		}
		if i > 0 && pts[i-1].Days == p.Days {
			return RiskPremiumSchedule{}, fmt.Errorf("%w: duplicate schedule knot at %g days", ErrInvalidConfiguration, p.Days)
		}
	}
	return RiskPremiumSchedule{pts: pts}, nil
}

// AnnualRateSchedule builds a schedule growing linearly at rate per year,
// covering up to horizonDays. Mirrors a flat annual risk premium convention.
func AnnualRateSchedule(rate float64, horizonDays float64) (RiskPremiumSchedule, error) {
	return NewRiskPremiumSchedule([]PremiumPoint{
		{Days: 0, Fraction: 0},
		{Days: horizonDays, Fraction: rate * horizonDays / 365},
	})
}

// Fraction interpolates the premium fraction for a time-to-delivery. Values
// outside the knot range clamp to the nearest knot.
func (s RiskPremiumSchedule) Fraction(days float64) float64 {
	if len(s.pts) == 0 {
		return 0
	}
	if days <= s.pts[0].Days {
		return s.pts[0].Fraction
	}
	last := s.pts[len(s.pts)-1]
	if days >= last.Days {
		return last.Fraction
	}
	i := sort.Search(len(s.pts), func(i int) bool { return s.pts[i].Days >= days })
	lo, hi := s.pts[i-1], s.pts[i]
	t := (days - lo.Days) / (hi.Days - lo.Days)
	return lo.Fraction + t*(hi.Fraction-lo.Fraction)
}

// Currency is the quote currency of a futures price.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyINR Currency = "INR"
)

// ParseCurrency maps a string to a supported Currency.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(s) {
	case CurrencyUSD, CurrencyINR:
		return Currency(s), nil
	}
	return "", fmt.Errorf("%w: unsupported currency %q", ErrInvalidConfiguration, s)
}

// FuturesQuote is a single priced forward contract. Produced once, never
// mutated.
type FuturesQuote struct {
	Price    float64   `json:"price"`
	Currency Currency  `json:"currency"`
	AsOf     time.Time `json:"as_of"`
}

// RiskReport holds distributional and sensitivity measures computed from one
// realized ensemble. Price orientation: VaR(c) is the (1-c) lower quantile of
// the terminal price distribution and ES(c) the mean of the tail at or below
// it, so ES(c) <= VaR(c).
type RiskReport struct {
	VaR          map[float64]float64 `json:"value_at_risk"`
	ES           map[float64]float64 `json:"expected_shortfall"`
	Greeks       map[string]float64  `json:"greeks"`
	MeanTerminal float64             `json:"mean_terminal"`
	StdTerminal  float64             `json:"std_terminal"`
}

// ValueAtRisk returns VaR at a confidence level computed by Analyze.
func (r *RiskReport) ValueAtRisk(confidence float64) (float64, bool) {
	v, ok := r.VaR[confidence]
	return v, ok
}

// ExpectedShortfall returns ES at a confidence level computed by Analyze.
func (r *RiskReport) ExpectedShortfall(confidence float64) (float64, bool) {
	v, ok := r.ES[confidence]
	return v, ok
}
