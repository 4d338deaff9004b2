package engine

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Estimator calibrates OU parameters from a historical price series.
//
// The discretized OU process is an AR(1) relation between consecutive prices:
//
//	X[t+1] = alpha + beta*X[t] + eps,  beta = exp(-speed*dt)
//
// so ordinary least squares on consecutive pairs identifies the speed and the
// long-run mean, and the residual variance identifies the volatility via the
// exact transition variance sigma^2 * (1 - beta^2) / (2*speed).
type Estimator struct {
	// MinObservations is the practical minimum series length for a stable
	// fit. The hard floor is 3 (two consecutive-difference pairs).
	MinObservations int
	// SpeedFloor replaces a non-positive implied mean-reversion speed when
	// the regression slope shows no reversion (slope >= 1).
	SpeedFloor float64
	// StabilityMargin keeps clamped speeds strictly inside the speed*dt < 2
	// bound when the slope is non-positive.
	StabilityMargin float64
}

// NewEstimator returns an Estimator with production defaults.
func NewEstimator() *Estimator {
	return &Estimator{
		MinObservations: 30,
		SpeedFloor:      1e-4,
		StabilityMargin: 0.95,
	}
}

// Estimate fits OU parameters to the series. A clamped fit is reported as a
// warning, not an error: the parameters are usable but degraded.
func (e *Estimator) Estimate(series PriceSeries) (OUParameters, []Warning, error) {
	minObs := e.MinObservations
	if minObs < 3 {
		minObs = 3
	}
	if series.Len() < minObs {
		return OUParameters{}, nil, fmt.Errorf("%w: need at least %d observations, got %d",
			ErrInsufficientData, minObs, series.Len())
	}

	prices := series.Prices()
	if allEqual(prices) {
		return OUParameters{}, nil, fmt.Errorf("%w: all %d prices identical, mean-reversion speed unidentifiable",
			ErrDegenerateSeries, len(prices))
	}

	dt := medianTimeStepYears(series)

	x := prices[:len(prices)-1]
	y := prices[1:]
	alpha, beta := stat.LinearRegression(x, y, nil, false)

	var warnings []Warning
	var speed, mean float64
	switch {
	case beta >= 1:
		// No reversion in sample. Clamp to a small positive floor and
		// anchor the long-run mean at the sample mean, where the
		// regression intercept no longer identifies it.
		speed = e.SpeedFloor
		mean = stat.Mean(prices, nil)
		warnings = append(warnings, Warning{
			Code: WarnClampedSpeed,
			Message: fmt.Sprintf("regression slope %.4f implies no mean reversion; speed clamped to %g",
				beta, speed),
		})
	case beta <= 0:
		// Overshooting reversion beyond what the continuous-time map can
		// express. Clamp just inside the discretization stability bound.
		speed = e.StabilityMargin * 2 / dt
		mean = alpha / (1 - beta)
		warnings = append(warnings, Warning{
			Code: WarnClampedSpeed,
			Message: fmt.Sprintf("regression slope %.4f implies over-critical reversion; speed clamped to %g",
				beta, speed),
		})
	default:
		speed = -math.Log(beta) / dt
		mean = alpha / (1 - beta)
	}

	sigma := residualVolatility(x, y, alpha, beta, speed, dt)

	params := OUParameters{
		MeanReversionSpeed: speed,
		LongRunMean:        mean,
		Volatility:         sigma,
		TimeStep:           dt,
	}
	if err := params.Validate(); err != nil {
		return OUParameters{}, nil, err
	}
	return params, warnings, nil
}

// residualVolatility maps the regression residual variance back to the
// continuous-time diffusion coefficient using the exact OU transition
// variance. Falls back to Euler scaling when the transition factor
// degenerates (speed*dt near zero).
func residualVolatility(x, y []float64, alpha, beta, speed, dt float64) float64 {
	n := len(x)
	ss := 0.0
	for i := range x {
		r := y[i] - (alpha + beta*x[i])
		ss += r * r
	}
	dof := n - 2
	if dof < 1 {
		dof = 1
	}
	s2 := ss / float64(dof)
	if s2 <= 0 {
		return 0
	}

	b := math.Exp(-speed * dt)
	denom := 1 - b*b
	if denom < 1e-12 {
		return math.Sqrt(s2 / dt)
	}
	return math.Sqrt(2 * speed * s2 / denom)
}

// medianTimeStepYears infers the sampling step from timestamp spacing,
// robust to occasional gaps in the series.
func medianTimeStepYears(series PriceSeries) float64 {
	gaps := make([]float64, 0, series.Len()-1)
	for i := 1; i < series.Len(); i++ {
		gaps = append(gaps, series.At(i).Timestamp.Sub(series.At(i-1).Timestamp).Hours())
	}
	sort.Float64s(gaps)
	mid := gaps[len(gaps)/2]
	if len(gaps)%2 == 0 {
		mid = (mid + gaps[len(gaps)/2-1]) / 2
	}
	return mid / hoursPerYear
}

func allEqual(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i] != v[0] {
			return false
		}
	}
	return true
}
