package engine

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Request is one orchestrated pricing computation. All inputs are resolved
// by the caller (providers fetch data before the core is invoked); the core
// is a pure function of the request plus seed.
type Request struct {
	// Series is the historical calibration series. Ignored when Params is
	// set.
	Series PriceSeries
	// Params optionally skips estimation with pre-calibrated parameters.
	Params *OUParameters

	// InitialPrice is the current spot; zero falls back to the last series
	// observation.
	InitialPrice float64

	HorizonSteps int
	PathCount    int
	Seed         uint64
	Seeded       bool
	FloorEnabled bool
	Floor        float64

	Confidences    []float64
	Weights        GenerationWeightProfile
	Premium        RiskPremiumSchedule
	DeliveryYear   int
	DeliveryMonth  time.Month
	DaysToDelivery int
	FxRate         float64
	Currency       Currency

	// AsOf anchors the ensemble time axis; zero means time.Now().
	AsOf time.Time
	// StepDuration is the wall-clock spacing of horizon points; zero
	// derives it from the calibrated time step.
	StepDuration time.Duration
}

// Result bundles the outputs of one computation. Owned by the caller once
// returned; nothing is retained across requests.
type Result struct {
	Quote    FuturesQuote  `json:"quote"`
	Report   *RiskReport   `json:"report"`
	Warnings []Warning     `json:"warnings,omitempty"`
	Meta     EnsembleMeta  `json:"meta"`
	Ensemble *PathEnsemble `json:"-"`
}

// Orchestrator composes estimation, simulation, risk analytics and pricing
// into a single request-scoped computation. It owns the seeding policy and
// validates cross-component invariants before any simulation starts.
type Orchestrator struct {
	estimator *Estimator
	simulator *Simulator
	risk      *RiskAnalyzer
	pricer    *FuturesPricer
}

// NewOrchestrator wires the four components. Nil arguments get defaults.
func NewOrchestrator(est *Estimator, sim *Simulator, risk *RiskAnalyzer, pricer *FuturesPricer) *Orchestrator {
	if est == nil {
		est = NewEstimator()
	}
	if sim == nil {
		sim = NewSimulator()
	}
	if risk == nil {
		risk = NewRiskAnalyzer(sim)
	}
	if pricer == nil {
		pricer = NewFuturesPricer()
	}
	return &Orchestrator{estimator: est, simulator: sim, risk: risk, pricer: pricer}
}

// ComputePrice validates the request, runs the pipeline in dependency order
// and returns the quote and risk report computed from one shared ensemble.
// It fails fast with the first validation error and never partially
// computes.
func (o *Orchestrator) ComputePrice(ctx context.Context, req Request) (*Result, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	var warnings []Warning
	var params OUParameters
	if req.Params != nil {
		params = *req.Params
		if err := params.Validate(); err != nil {
			return nil, err
		}
	} else {
		p, w, err := o.estimator.Estimate(req.Series)
		if err != nil {
			return nil, fmt.Errorf("estimate parameters: %w", err)
		}
		params = p
		warnings = append(warnings, w...)
	}

	initial := req.InitialPrice
	if initial == 0 && req.Series.Len() > 0 {
		initial = req.Series.Last().Price
	}

	// Seeding policy lives here: an unseeded request gets one seed drawn
	// up front so the risk analyzer's common-random-numbers re-simulations
	// share the exact substream partition of the base run.
	seed := req.Seed
	if !req.Seeded {
		seed = uint64(time.Now().UnixNano())
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	stepDur := req.StepDuration
	if stepDur <= 0 {
		stepDur = time.Duration(params.TimeStep * hoursPerYear * float64(time.Hour))
	}
	if !MonthCovered(asOf, stepDur, req.HorizonSteps, req.DeliveryYear, req.DeliveryMonth) {
		return nil, fmt.Errorf("%w: horizon of %d steps from %s never reaches delivery month %s %d",
			ErrInvalidConfiguration, req.HorizonSteps, asOf.Format(time.RFC3339), req.DeliveryMonth, req.DeliveryYear)
	}

	ensemble, err := o.simulator.Simulate(params, SimulationConfig{
		HorizonSteps: req.HorizonSteps,
		PathCount:    req.PathCount,
		InitialPrice: initial,
		Seed:         seed,
		Seeded:       true,
		FloorEnabled: req.FloorEnabled,
		Floor:        req.Floor,
		AsOf:         asOf,
		StepDuration: stepDur,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate paths: %w", err)
	}
	if req.FloorEnabled {
		warnings = append(warnings, Warning{
			Code:    WarnPriceFloor,
			Message: fmt.Sprintf("non-negativity floor enabled at %.4f", req.Floor),
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := o.risk.Analyze(ensemble, req.Confidences)
	if err != nil {
		return nil, fmt.Errorf("risk analysis: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quote, err := o.pricer.Price(ensemble, req.Weights, req.Premium,
		req.DeliveryYear, req.DeliveryMonth, req.DaysToDelivery, req.FxRate, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("price futures: %w", err)
	}

	return &Result{
		Quote:    quote,
		Report:   report,
		Warnings: warnings,
		Meta:     ensemble.Meta(),
		Ensemble: ensemble,
	}, nil
}

// validate checks every cross-component precondition that can be verified
// without simulating, in a deterministic order.
func (o *Orchestrator) validate(req Request) error {
	if req.DeliveryMonth < time.January || req.DeliveryMonth > time.December {
		return fmt.Errorf("%w: month %d", ErrUnknownMonth, req.DeliveryMonth)
	}
	if req.DeliveryYear < 1 {
		return fmt.Errorf("%w: delivery year %d", ErrInvalidConfiguration, req.DeliveryYear)
	}
	if _, ok := req.Weights.Weight(req.DeliveryMonth); !ok {
		return fmt.Errorf("%w: no generation weight for %s", ErrUnknownMonth, req.DeliveryMonth)
	}
	if req.FxRate <= 0 || math.IsNaN(req.FxRate) || math.IsInf(req.FxRate, 0) {
		return fmt.Errorf("%w: %g", ErrInvalidFxRate, req.FxRate)
	}
	for _, c := range req.Confidences {
		if !(c > 0 && c < 1) {
			return fmt.Errorf("%w: confidence %g outside (0,1)", ErrInvalidConfidence, c)
		}
	}
	if req.HorizonSteps <= 0 {
		return fmt.Errorf("%w: horizon steps must be > 0, got %d", ErrInvalidConfiguration, req.HorizonSteps)
	}
	if req.PathCount <= 0 {
		return fmt.Errorf("%w: path count must be > 0, got %d", ErrInvalidConfiguration, req.PathCount)
	}
	if req.DaysToDelivery < 0 {
		return fmt.Errorf("%w: days to delivery must be >= 0, got %d", ErrInvalidConfiguration, req.DaysToDelivery)
	}
	if req.Params == nil && req.Series.Len() == 0 {
		return fmt.Errorf("%w: neither a price series nor pre-calibrated parameters supplied", ErrInsufficientData)
	}
	if req.InitialPrice == 0 && req.Series.Len() == 0 {
		return fmt.Errorf("%w: no initial price and no series to take it from", ErrInvalidConfiguration)
	}
	return nil
}
