package engine

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// SimulationConfig describes one ensemble generation request.
type SimulationConfig struct {
	HorizonSteps int
	PathCount    int
	InitialPrice float64

	// Seed drives the per-path substream partition when Seeded is true.
	// When false the simulator draws a seed and records it in the ensemble
	// metadata, so any run can be reproduced after the fact.
	Seed   uint64
	Seeded bool

	// FloorEnabled clamps simulated prices at Floor. Electricity prices can
	// be negative, so the floor is off by default; enabling it is recorded
	// in the ensemble metadata.
	FloorEnabled bool
	Floor        float64

	// AsOf anchors the ensemble time axis; zero means time.Now().
	AsOf time.Time
	// StepDuration is the wall-clock spacing between horizon points; zero
	// derives it from the model time step.
	StepDuration time.Duration
	// Workers overrides the simulator's worker count for this run.
	Workers int
}

// Simulator generates OU price path ensembles by Euler-Maruyama stepping.
//
// Every path owns an independent, reproducible random substream keyed by
// (seed, path index), so results are bit-identical across runs, independent
// of worker count, and the first K paths do not change when the path count
// grows.
type Simulator struct {
	// MaxPaths and MaxSteps bound worst-case latency per request.
	MaxPaths int
	MaxSteps int
	// Workers is the default parallelism for path generation; 0 means
	// GOMAXPROCS.
	Workers int
}

// NewSimulator returns a Simulator with production limits.
func NewSimulator() *Simulator {
	return &Simulator{
		MaxPaths: 100_000,
		MaxSteps: 8_760,
	}
}

// Simulate generates an ensemble of pathCount independent OU trajectories,
// each of length horizonSteps+1 including the initial price.
func (s *Simulator) Simulate(params OUParameters, cfg SimulationConfig) (*PathEnsemble, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cfg.HorizonSteps <= 0 {
		return nil, fmt.Errorf("%w: horizon steps must be > 0, got %d", ErrInvalidConfiguration, cfg.HorizonSteps)
	}
	if cfg.PathCount <= 0 {
		return nil, fmt.Errorf("%w: path count must be > 0, got %d", ErrInvalidConfiguration, cfg.PathCount)
	}
	if s.MaxSteps > 0 && cfg.HorizonSteps > s.MaxSteps {
		return nil, fmt.Errorf("%w: horizon steps %d exceeds limit %d", ErrInvalidConfiguration, cfg.HorizonSteps, s.MaxSteps)
	}
	if s.MaxPaths > 0 && cfg.PathCount > s.MaxPaths {
		return nil, fmt.Errorf("%w: path count %d exceeds limit %d", ErrInvalidConfiguration, cfg.PathCount, s.MaxPaths)
	}
	if math.IsNaN(cfg.InitialPrice) || math.IsInf(cfg.InitialPrice, 0) {
		return nil, fmt.Errorf("%w: initial price is not finite", ErrInvalidConfiguration)
	}
	if cfg.FloorEnabled && (math.IsNaN(cfg.Floor) || math.IsInf(cfg.Floor, 0)) {
		return nil, fmt.Errorf("%w: price floor is not finite", ErrInvalidConfiguration)
	}

	seed := cfg.Seed
	if !cfg.Seeded {
		seed = uint64(time.Now().UnixNano())
	}
	asOf := cfg.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	stepDur := cfg.StepDuration
	if stepDur <= 0 {
		stepDur = time.Duration(params.TimeStep * hoursPerYear * float64(time.Hour))
	}

	timestamps := make([]time.Time, cfg.HorizonSteps+1)
	for i := range timestamps {
		timestamps[i] = asOf.Add(time.Duration(i) * stepDur)
	}

	paths := make([][]float64, cfg.PathCount)
	workers := cfg.Workers
	if workers <= 0 {
		workers = s.Workers
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > cfg.PathCount {
		workers = cfg.PathCount
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				paths[p] = simulatePath(params, cfg, seed, p)
			}
		}()
	}
	for p := 0; p < cfg.PathCount; p++ {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	ens := &PathEnsemble{
		paths:      paths,
		timestamps: timestamps,
		meta: EnsembleMeta{
			Params:       params,
			InitialPrice: cfg.InitialPrice,
			Seed:         seed,
			FloorEnabled: cfg.FloorEnabled,
			Floor:        cfg.Floor,
			AsOf:         asOf,
			StepDuration: stepDur,
			Workers:      workers,
		},
	}
	if err := scanFinite(ens); err != nil {
		return nil, err
	}
	return ens, nil
}

// simulatePath runs the Euler-Maruyama recurrence for one path on its own
// substream. Only the time-stepping is sequential; paths are independent.
func simulatePath(params OUParameters, cfg SimulationConfig, seed uint64, path int) []float64 {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(pathSeed(seed, path))}

	dt := params.TimeStep
	sqrtDt := math.Sqrt(dt)
	row := make([]float64, cfg.HorizonSteps+1)
	x := cfg.InitialPrice
	row[0] = x
	for t := 1; t <= cfg.HorizonSteps; t++ {
		x += params.MeanReversionSpeed*(params.LongRunMean-x)*dt + params.Volatility*sqrtDt*norm.Rand()
		if cfg.FloorEnabled && x < cfg.Floor {
			x = cfg.Floor
		}
		row[t] = x
	}
	return row
}

// pathSeed derives an independent substream seed per path index via a
// splitmix64 finalizer, so neighbouring indices yield uncorrelated streams.
func pathSeed(seed uint64, path int) uint64 {
	z := seed + (uint64(path)+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// scanFinite rejects ensembles containing NaN or Inf rather than letting
// them leak into reports.
func scanFinite(e *PathEnsemble) error {
	for p, row := range e.paths {
		for t, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite price at path %d step %d", ErrNumericalInstability, p, t)
			}
		}
	}
	return nil
}
