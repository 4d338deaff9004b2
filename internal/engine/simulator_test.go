package engine

import (
	"errors"
	"math"
	"testing"
	"time"
)

var testParams = OUParameters{
	MeanReversionSpeed: 2,
	LongRunMean:        50,
	Volatility:         5,
	TimeStep:           1.0 / 12,
}

func TestSimulateZeroVolatilityIsDeterministic(t *testing.T) {
	params := testParams
	params.Volatility = 0

	ens, err := NewSimulator().Simulate(params, SimulationConfig{
		HorizonSteps: 24,
		PathCount:    16,
		InitialPrice: 100,
		Seed:         1,
		Seeded:       true,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	first := ens.Path(0)
	for p := 1; p < ens.PathCount(); p++ {
		row := ens.Path(p)
		for i := range row {
			if row[i] != first[i] {
				t.Fatalf("path %d diverges at step %d: %g vs %g", p, i, row[i], first[i])
			}
		}
	}
	// Deterministic reversion: each step moves strictly toward the mean.
	for i := 1; i < len(first); i++ {
		if math.Abs(first[i]-50) >= math.Abs(first[i-1]-50) {
			t.Fatalf("step %d did not move toward the mean: %g -> %g", i, first[i-1], first[i])
		}
	}
}

func TestSimulateSeedReproducibility(t *testing.T) {
	cfg := SimulationConfig{
		HorizonSteps: 40,
		PathCount:    64,
		InitialPrice: 42,
		Seed:         12345,
		Seeded:       true,
	}
	sim := NewSimulator()

	a, err := sim.Simulate(testParams, cfg)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	b, err := sim.Simulate(testParams, cfg)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for p := 0; p < a.PathCount(); p++ {
		ra, rb := a.Path(p), b.Path(p)
		for i := range ra {
			if ra[i] != rb[i] {
				t.Fatalf("path %d step %d not bit-identical: %g vs %g", p, i, ra[i], rb[i])
			}
		}
	}
}

func TestSimulateIndependentOfWorkerCount(t *testing.T) {
	cfg := SimulationConfig{
		HorizonSteps: 20,
		PathCount:    50,
		InitialPrice: 42,
		Seed:         9,
		Seeded:       true,
	}
	sim := NewSimulator()

	cfg.Workers = 1
	serial, err := sim.Simulate(testParams, cfg)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	cfg.Workers = 8
	parallel, err := sim.Simulate(testParams, cfg)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for p := 0; p < serial.PathCount(); p++ {
		rs, rp := serial.Path(p), parallel.Path(p)
		for i := range rs {
			if rs[i] != rp[i] {
				t.Fatalf("worker count changed path %d step %d", p, i)
			}
		}
	}
}

func TestSimulatePrefixStableWhenAddingPaths(t *testing.T) {
	sim := NewSimulator()
	small, err := sim.Simulate(testParams, SimulationConfig{
		HorizonSteps: 25,
		PathCount:    8,
		InitialPrice: 42,
		Seed:         77,
		Seeded:       true,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	large, err := sim.Simulate(testParams, SimulationConfig{
		HorizonSteps: 25,
		PathCount:    32,
		InitialPrice: 42,
		Seed:         77,
		Seeded:       true,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for p := 0; p < small.PathCount(); p++ {
		rs, rl := small.Path(p), large.Path(p)
		for i := range rs {
			if rs[i] != rl[i] {
				t.Fatalf("adding paths perturbed path %d step %d", p, i)
			}
		}
	}
}

func TestSimulateInvalidConfiguration(t *testing.T) {
	sim := NewSimulator()
	cases := []struct {
		name   string
		params OUParameters
		cfg    SimulationConfig
	}{
		{"zero steps", testParams, SimulationConfig{HorizonSteps: 0, PathCount: 10, InitialPrice: 1}},
		{"zero paths", testParams, SimulationConfig{HorizonSteps: 10, PathCount: 0, InitialPrice: 1}},
		{"stability bound", OUParameters{MeanReversionSpeed: 30, LongRunMean: 50, Volatility: 1, TimeStep: 0.1},
			SimulationConfig{HorizonSteps: 10, PathCount: 10, InitialPrice: 1}},
	}
	for _, tc := range cases {
		if _, err := sim.Simulate(tc.params, tc.cfg); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("%s: expected ErrInvalidConfiguration, got %v", tc.name, err)
		}
	}
}

func TestSimulateEnforcesLimits(t *testing.T) {
	sim := &Simulator{MaxPaths: 100, MaxSteps: 50}
	if _, err := sim.Simulate(testParams, SimulationConfig{
		HorizonSteps: 10, PathCount: 101, InitialPrice: 1,
	}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("path limit: got %v", err)
	}
	if _, err := sim.Simulate(testParams, SimulationConfig{
		HorizonSteps: 51, PathCount: 10, InitialPrice: 1,
	}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("step limit: got %v", err)
	}
}

func TestSimulateFloorRecordedAndApplied(t *testing.T) {
	params := testParams
	params.Volatility = 200 // violent noise so the floor actually binds

	ens, err := NewSimulator().Simulate(params, SimulationConfig{
		HorizonSteps: 50,
		PathCount:    200,
		InitialPrice: 1,
		Seed:         3,
		Seeded:       true,
		FloorEnabled: true,
		Floor:        0,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !ens.Meta().FloorEnabled {
		t.Fatalf("floor not recorded in metadata")
	}
	for p := 0; p < ens.PathCount(); p++ {
		for i, v := range ens.Path(p) {
			if v < 0 {
				t.Fatalf("floored ensemble contains negative price %g at path %d step %d", v, p, i)
			}
		}
	}
}

func TestSimulateTimestampsShared(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ens, err := NewSimulator().Simulate(testParams, SimulationConfig{
		HorizonSteps: 12,
		PathCount:    4,
		InitialPrice: 42,
		Seed:         5,
		Seeded:       true,
		AsOf:         asOf,
		StepDuration: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	ts := ens.Timestamps()
	if len(ts) != 13 {
		t.Fatalf("expected 13 timestamps, got %d", len(ts))
	}
	if !ts[0].Equal(asOf) {
		t.Fatalf("time axis not anchored at asOf")
	}
	if got := ts[12].Sub(ts[0]); got != 12*24*time.Hour {
		t.Fatalf("unexpected horizon span %v", got)
	}
}
