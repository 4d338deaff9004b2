package fx

import (
	"context"
	"fmt"

	drepo "github.com/anshul202/derivative-api/internal/domain/repository"
)

// StaticSource implements FXSource with a configured rate. Electricity
// futures move far more than INR/USD over a pricing horizon, so a static
// rate refreshed through config is adequate.
type StaticSource struct {
	usdinr float64
}

// NewStatic creates a static FX source.
func NewStatic(usdinr float64) (*StaticSource, error) {
	if usdinr <= 0 {
		return nil, fmt.Errorf("usd/inr rate must be > 0, got %g", usdinr)
	}
	return &StaticSource{usdinr: usdinr}, nil
}

func (s *StaticSource) USDINR(context.Context) (float64, error) {
	return s.usdinr, nil
}

var _ drepo.FXSource = (*StaticSource)(nil)
