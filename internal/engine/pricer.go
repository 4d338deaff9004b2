package engine

import (
	"fmt"
	"math"
	"time"
)

// FuturesPricer aggregates a simulated ensemble into a single forward price.
//
// Pricing convention, kept consistent everywhere: the generation-weighted
// expected price is the mean simulated price over the horizon points falling
// in the delivery month, scaled by the month's weight relative to the mean
// monthly weight. The risk premium is ADDITIVE in price units, with amount
// premiumFraction(daysToDelivery) * weighted mean. Currency conversion is
// applied last; the pricer never fetches rates itself.
type FuturesPricer struct{}

// NewFuturesPricer returns a pricer.
func NewFuturesPricer() *FuturesPricer { return &FuturesPricer{} }

// Price computes the forward quote for a delivery month. The delivery year
// disambiguates horizons long enough to contain the same calendar month twice.
func (p *FuturesPricer) Price(
	ensemble *PathEnsemble,
	weights GenerationWeightProfile,
	schedule RiskPremiumSchedule,
	deliveryYear int,
	deliveryMonth time.Month,
	daysToDelivery int,
	fxRate float64,
	currency Currency,
) (FuturesQuote, error) {
	if deliveryMonth < time.January || deliveryMonth > time.December {
		return FuturesQuote{}, fmt.Errorf("%w: month %d", ErrUnknownMonth, deliveryMonth)
	}
	if deliveryYear < 1 {
		return FuturesQuote{}, fmt.Errorf("%w: delivery year %d", ErrInvalidConfiguration, deliveryYear)
	}
	rel, ok := weights.RelativeWeight(deliveryMonth)
	if !ok {
		return FuturesQuote{}, fmt.Errorf("%w: no generation weight for %s", ErrUnknownMonth, deliveryMonth)
	}
	if daysToDelivery < 0 {
		return FuturesQuote{}, fmt.Errorf("%w: days to delivery must be >= 0, got %d", ErrInvalidConfiguration, daysToDelivery)
	}
	if fxRate <= 0 || math.IsNaN(fxRate) || math.IsInf(fxRate, 0) {
		return FuturesQuote{}, fmt.Errorf("%w: %g", ErrInvalidFxRate, fxRate)
	}
	if currency != CurrencyUSD && currency != CurrencyINR {
		return FuturesQuote{}, fmt.Errorf("%w: unsupported currency %q", ErrInvalidConfiguration, currency)
	}

	mean, ok := p.monthSliceMean(ensemble, deliveryYear, deliveryMonth)
	if !ok {
		return FuturesQuote{}, fmt.Errorf("%w: ensemble horizon has no points in delivery month %s %d",
			ErrInvalidConfiguration, deliveryMonth, deliveryYear)
	}

	weighted := mean * rel
	premium := schedule.Fraction(float64(daysToDelivery)) * weighted
	price := (weighted + premium) * fxRate

	if math.IsNaN(price) || math.IsInf(price, 0) {
		return FuturesQuote{}, fmt.Errorf("%w: non-finite futures price", ErrNumericalInstability)
	}
	return FuturesQuote{
		Price:    price,
		Currency: currency,
		AsOf:     ensemble.Meta().AsOf,
	}, nil
}

// monthSliceMean averages simulated prices across all paths at the horizon
// points whose timestamp falls in the delivery month of the delivery year. The
// initial price at index 0 is an observation, not a simulated outcome, and is
// excluded.
func (p *FuturesPricer) monthSliceMean(ensemble *PathEnsemble, year int, month time.Month) (float64, bool) {
	idx := monthIndices(ensemble.Timestamps(), year, month)
	if len(idx) == 0 {
		return 0, false
	}

	sum := 0.0
	for pi := 0; pi < ensemble.PathCount(); pi++ {
		row := ensemble.Path(pi)
		for _, i := range idx {
			sum += row[i]
		}
	}
	return sum / float64(ensemble.PathCount()*len(idx)), true
}

// MonthCovered reports whether any horizon point of an ensemble time axis
// built from (asOf, stepDuration, steps) would fall in the delivery month of
// the delivery year. Used by the orchestrator to fail fast before simulating.
func MonthCovered(asOf time.Time, step time.Duration, steps int, year int, month time.Month) bool {
	for i := 1; i <= steps; i++ {
		t := asOf.Add(time.Duration(i) * step)
		if t.Year() == year && t.Month() == month {
			return true
		}
	}
	return false
}
