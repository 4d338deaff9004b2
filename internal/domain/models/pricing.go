package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/anshul202/derivative-api/pkg/util"
)

// ContractPrefix is the symbol family for solar electricity futures.
const ContractPrefix = "SOLAR"

// Contract identifies one monthly delivery contract, e.g. SOLAR-JUN25.
type Contract struct {
	Month time.Month
	Year  int
}

// ParseContract parses a SOLAR-<MON><YY> symbol.
func ParseContract(symbol string) (Contract, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	rest, ok := strings.CutPrefix(s, ContractPrefix+"-")
	if !ok || len(rest) != 5 {
		return Contract{}, fmt.Errorf("invalid contract symbol %q", symbol)
	}
	month, ok := util.ParseMonthAbbrev(rest[:3])
	if !ok {
		return Contract{}, fmt.Errorf("invalid contract month in %q", symbol)
	}
	var yy int
	if _, err := fmt.Sscanf(rest[3:], "%02d", &yy); err != nil {
		return Contract{}, fmt.Errorf("invalid contract year in %q", symbol)
	}
	return Contract{Month: month, Year: 2000 + yy}, nil
}

// Symbol renders the SOLAR-<MON><YY> form.
func (c Contract) Symbol() string {
	return fmt.Sprintf("%s-%s%02d", ContractPrefix, util.MonthAbbrev(c.Month), c.Year%100)
}

// DeliveryStart is midnight UTC on the first day of the delivery month.
func (c Contract) DeliveryStart() time.Time {
	return util.MonthStart(c.Year, c.Month)
}

// FuturesRequest is the body of POST /api/v1/futures/electricity.
type FuturesRequest struct {
	// Contract symbol, e.g. "SOLAR-JUN25". When empty, Month and Year are
	// used directly (Year zero picks the next delivery of Month).
	Contract string `json:"contract" validate:"omitempty,min=9,max=12"`
	Month    string `json:"month" validate:"omitempty,len=3"`
	Year     int    `json:"year" validate:"omitempty,gte=2000,lte=2100"`

	// Site location for solar generation weighting.
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`

	Paths        int       `json:"paths" default:"10000" validate:"gte=100,lte=100000"`
	HorizonSteps int       `json:"horizon_steps" default:"365" validate:"gte=1,lte=8760"`
	Seed         uint64    `json:"seed"`
	Seeded       bool      `json:"-"`
	Confidences  []float64 `json:"confidences" validate:"omitempty,dive,gt=0,lt=1"`
	Currency     string    `json:"currency" default:"USD" validate:"oneof=USD INR"`
}

// ResolveContract derives the delivery contract from the request fields.
func (r *FuturesRequest) ResolveContract(now time.Time) (Contract, error) {
	if r.Contract != "" {
		return ParseContract(r.Contract)
	}
	if r.Month == "" {
		return Contract{}, fmt.Errorf("either contract or month is required")
	}
	month, ok := util.ParseMonthAbbrev(r.Month)
	if !ok {
		return Contract{}, fmt.Errorf("invalid month %q", r.Month)
	}
	year := r.Year
	if year == 0 {
		year = util.NextDeliveryYear(now, month)
	}
	return Contract{Month: month, Year: year}, nil
}

// SolarOutputRequest selects a site for GET /api/v1/solar/output.
type SolarOutputRequest struct {
	Latitude  float64 `query:"lat" json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `query:"lon" json:"longitude" validate:"gte=-180,lte=180"`
}

// RiskSummary is the risk section of a pricing response.
type RiskSummary struct {
	ValueAtRisk       map[string]float64 `json:"value_at_risk"`
	ExpectedShortfall map[string]float64 `json:"expected_shortfall"`
	Greeks            map[string]float64 `json:"greeks"`
	MeanTerminal      float64            `json:"mean_terminal"`
	StdTerminal       float64            `json:"std_terminal"`
}

// FuturesResponse is the pricing endpoint payload.
type FuturesResponse struct {
	Contract       string             `json:"contract"`
	Price          float64            `json:"price"`
	Currency       string             `json:"currency"`
	AsOf           time.Time          `json:"as_of"`
	DaysToDelivery int                `json:"days_to_delivery"`
	SpotPrice      float64            `json:"spot_price"`
	Parameters     map[string]float64 `json:"parameters"`
	Risk           *RiskSummary       `json:"risk,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// StripRequest is the body of POST /api/v1/futures/strip. It prices one
// contract per delivery month starting with the next calendar month.
type StripRequest struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`

	Months   int    `json:"months" default:"12" validate:"gte=1,lte=12"`
	Paths    int    `json:"paths" default:"10000" validate:"gte=100,lte=100000"`
	Seed     uint64 `json:"seed"`
	Currency string `json:"currency" default:"USD" validate:"oneof=USD INR"`
}

// StripContract is one priced delivery month within a strip.
type StripContract struct {
	Contract        string  `json:"contract"`
	DeliveryMonth   string  `json:"delivery_month"` // YYYY-MM
	GenerationMWh   float64 `json:"generation_mwh"`
	Price           float64 `json:"price"`
	ExpectedRevenue float64 `json:"expected_revenue"`
	DaysToDelivery  int     `json:"days_to_delivery"`
}

// PortfolioMetrics summarizes the revenue distribution of a contract strip.
type PortfolioMetrics struct {
	MeanRevenue         float64   `json:"mean_revenue"`
	RevenueVolatility   float64   `json:"revenue_volatility"`
	SharpeRatio         float64   `json:"sharpe_ratio"`
	ValueAtRisk95       float64   `json:"value_at_risk_95"`
	ExpectedShortfall95 float64   `json:"expected_shortfall_95"`
	SeasonalPremium     []float64 `json:"seasonal_premium"`
	SolarPriceCorr      float64   `json:"correlation_solar_price"`
}

// StripResponse is the strip endpoint payload.
type StripResponse struct {
	Contracts           []StripContract  `json:"contracts"`
	TotalPortfolioValue float64          `json:"total_portfolio_value"`
	AnnualGenerationMWh float64          `json:"annual_generation_mwh"`
	Portfolio           PortfolioMetrics `json:"portfolio"`
	Risk                *RiskSummary     `json:"risk"`
	Currency            string           `json:"currency"`
	AsOf                time.Time        `json:"as_of"`
	Warnings            []string         `json:"warnings,omitempty"`
}

// QuoteEvent is the message published to the quotes topic after pricing.
type QuoteEvent struct {
	Contract  string    `json:"contract"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	SpotPrice float64   `json:"spot_price"`
	Paths     int       `json:"paths"`
	Seed      uint64    `json:"seed"`
	AsOf      time.Time `json:"as_of"`
}
