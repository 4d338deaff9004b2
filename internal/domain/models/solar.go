package models

import "time"

// SolarProfile is the expected monthly AC output of a reference system at a
// site, as returned by an irradiance model. Output units are kWh per month.
type SolarProfile struct {
	Latitude  float64                `json:"latitude"`
	Longitude float64                `json:"longitude"`
	SystemKW  float64                `json:"system_kw"`
	Monthly   map[time.Month]float64 `json:"monthly_kwh"`
	AnnualKWh float64                `json:"annual_kwh"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// SpotPrice is one observed exchange price for electricity.
type SpotPrice struct {
	Price     float64   `json:"price"` // per MWh
	Currency  string    `json:"currency"`
	Source    string    `json:"source"` // "iex" or "fallback"
	Timestamp time.Time `json:"timestamp"`
}

// HistoryPoint is one historical price observation from storage.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}
