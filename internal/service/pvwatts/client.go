package pvwatts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/anshul202/derivative-api/internal/domain/models"
	drepo "github.com/anshul202/derivative-api/internal/domain/repository"
	pkgcache "github.com/anshul202/derivative-api/pkg/cache"
	xhttp "github.com/anshul202/derivative-api/pkg/http"
	applogger "github.com/anshul202/derivative-api/pkg/logger"
)

// DefaultBaseURL is the NREL PVWatts V8 endpoint.
const DefaultBaseURL = "https://developer.nrel.gov/api/pvwatts/v8.json"

// SystemSpec describes the reference PV system used for generation weighting.
type SystemSpec struct {
	CapacityKW float64
	ModuleType int
	Losses     float64
	ArrayType  int
	Tilt       float64
	Azimuth    float64
}

// DefaultSystem is a 1 MW fixed-tilt reference array.
var DefaultSystem = SystemSpec{
	CapacityKW: 1000,
	ModuleType: 0,
	Losses:     14,
	ArrayType:  1,
	Tilt:       20,
	Azimuth:    180,
}

// Client implements SolarResource against the PVWatts V8 API.
type Client struct {
	apiKey  string
	baseURL string
	system  SystemSpec
	http    *xhttp.Client
	cache   pkgcache.Service
	ttl     time.Duration
	l       *applogger.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithSystem overrides the reference system spec.
func WithSystem(s SystemSpec) Option { return func(c *Client) { c.system = s } }

// WithCache enables profile caching. Monthly climatology changes rarely, so
// long TTLs are safe.
func WithCache(cache pkgcache.Service, ttl time.Duration) Option {
	return func(c *Client) { c.cache = cache; c.ttl = ttl }
}

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option { return func(c *Client) { c.l = l } }

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

// New creates a PVWatts client.
func New(apiKey string, opts ...Option) drepo.SolarResource {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		system:  DefaultSystem,
		http:    xhttp.NewClient(xhttp.WithTimeout(30 * time.Second)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Outputs  struct {
		ACMonthly      []float64 `json:"ac_monthly"`
		ACAnnual       float64   `json:"ac_annual"`
		SolradAnnual   float64   `json:"solrad_annual"`
		CapacityFactor float64   `json:"capacity_factor"`
	} `json:"outputs"`
}

// MonthlyProfile fetches expected monthly AC output for a site.
func (c *Client) MonthlyProfile(ctx context.Context, lat, lon float64) (*models.SolarProfile, error) {
	key := pkgcache.GenerateKeyWithParams("pvwatts:profile", lat, lon, c.system.CapacityKW)
	if c.cache != nil {
		var cached models.SolarProfile
		if err := c.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	var resp apiResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL,
		QueryParams: map[string][]string{
			"api_key":         {c.apiKey},
			"lat":             {formatFloat(lat)},
			"lon":             {formatFloat(lon)},
			"system_capacity": {formatFloat(c.system.CapacityKW)},
			"module_type":     {strconv.Itoa(c.system.ModuleType)},
			"losses":          {formatFloat(c.system.Losses)},
			"array_type":      {strconv.Itoa(c.system.ArrayType)},
			"tilt":            {formatFloat(c.system.Tilt)},
			"azimuth":         {formatFloat(c.system.Azimuth)},
			"timeframe":       {"monthly"},
			"dataset":         {"nsrdb"},
			"radius":          {"100"},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("pvwatts request: %w", err)
	}
	if len(resp.Errors) > 0 {
		// The API reports bad coordinates and parameters here; surface them
		// as a client error rather than a provider failure.
		return nil, xhttp.BadRequestErrorf("pvwatts api errors: %v", resp.Errors)
	}
	if len(resp.Outputs.ACMonthly) != 12 {
		return nil, fmt.Errorf("pvwatts: expected 12 monthly values, got %d", len(resp.Outputs.ACMonthly))
	}
	if c.l != nil && len(resp.Warnings) > 0 {
		c.l.Warn("pvwatts api warnings", applogger.Any("warnings", resp.Warnings))
	}

	monthly := make(map[time.Month]float64, 12)
	for i, v := range resp.Outputs.ACMonthly {
		monthly[time.Month(i+1)] = v
	}
	profile := &models.SolarProfile{
		Latitude:  lat,
		Longitude: lon,
		SystemKW:  c.system.CapacityKW,
		Monthly:   monthly,
		AnnualKWh: resp.Outputs.ACAnnual,
		FetchedAt: time.Now().UTC(),
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, key, profile, c.ttl)
	}
	return profile, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
