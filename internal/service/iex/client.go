package iex

import (
	"context"
	"time"

	"github.com/anshul202/derivative-api/internal/domain/models"
	drepo "github.com/anshul202/derivative-api/internal/domain/repository"
	pkgcache "github.com/anshul202/derivative-api/pkg/cache"
	xhttp "github.com/anshul202/derivative-api/pkg/http"
	applogger "github.com/anshul202/derivative-api/pkg/logger"
)

const (
	// DefaultBaseURL is the IEX India real-time market snapshot feed.
	DefaultBaseURL = "https://www.iexindia.com/api/market-data/real-time-market/market-snapshot"

	// DefaultFallbackRsMWh approximates the long-run average market
	// clearing price when the feed is unreachable.
	DefaultFallbackRsMWh = 3000.0

	cacheKey = "iex:spot"
)

// Client implements MarketData against the IEX India real-time market feed.
// Responses are cached; market clearing prices settle in 15-minute blocks so
// a short TTL loses nothing.
type Client struct {
	baseURL  string
	fallback float64
	http     *xhttp.Client
	cache    pkgcache.Service
	ttl      time.Duration
	metrics  drepo.Metrics
	l        *applogger.Logger
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the feed endpoint.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithFallbackPrice overrides the Rs/MWh fallback.
func WithFallbackPrice(p float64) Option { return func(c *Client) { c.fallback = p } }

// WithCache enables spot price caching.
func WithCache(cache pkgcache.Service, ttl time.Duration) Option {
	return func(c *Client) { c.cache = cache; c.ttl = ttl }
}

// WithMetrics records provider failures.
func WithMetrics(m drepo.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option { return func(c *Client) { c.l = l } }

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d)) }
}

// New creates an IEX market data client.
func New(opts ...Option) drepo.MarketData {
	c := &Client{
		baseURL:  DefaultBaseURL,
		fallback: DefaultFallbackRsMWh,
		http:     xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		ttl:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type snapshot struct {
	AvgMCP float64 `json:"avg_mcp"` // Rs/MWh across the day's blocks
	Blocks []struct {
		MCP float64 `json:"mcp"`
	} `json:"blocks"`
}

// SpotPrice returns the current market clearing price in Rs/MWh. A stale or
// unreachable feed degrades to the fallback price rather than failing the
// pricing request.
func (c *Client) SpotPrice(ctx context.Context) (*models.SpotPrice, error) {
	if c.cache != nil {
		var cached models.SpotPrice
		if err := c.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	var snap snapshot
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL,
		Headers: map[string]string{
			"Accept": "application/json",
		},
	}, &snap)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordProviderError("iex")
		}
		if c.l != nil {
			c.l.Warn("iex feed unavailable, using fallback price",
				applogger.Error(err),
				applogger.Float64("fallback_rs_mwh", c.fallback),
			)
		}
		return c.fallbackPrice(), nil
	}

	mcp := snap.AvgMCP
	if mcp <= 0 && len(snap.Blocks) > 0 {
		// Most recent settled block when no daily average is published yet.
		mcp = snap.Blocks[len(snap.Blocks)-1].MCP
	}
	if mcp <= 0 {
		if c.metrics != nil {
			c.metrics.RecordProviderError("iex")
		}
		return c.fallbackPrice(), nil
	}

	spot := &models.SpotPrice{
		Price:     mcp,
		Currency:  "INR",
		Source:    "iex",
		Timestamp: time.Now().UTC(),
	}
	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, spot, c.ttl)
	}
	return spot, nil
}

func (c *Client) fallbackPrice() *models.SpotPrice {
	return &models.SpotPrice{
		Price:     c.fallback,
		Currency:  "INR",
		Source:    "fallback",
		Timestamp: time.Now().UTC(),
	}
}
