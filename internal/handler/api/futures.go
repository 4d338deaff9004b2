package api

import (
	"errors"
	"net/http"

	models "github.com/anshul202/derivative-api/internal/domain/models"
	"github.com/anshul202/derivative-api/internal/engine"
	"github.com/anshul202/derivative-api/internal/service/ratelimit"
	"github.com/anshul202/derivative-api/internal/usecase"
	xhttp "github.com/anshul202/derivative-api/pkg/http"
	xlogger "github.com/anshul202/derivative-api/pkg/logger"

	"github.com/labstack/echo/v4"
)

// FuturesHandler exposes the pricing engine over HTTP.
type FuturesHandler struct {
	logger  *xlogger.Logger
	pricing *usecase.PricingService
	limiter *ratelimit.Limiter

	// simulation requests allowed per client IP
	rateCapacity float64
	ratePerSec   float64
}

// NewFuturesHandler creates the pricing API handler.
func NewFuturesHandler(logger *xlogger.Logger, pricing *usecase.PricingService) *FuturesHandler {
	return &FuturesHandler{
		logger:       logger,
		pricing:      pricing,
		limiter:      ratelimit.New(),
		rateCapacity: 10,
		ratePerSec:   0.5,
	}
}

func (h *FuturesHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.POST("/futures/electricity", h.PriceFutures)
	g.POST("/futures/strip", h.PriceStrip)
	g.GET("/market-data", h.MarketData)
	g.GET("/solar/output", h.SolarOutput)
}

// PriceFutures prices one monthly delivery contract via Monte Carlo.
func (h *FuturesHandler) PriceFutures(c echo.Context) error {
	if !h.limiter.Allow(c.RealIP(), h.rateCapacity, h.ratePerSec) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	req := &models.FuturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.pricing.PriceFutures(c.Request().Context(), req)
	if err != nil {
		return h.engineError(c, "price futures", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// PriceStrip prices a strip of consecutive monthly contracts from one
// simulation and reports portfolio revenue risk.
func (h *FuturesHandler) PriceStrip(c echo.Context) error {
	if !h.limiter.Allow(c.RealIP(), h.rateCapacity, h.ratePerSec) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
	}

	req := &models.StripRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.pricing.PriceStrip(c.Request().Context(), req)
	if err != nil {
		return h.engineError(c, "price strip", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// MarketData returns the current electricity spot price snapshot.
func (h *FuturesHandler) MarketData(c echo.Context) error {
	res, err := h.pricing.MarketSnapshot(c.Request().Context())
	if err != nil {
		h.logger.Error("market data error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

// SolarOutput returns the monthly generation profile for a site.
func (h *FuturesHandler) SolarOutput(c echo.Context) error {
	req := &models.SolarOutputRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.pricing.SolarOutput(c.Request().Context(), req.Latitude, req.Longitude)
	if err != nil {
		h.logger.Error("solar output error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Health reports liveness.
func (h *FuturesHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// engineError maps engine sentinel errors onto HTTP statuses.
func (h *FuturesHandler) engineError(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, engine.ErrInvalidConfiguration),
		errors.Is(err, engine.ErrInvalidConfidence),
		errors.Is(err, engine.ErrUnknownMonth),
		errors.Is(err, engine.ErrInvalidFxRate),
		errors.Is(err, engine.ErrInsufficientData),
		errors.Is(err, engine.ErrDegenerateSeries):
		return xhttp.BadRequestResponse(c, err.Error())
	case errors.Is(err, engine.ErrNumericalInstability):
		h.logger.Error(op+" numerical instability", xlogger.Error(err))
		return xhttp.DataResponse(c, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error(op+" error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
}
