package engine

import "errors"

// Sentinel error kinds for input validation and numerical failures.
// Callers match with errors.Is; wrapped messages carry the offending values.
var (
	ErrInsufficientData     = errors.New("insufficient data")
	ErrDegenerateSeries     = errors.New("degenerate series")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidConfidence    = errors.New("invalid confidence level")
	ErrUnknownMonth         = errors.New("unknown delivery month")
	ErrInvalidFxRate        = errors.New("invalid fx rate")
	ErrNumericalInstability = errors.New("numerical instability")
)

// WarningCode identifies a degraded-fit condition surfaced alongside a result.
type WarningCode string

const (
	WarnClampedSpeed WarningCode = "clamped_mean_reversion_speed"
	WarnPriceFloor   WarningCode = "price_floor_enabled"
)

// Warning is a structured degraded-fit notice. Warnings are not errors: the
// computation succeeded, but the consumer should know the fit or the paths
// were adjusted.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}
