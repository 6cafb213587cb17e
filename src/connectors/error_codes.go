package connectors

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient means no information was obtained; retry next cycle.
	ErrTransient = errors.New("exchange transient error")
	// ErrRejected means the exchange refused the request; do not retry blindly.
	ErrRejected = errors.New("exchange rejected request")
	// ErrPrecision is a rejection caused by price or size granularity.
	ErrPrecision = fmt.Errorf("%w: precision", ErrRejected)
	// ErrNotFound means the exchange has no order for the given id.
	ErrNotFound = errors.New("order not found")
	// ErrNotCancellable means the order already reached a final state.
	ErrNotCancellable = fmt.Errorf("%w: order already final", ErrRejected)
)

// OKXErrorCodes maps the OKX v5 codes this client classifies.
var OKXErrorCodes = map[string]string{
	"50001": "SERVICE_UNAVAILABLE",
	"50004": "API_ENDPOINT_TIMEOUT",
	"50011": "RATE_LIMIT_REACHED",
	"50013": "SYSTEM_BUSY",
	"50026": "SYSTEM_ERROR",
	"51000": "PARAMETER_ERROR",
	"51008": "INSUFFICIENT_BALANCE",
	"51020": "ORDER_AMOUNT_BELOW_MIN",
	"51121": "SIZE_NOT_LOT_MULTIPLE",
	"51400": "CANCEL_FAILED_ORDER_DONE",
	"51401": "CANCEL_FAILED_ALREADY_CANCELED",
	"51402": "CANCEL_FAILED_ORDER_COMPLETED",
	"51603": "ORDER_DOES_NOT_EXIST",
}

var (
	transientCodes = map[string]bool{"50001": true, "50004": true, "50011": true, "50013": true, "50026": true, "51008": true}
	precisionCodes = map[string]bool{"51000": true, "51020": true, "51121": true}
	notFoundCodes  = map[string]bool{"51603": true}
	finalCodes     = map[string]bool{"51400": true, "51401": true, "51402": true}
)

// GetErrorMsg returns a label for a given OKX code.
func GetErrorMsg(code string) string {
	if msg, ok := OKXErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_OKX_ERROR_%s", code)
}

// APIError is a non-zero OKX response code.
type APIError struct {
	Code string
	Msg  string
	kind error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("okx error code=%s (%s) msg=%s", e.Code, GetErrorMsg(e.Code), e.Msg)
}

func (e *APIError) Unwrap() error { return e.kind }

func newAPIError(code, msg string) *APIError {
	return &APIError{Code: code, Msg: msg, kind: classifyCode(code)}
}

func classifyCode(code string) error {
	switch {
	case transientCodes[code]:
		return ErrTransient
	case precisionCodes[code]:
		return ErrPrecision
	case notFoundCodes[code]:
		return ErrNotFound
	case finalCodes[code]:
		return ErrNotCancellable
	default:
		return ErrRejected
	}
}

func isTransientCode(code string) bool {
	return transientCodes[code]
}
