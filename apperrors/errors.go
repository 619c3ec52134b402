package apperrors

import (
	"errors"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrGatewayRejected    = errors.New("payment gateway rejected the transaction")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayTimeout     = errors.New("payment gateway timed out")
	ErrSignatureInvalid   = errors.New("invalid webhook signature")
	ErrStoreConflict      = errors.New("ledger store conflict")
	ErrStoreUnavailable   = errors.New("ledger store unavailable")
)

// HTTPStatus maps an error from the taxonomy to its response code.
// Timeout is checked before unavailable since a timeout wraps both.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrGatewayRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrStoreConflict):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrGatewayRejected):
		return "verification_failed"
	case errors.Is(err, ErrGatewayTimeout):
		return "gateway_timeout"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, ErrStoreConflict):
		return "store_conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}
