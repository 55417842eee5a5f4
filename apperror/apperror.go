package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrPolicy     = errors.New("policy violation")
	ErrAuth       = errors.New("authentication failed")
	ErrForbidden  = errors.New("forbidden")
	ErrGateway    = errors.New("payment gateway error")
	ErrConflict   = errors.New("concurrent modification")
)

// GatewayError keeps the provider's response so it can be surfaced to the caller.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	case len(e.Body) > 0:
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("gateway %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGateway, e.Err}
	}
	return []error{ErrGateway}
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Policy(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPolicy, fmt.Sprintf(format, args...))
}

func Auth(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuth, fmt.Sprintf(format, args...))
}

// Forbidden is an authorization failure; it matches both ErrForbidden and ErrAuth.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrForbidden, ErrAuth, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrPolicy):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
