package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies gateway failures for HTTP mapping and retry policy.
type ErrorKind string

const (
	ErrValidation        ErrorKind = "validation"
	ErrUnsupported       ErrorKind = "unsupported"
	ErrNotFound          ErrorKind = "not-found"
	ErrUpstream          ErrorKind = "upstream-api"
	ErrNetwork           ErrorKind = "network"
	ErrQuoteExpired      ErrorKind = "quote-expired"
	ErrInsufficientFunds ErrorKind = "insufficient-funds"
	ErrGasEstimation     ErrorKind = "gas-estimation"
	ErrSlippage          ErrorKind = "slippage"
	ErrDeadline          ErrorKind = "deadline"
	ErrNonce             ErrorKind = "nonce"
	ErrReplacement       ErrorKind = "replacement"
	ErrInternal          ErrorKind = "internal"
)

// Error is the gateway error type. Detail carries upstream context that is
// safe to return to callers; signing secrets must never reach it.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Status  int // upstream HTTP status, when Kind == ErrUpstream
	wrapped error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.wrapped }

// NewError builds a classified error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError classifies an existing error without losing its chain.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	e := &Error{Kind: kind, Message: msg, wrapped: err}
	if err != nil {
		e.Detail = err.Error()
	}
	return e
}

// UpstreamError classifies a non-2xx aggregator response by status code.
func UpstreamError(provider string, status int, body string) *Error {
	kind := ErrUpstream
	switch status {
	case http.StatusNotFound:
		kind = ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = ErrValidation
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf("%s returned %d", provider, status),
		Detail:  body,
		Status:  status,
	}
}

// KindOf extracts the kind of a classified error, ErrInternal otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

// Retryable reports whether the adapter layer may retry the call.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == ErrNetwork || (e.Kind == ErrUpstream && (e.Status == http.StatusTooManyRequests || e.Status >= 500))
}

// HTTPStatus maps an error kind to the response status of the gateway API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrValidation, ErrUnsupported, ErrInsufficientFunds, ErrSlippage, ErrDeadline:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream, ErrNetwork, ErrQuoteExpired:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
