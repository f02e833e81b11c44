package apiclient

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies backend failures the way the UI reacts to them.
type Kind string

const (
	KindNetwork       Kind = "NETWORK_ERROR"
	KindValidation    Kind = "VALIDATION_ERROR"
	KindAuthorization Kind = "AUTHORIZATION_ERROR"
	KindNotFound      Kind = "NOT_FOUND"
	KindServer        Kind = "SERVER_ERROR"
	KindTimeout       Kind = "TIMEOUT_ERROR"
)

// APIError carries the HTTP status, its kind, and the server message.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
}

func classify(status int, message string) *APIError {
	kind := KindServer
	switch {
	case status == 0:
		kind = KindNetwork
	case status == 400:
		kind = KindValidation
	case status == 401 || status == 403:
		kind = KindAuthorization
	case status == 404:
		kind = KindNotFound
	}
	return &APIError{Kind: kind, Status: status, Message: message}
}

// KindOf extracts the kind from an error chain, KindServer when unknown.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindServer
}

// IsNotFound reports an HTTP 404 from the backend.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsAuthorization reports a 401/403, which forces a re-login.
func IsAuthorization(err error) bool {
	return KindOf(err) == KindAuthorization
}

// IsNonUniqueResult matches the 500 signature the backend emits when a
// session owns several active carts. Callers fall back to the local cache.
func IsNonUniqueResult(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return apiErr.Status == 500 &&
		(strings.Contains(msg, "non-unique result") || strings.Contains(msg, "non unique result"))
}

// PaymentFailure sub-classifies validation errors from the payment
// endpoints by server message substring.
type PaymentFailure string

const (
	PaymentCodeInvalid PaymentFailure = "code_invalid"
	PaymentCodeExpired PaymentFailure = "code_expired"
	PaymentMaxAttempts PaymentFailure = "max_attempts"
	PaymentMaxResends  PaymentFailure = "max_resends"
	PaymentUnknown     PaymentFailure = "unknown"
)

// PaymentFailureOf maps a payment validation error to its sub-case.
func PaymentFailureOf(err error) PaymentFailure {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindValidation {
		return PaymentUnknown
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "expir"):
		return PaymentCodeExpired
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "incorrect"):
		return PaymentCodeInvalid
	case strings.Contains(msg, "resend") || strings.Contains(msg, "renvoi"):
		return PaymentMaxResends
	case strings.Contains(msg, "attempt") || strings.Contains(msg, "tentative"):
		return PaymentMaxAttempts
	}
	return PaymentUnknown
}
