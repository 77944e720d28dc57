package gateway

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindInvalidRequest     Kind = "InvalidRequest"
	KindConfigurationError Kind = "ConfigurationError"
	KindUpstreamError      Kind = "UpstreamError"
	KindTimeout            Kind = "Timeout"
	KindPolicyRejection    Kind = "PolicyRejection"
	KindDatabaseError      Kind = "DatabaseError"
)

// Error is the caller-facing failure of one request. SQL is set whenever a
// statement had been extracted before the failure.
type Error struct {
	Kind    Kind
	Message string
	Details string
	SQL     string
	Err     error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return string(e.Kind) + ": " + e.Message + ": " + e.Details
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest, KindPolicyRejection:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AsError returns err as a gateway error, classifying unknown errors as
// upstream failures.
func AsError(err error) *Error {
	var gatewayErr *Error
	if errors.As(err, &gatewayErr) {
		return gatewayErr
	}
	return &Error{Kind: KindUpstreamError, Message: "Unexpected error", Details: err.Error(), Err: err}
}

func invalidRequest(details string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: "Invalid request", Details: details}
}
