package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	// Business failures surfaced synchronously to callers.
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeStockUnavailable      Code = "STOCK_UNAVAILABLE"
	CodeSerialAlreadyExported Code = "SERIAL_ALREADY_EXPORTED"
	CodeOverRefund            Code = "OVER_REFUND"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeInsufficientBalance   Code = "INSUFFICIENT_BALANCE"

	// Absorbed by webhook intake; logged, never returned to the gateway.
	CodeDuplicateGatewayEvent Code = "DUPLICATE_GATEWAY_EVENT"

	// Fatal data inconsistency; queued for reconciliation.
	CodeIntegrityViolation Code = "INTEGRITY_VIOLATION"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeUnauthorized: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "forbidden",
	},
	CodeIdempotency: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "idempotency key reused",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "concurrent modification detected",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeInvalidArgument: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid argument",
		DetailsAllowed: true,
	},
	CodeStockUnavailable: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "stock unavailable",
		DetailsAllowed: true,
	},
	CodeSerialAlreadyExported: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "serial already exported",
		DetailsAllowed: true,
	},
	CodeOverRefund: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "refund exceeds exported quantity",
		DetailsAllowed: true,
	},
	CodeInvalidTransition: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeInsufficientBalance: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "insufficient available balance",
		DetailsAllowed: true,
	},
	CodeDuplicateGatewayEvent: {
		HTTPStatus:    http.StatusOK,
		PublicMessage: "event already processed",
	},
	CodeIntegrityViolation: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "data integrity violation",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// PublicCodes lists codes whose message is safe to show to API callers verbatim.
func PublicCodes() []Code {
	return []Code{
		CodeValidation,
		CodeUnauthorized,
		CodeForbidden,
		CodeIdempotency,
		CodeNotFound,
		CodeConflict,
		CodeInvalidArgument,
		CodeStockUnavailable,
		CodeSerialAlreadyExported,
		CodeOverRefund,
		CodeInvalidTransition,
		CodeInsufficientBalance,
	}
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf formats message before building the error.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	for err != nil {
		if typed, ok := err.(*Error); ok && typed != nil && typed.code == code {
			return true
		}
		err = stdErrors.Unwrap(err)
	}
	return false
}
