package apperrors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindNotFound               Kind = "NOT_FOUND"
	KindForbidden              Kind = "FORBIDDEN"
	KindInvalidState           Kind = "INVALID_STATE"
	KindInvalidStatus          Kind = "INVALID_STATUS"
	KindConcurrentModification Kind = "CONCURRENT_MODIFICATION"
	KindPaymentGateway         Kind = "PAYMENT_GATEWAY_ERROR"
	KindPaymentRequestInvalid  Kind = "PAYMENT_REQUEST_INVALID"
	KindSignatureInvalid       Kind = "SIGNATURE_INVALID"
	KindRefundFailed           Kind = "REFUND_FAILED"
	KindInternal               Kind = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByKind = map[Kind]Metadata{
	KindValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	KindNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	KindForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
	},
	KindInvalidState: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "operation not allowed in current state",
		DetailsAllowed: true,
	},
	KindInvalidStatus: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid status",
		DetailsAllowed: true,
	},
	KindConcurrentModification: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "resource was modified concurrently",
	},
	KindPaymentGateway: {
		HTTPStatus:    http.StatusBadGateway,
		Retryable:     true,
		PublicMessage: "payment provider unavailable",
	},
	KindPaymentRequestInvalid: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "payment request rejected",
		DetailsAllowed: true,
	},
	KindSignatureInvalid: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "invalid webhook signature",
	},
	KindRefundFailed: {
		HTTPStatus:     http.StatusBadGateway,
		PublicMessage:  "refund failed",
		DetailsAllowed: true,
	},
	KindInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
}

func MetadataFor(kind Kind) Metadata {
	if meta, ok := metadataByKind[kind]; ok {
		return meta
	}
	return metadataByKind[KindInternal]
}

// Error is the typed error returned by the lifecycle, payment and webhook services.
type Error struct {
	kind    Kind
	message string
	details map[string]any
	cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return New(kind, message)
	}
	return &Error{kind: kind, message: message, cause: err}
}

func (e *Error) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetail attaches a key to the error details and returns the same error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e == nil {
		return nil
	}
	if e.details == nil {
		e.details = map[string]any{}
	}
	e.details[key] = value
	return e
}

func (e *Error) WithDetails(details map[string]any) *Error {
	if e == nil {
		return nil
	}
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func (e *Error) Retryable() bool {
	return MetadataFor(e.Kind()).Retryable
}

// As extracts an *Error from the chain.
func As(err error) *Error {
	var target *Error
	if stdErrors.As(err, &target) {
		return target
	}
	return nil
}

// KindOf reports the kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e := As(err); e != nil {
		return e.kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Constructors for the common kinds.

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(entity string) *Error {
	return Newf(KindNotFound, "%s not found", entity).WithDetail("entity", entity)
}

func Forbidden(message string) *Error { return New(KindForbidden, message) }

// InvalidState reports an operation attempted from a status that does not allow it.
func InvalidState(entity, current, message string) *Error {
	return Newf(KindInvalidState, "%s is %s: %s", entity, current, message).
		WithDetail("entity", entity).
		WithDetail("current_status", current)
}

func InvalidStatus(status string, allowed []string) *Error {
	return Newf(KindInvalidStatus, "status %q is not allowed, allowed values: %v", status, allowed).
		WithDetails(map[string]any{"status": status, "allowed": allowed})
}

func ConcurrentModification(entity string) *Error {
	return Newf(KindConcurrentModification, "%s was modified concurrently", entity).WithDetail("entity", entity)
}
