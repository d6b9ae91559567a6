package payments

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/stripe/stripe-go/v84"
)

// Classify maps a processor error to PaymentGateway (transient, retryable) or
// PaymentRequestInvalid (rejected input).
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return apperrors.Wrap(apperrors.KindPaymentGateway, err, op)
	}
	e := apperrors.Wrap(apperrors.KindPaymentRequestInvalid, err, op)
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		e.WithDetail("processor_code", string(stripeErr.Code))
		e.WithDetail("processor_message", stripeErr.Msg)
	}
	return e
}

func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return true
	}
	if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return true
	}
	switch stripeErr.Type {
	case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeCard, stripe.ErrorTypeIdempotency:
		return false
	case stripe.ErrorTypeAPI:
		return true
	}
	return stripeErr.HTTPStatusCode == 0
}
