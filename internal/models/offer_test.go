package models

import (
	"testing"
	"time"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{OfferStatusDraft, OfferStatusSent, true},
		{OfferStatusSent, OfferStatusAccepted, true},
		{OfferStatusAccepted, OfferStatusInProgress, true},
		{OfferStatusInProgress, OfferStatusDelivered, true},
		{OfferStatusDelivered, OfferStatusCompleted, true},
		{OfferStatusDelivered, OfferStatusDisputed, true},

		// Exits
		{OfferStatusSent, OfferStatusRejected, true},
		{OfferStatusSent, OfferStatusCancelled, true},
		{OfferStatusAccepted, OfferStatusCancelled, true},

		// Invalid transitions
		{OfferStatusDraft, OfferStatusAccepted, false},
		{OfferStatusSent, OfferStatusInProgress, false},
		{OfferStatusAccepted, OfferStatusRejected, false},
		{OfferStatusAccepted, OfferStatusSent, false},
		{OfferStatusInProgress, OfferStatusCompleted, false},
		{OfferStatusInProgress, OfferStatusCancelled, false},
		{OfferStatusRejected, OfferStatusAccepted, false},
		{OfferStatusCompleted, OfferStatusCancelled, false},
		{OfferStatusCancelled, OfferStatusSent, false},
		{"nonexistent", OfferStatusSent, false},
		{OfferStatusDraft, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		OfferStatusDraft, OfferStatusSent, OfferStatusAccepted, OfferStatusRejected,
		OfferStatusInProgress, OfferStatusDelivered, OfferStatusCompleted,
		OfferStatusCancelled, OfferStatusDisputed, OfferStatusPaid,
	}

	for _, status := range allStatuses {
		if _, ok := ValidOfferTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidOfferTransitions map", status)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{OfferStatusRejected, OfferStatusCompleted, OfferStatusCancelled}
	for _, status := range terminal {
		transitions := ValidOfferTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}

func TestRefundCancellable(t *testing.T) {
	for _, s := range []string{OfferStatusInProgress, OfferStatusDelivered, OfferStatusDisputed, OfferStatusAccepted} {
		if !IsRefundCancellable(s) {
			t.Errorf("%q should be cancellable by refund", s)
		}
	}
	for _, s := range []string{OfferStatusSent, OfferStatusCompleted, OfferStatusCancelled, OfferStatusRejected} {
		if IsRefundCancellable(s) {
			t.Errorf("%q should not be cancellable by refund", s)
		}
	}
}

func TestOfferIsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		status    string
		expiresAt time.Time
		want      bool
	}{
		{"sent past expiry", OfferStatusSent, past, true},
		{"sent before expiry", OfferStatusSent, future, false},
		{"accepted past expiry", OfferStatusAccepted, past, true},
		{"in progress ignores expiry", OfferStatusInProgress, past, false},
		{"zero expiry never expires", OfferStatusSent, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Offer{Status: tt.status, ExpiresAt: tt.expiresAt}
			if got := o.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCurrencies(t *testing.T) {
	if NormalizeCurrency(" USD ") != CurrencyUSD {
		t.Error("currency should be lowercased and trimmed")
	}
	if NormalizeCurrency("") != CurrencyUSD {
		t.Error("empty currency should default to usd")
	}
	if IsSupportedCurrency("jpy") {
		t.Error("jpy is not supported")
	}
	for _, c := range SupportedCurrencies {
		if !IsSupportedCurrency(c) {
			t.Errorf("%q should be supported", c)
		}
	}
}

func TestDemoOffer(t *testing.T) {
	if !IsDemoOfferID("demo-offer-123") {
		t.Error("expected demo prefix to match")
	}
	if IsDemoOfferID("9b2f0d4e-demo-offer-") {
		t.Error("prefix must be at the start")
	}
	d := NewDemoOffer("demo-offer-123")
	if !d.Demo || d.Status != OfferStatusSent || d.Price.String() != "99" {
		t.Errorf("unexpected demo offer: %+v", d)
	}
}
