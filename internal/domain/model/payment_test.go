package model

import (
	"errors"
	"testing"
	"time"

	"rental-payments/internal/domain"
)

func TestGatewayStateFromCode(t *testing.T) {
	cases := []struct {
		name string
		code int
		want GatewayState
	}{
		{"completed", GatewayCodeCompleted, GatewayStateCompleted},
		{"failed", GatewayCodeFailed, GatewayStateFailed},
		{"reversed", GatewayCodeReversed, GatewayStateFailed},
		{"invalid maps to pending", GatewayCodeInvalid, GatewayStatePending},
		{"unknown positive maps to pending", 42, GatewayStatePending},
		{"unknown negative maps to pending", -1, GatewayStatePending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := GatewayStateFromCode(tc.code); got != tc.want {
				t.Errorf("code %d: expected %q, got %q", tc.code, tc.want, got)
			}
		})
	}
}

func TestPendingPayment_Validate(t *testing.T) {
	t.Run("rejects a missing order id", func(t *testing.T) {
		p := &PendingPayment{Status: PaymentStatusPending, FulfillmentStatus: FulfillmentStatusUnfulfilled}
		if err := p.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("rejects pending and fulfilled together", func(t *testing.T) {
		p := &PendingPayment{
			OrderID:           "RC-1",
			Status:            PaymentStatusPending,
			FulfillmentStatus: FulfillmentStatusFulfilled,
		}
		if err := p.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("accepts the normal states", func(t *testing.T) {
		for _, p := range []*PendingPayment{
			{OrderID: "RC-1", Status: PaymentStatusPending, FulfillmentStatus: FulfillmentStatusUnfulfilled},
			{OrderID: "RC-2", Status: PaymentStatusCompleted, FulfillmentStatus: FulfillmentStatusUnfulfilled},
			{OrderID: "RC-3", Status: PaymentStatusCompleted, FulfillmentStatus: FulfillmentStatusFulfilled},
		} {
			if err := p.Validate(); err != nil {
				t.Errorf("payment %s: expected valid, got %v", p.OrderID, err)
			}
		}
	})
}

func TestPlanDuration(t *testing.T) {
	cases := map[string]time.Duration{
		PlanMonthly:    30 * 24 * time.Hour,
		PlanQuarterly:  90 * 24 * time.Hour,
		PlanSemiAnnual: 182 * 24 * time.Hour,
		PlanAnnual:     365 * 24 * time.Hour,
	}
	for plan, want := range cases {
		got, err := PlanDuration(plan)
		if err != nil {
			t.Errorf("%s: unexpected error %v", plan, err)
			continue
		}
		if got != want {
			t.Errorf("%s: expected %v, got %v", plan, want, got)
		}
	}

	if _, err := PlanDuration("weekly"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("unknown plan must be rejected, got %v", err)
	}
}
