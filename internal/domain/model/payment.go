package model

import (
	"time"

	"rental-payments/internal/domain"
)

type PaymentType string

const (
	PaymentTypeAgentSubscription PaymentType = "agent_subscription"
	PaymentTypeUserSubscription  PaymentType = "user_subscription"
	PaymentTypeCreditPurchase    PaymentType = "credit_purchase"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // awaiting gateway confirmation
	PaymentStatusCompleted PaymentStatus = "completed" // gateway confirmed; never reverts
)

type FulfillmentStatus string

const (
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentStatusFulfilled   FulfillmentStatus = "fulfilled"
)

// PaymentMetadata is what the payer was promised at checkout time. It is the
// authoritative input to fulfillment and is covered by the integrity tag;
// never rebuild it from request data.
type PaymentMetadata struct {
	Type      PaymentType `json:"type"`
	SubjectID string      `json:"subject_id"`
	PlanType  string      `json:"plan_type,omitempty"`
	Credits   int64       `json:"credits,omitempty"`
	Amount    float64     `json:"amount"`
	Email     string      `json:"email,omitempty"`
}

// Pesapal transaction status codes.
const (
	GatewayCodeInvalid   = 0
	GatewayCodeCompleted = 1
	GatewayCodeFailed    = 2
	GatewayCodeReversed  = 3
)

type GatewayState string

const (
	GatewayStateCompleted GatewayState = "completed"
	GatewayStatePending   GatewayState = "pending"
	GatewayStateFailed    GatewayState = "failed"
)

// GatewayStateFromCode maps a Pesapal status code to our interpretation.
// Unrecognized codes map to pending, never to completed.
func GatewayStateFromCode(code int) GatewayState {
	switch code {
	case GatewayCodeCompleted:
		return GatewayStateCompleted
	case GatewayCodeFailed, GatewayCodeReversed:
		return GatewayStateFailed
	default:
		return GatewayStatePending
	}
}

// GatewayStatusSnapshot is the raw gateway answer for a tracking id, cached
// on the payment row once the success transition happens.
type GatewayStatusSnapshot struct {
	StatusCode       int     `json:"status_code"`
	Description      string  `json:"payment_status_description,omitempty"`
	Amount           float64 `json:"amount"`
	PaymentMethod    string  `json:"payment_method,omitempty"`
	ConfirmationCode string  `json:"confirmation_code,omitempty"`
	CreatedDate      string  `json:"created_date,omitempty"`
}

func (s *GatewayStatusSnapshot) State() GatewayState {
	return GatewayStateFromCode(s.StatusCode)
}

// FulfillmentReceipt records the domain grant for audit and idempotency
// evidence. Stored as JSONB on the payment row.
type FulfillmentReceipt struct {
	ID               string      `json:"id"` // ULID
	OrderID          string      `json:"order_id"`
	Type             PaymentType `json:"type"`
	SubjectID        string      `json:"subject_id"`
	PlanType         string      `json:"plan_type,omitempty"`
	Credits          int64       `json:"credits,omitempty"`
	SubscriptionID   string      `json:"subscription_id,omitempty"`
	PeriodStart      *time.Time  `json:"period_start,omitempty"`
	PeriodEnd        *time.Time  `json:"period_end,omitempty"`
	ConfirmationCode string      `json:"confirmation_code,omitempty"`
	GrantedAt        time.Time   `json:"granted_at"`
}

// PendingPayment is one checkout attempt. Created by the checkout
// collaborator; owned by this core from then on.
type PendingPayment struct {
	OrderID           string  // merchant-generated, unique
	OrderTrackingID   *string // gateway-issued, set once known
	Metadata          PaymentMetadata
	Signature         string // HMAC over Metadata, computed at checkout
	Status            PaymentStatus
	FulfillmentStatus FulfillmentStatus
	GatewayStatus     *GatewayStatusSnapshot
	Receipt           *FulfillmentReceipt
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
	FulfilledAt       *time.Time
}

// Validate rejects the impossible state combination. A payment cannot be
// fulfilled before the gateway confirmed it.
func (p *PendingPayment) Validate() error {
	if p.OrderID == "" {
		return domain.ErrInvalidArgument
	}
	if p.Status == PaymentStatusPending && p.FulfillmentStatus == FulfillmentStatusFulfilled {
		return domain.ErrInvalidArgument
	}
	return nil
}

// PaymentFacts are the gateway-confirmed facts handed to fulfillment.
type PaymentFacts struct {
	Amount           float64
	PaymentMethod    string
	ConfirmationCode string
	PaidAt           time.Time
}
