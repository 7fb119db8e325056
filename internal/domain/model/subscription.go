package model

import (
	"time"

	"rental-payments/internal/domain"
)

type SubjectKind string

const (
	SubjectKindAgent SubjectKind = "agent"
	SubjectKindUser  SubjectKind = "user"
)

// Plan types sold at checkout and their period lengths.
const (
	PlanMonthly    = "monthly"
	PlanQuarterly  = "quarterly"
	PlanSemiAnnual = "semi_annual"
	PlanAnnual     = "annual"
)

var planDurations = map[string]time.Duration{
	PlanMonthly:    30 * 24 * time.Hour,
	PlanQuarterly:  90 * 24 * time.Hour,
	PlanSemiAnnual: 182 * 24 * time.Hour,
	PlanAnnual:     365 * 24 * time.Hour,
}

// PlanDuration returns the subscription period for a plan type.
func PlanDuration(planType string) (time.Duration, error) {
	d, ok := planDurations[planType]
	if !ok {
		return 0, domain.ErrInvalidArgument
	}
	return d, nil
}

// Subscription is one granted subscription period for an agent or user.
type Subscription struct {
	ID          string // UUID
	SubjectID   string
	SubjectKind SubjectKind
	PlanType    string
	StartsAt    time.Time
	ExpiresAt   time.Time
	OrderID     string // payment that bought this period
	CreatedAt   time.Time
}

// CreditBalance is a subject's purchasable credit balance.
type CreditBalance struct {
	SubjectID string
	Credits   int64
	UpdatedAt time.Time
}
