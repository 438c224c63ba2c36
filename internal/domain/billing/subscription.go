package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/littleloop/backend/internal/domain/shared"
)

// Subscription errors
var (
	ErrActiveSubscriptionExists = errors.New("billing: household already has an active subscription")
	ErrSubscriptionNotActive    = errors.New("billing: subscription is not active")
	ErrUnknownTier              = errors.New("billing: unknown subscription tier")
)

// Tier identifies a billing tier
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierFamily  Tier = "family"
)

// IsValid returns true if the tier is a known tier
func (t Tier) IsValid() bool {
	switch t {
	case TierBasic, TierPremium, TierFamily:
		return true
	}
	return false
}

// String returns the string representation of Tier
func (t Tier) String() string {
	return string(t)
}

// BillingInterval is the recurrence of a subscription charge
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "month"
)

// TierPlan maps a tier to its recurring amount, interval and feature set
type TierPlan struct {
	Tier     Tier
	Amount   decimal.Decimal
	Interval BillingInterval
	Features []string
}

// tierPlans is the fixed tier catalogue
var tierPlans = map[Tier]TierPlan{
	TierBasic: {
		Tier:     TierBasic,
		Amount:   decimal.NewFromFloat(24.99),
		Interval: IntervalMonthly,
		Features: []string{"auto_reorder", "forecasting"},
	},
	TierPremium: {
		Tier:     TierPremium,
		Amount:   decimal.NewFromFloat(39.99),
		Interval: IntervalMonthly,
		Features: []string{"auto_reorder", "forecasting", "size_change_alerts", "priority_shipping"},
	},
	TierFamily: {
		Tier:     TierFamily,
		Amount:   decimal.NewFromFloat(54.99),
		Interval: IntervalMonthly,
		Features: []string{"auto_reorder", "forecasting", "size_change_alerts", "priority_shipping", "multi_child"},
	},
}

// PlanForTier resolves a tier to its plan definition
func PlanForTier(tier Tier) (TierPlan, error) {
	plan, ok := tierPlans[tier]
	if !ok {
		return TierPlan{}, ErrUnknownTier
	}
	return plan, nil
}

// SubscriptionStatus is the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// IsValid returns true if the status is valid
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// Subscription is a household's recurring plan. At most one may be active
// per household; cancellation is a soft state change, never a hard delete.
type Subscription struct {
	shared.BaseEntity
	HouseholdID        uuid.UUID
	Tier               Tier
	Status             SubscriptionStatus
	Interval           BillingInterval
	Amount             decimal.Decimal
	// Tax rates are snapshotted at creation so later table changes never
	// reprice an existing plan.
	TaxRateGST         decimal.Decimal
	TaxRatePST         decimal.Decimal
	Province           string
	Features           []string
	GatewayCustomerID  string
	GatewaySubID       string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CancelledAt        *time.Time
}

// NewSubscription creates an active subscription for a household
func NewSubscription(householdID uuid.UUID, plan TierPlan, province string, gstRate, pstRate decimal.Decimal) *Subscription {
	return &Subscription{
		BaseEntity: shared.NewBaseEntity(),
		HouseholdID: householdID,
		Tier:        plan.Tier,
		Status:      SubscriptionStatusActive,
		Interval:    plan.Interval,
		Amount:      plan.Amount,
		TaxRateGST:  gstRate,
		TaxRatePST:  pstRate,
		Province:    province,
		Features:    plan.Features,
	}
}

// IsActive returns true while the subscription is billable
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusPastDue
}

// HasFeature reports whether the subscription's tier carries a feature
func (s *Subscription) HasFeature(feature string) bool {
	for _, f := range s.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// SetPeriod snapshots the current billing period bounds
func (s *Subscription) SetPeriod(start, end time.Time) {
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = end
	s.Touch()
}

// ChangeTier re-prices the subscription to a new tier plan
func (s *Subscription) ChangeTier(plan TierPlan) error {
	if !s.IsActive() {
		return ErrSubscriptionNotActive
	}
	s.Tier = plan.Tier
	s.Amount = plan.Amount
	s.Interval = plan.Interval
	s.Features = plan.Features
	s.Touch()
	return nil
}

// SetCancelAtPeriodEnd toggles end-of-period cancellation and stamps
// CancelledAt when enabling it
func (s *Subscription) SetCancelAtPeriodEnd(cancel bool) error {
	if !s.IsActive() {
		return ErrSubscriptionNotActive
	}
	s.CancelAtPeriodEnd = cancel
	if cancel {
		now := time.Now()
		s.CancelledAt = &now
	} else {
		s.CancelledAt = nil
	}
	s.Touch()
	return nil
}

// Cancel deactivates the subscription immediately
func (s *Subscription) Cancel() {
	if s.Status == SubscriptionStatusCanceled {
		return
	}
	s.Status = SubscriptionStatusCanceled
	now := time.Now()
	s.CancelledAt = &now
	s.Touch()
}

// MarkPastDue flags the subscription after a failed recurring payment
func (s *Subscription) MarkPastDue() {
	if s.Status == SubscriptionStatusActive {
		s.Status = SubscriptionStatusPastDue
		s.Touch()
	}
}

// MarkActive restores the subscription after a successful payment
func (s *Subscription) MarkActive() {
	if s.Status == SubscriptionStatusPastDue {
		s.Status = SubscriptionStatusActive
		s.Touch()
	}
}

// CombinedTaxRate returns the snapshotted GST+PST rate
func (s *Subscription) CombinedTaxRate() decimal.Decimal {
	return s.TaxRateGST.Add(s.TaxRatePST)
}

// SubscriptionRepository provides persistence for subscriptions
type SubscriptionRepository interface {
	Save(ctx context.Context, sub *Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// FindActiveByHousehold returns the household's active subscription or
	// shared.ErrNotFound
	FindActiveByHousehold(ctx context.Context, householdID uuid.UUID) (*Subscription, error)
	FindByGatewaySubID(ctx context.Context, gatewaySubID string) (*Subscription, error)
	FindByGatewayCustomerID(ctx context.Context, gatewayCustomerID string) (*Subscription, error)
}
