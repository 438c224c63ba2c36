// Package billing holds the subscription lifecycle service and the webhook
// reconciler that keeps local state aligned with the payment gateway.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/billing"
	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/domain/tax"
)

// subscriptionCurrency is the billing currency for recurring plans
const subscriptionCurrency = "cad"

// SubscriptionService manages the household subscription lifecycle against
// the payment gateway.
type SubscriptionService struct {
	households    household.Repository
	subscriptions billing.SubscriptionRepository
	gateway       billing.PaymentGateway
	taxes         *tax.Calculator
	logger        *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(
	households household.Repository,
	subscriptions billing.SubscriptionRepository,
	gateway billing.PaymentGateway,
	taxes *tax.Calculator,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		households:    households,
		subscriptions: subscriptions,
		gateway:       gateway,
		taxes:         taxes,
		logger:        logger,
	}
}

// CreateSubscriptionInput describes a new subscription request
type CreateSubscriptionInput struct {
	HouseholdID     uuid.UUID
	Tier            billing.Tier
	PaymentMethodID string
	// Province overrides the delivery-address province for tax purposes
	Province string
}

// CreateSubscription creates a recurring plan for the household. A household
// with an active subscription is rejected before any gateway call.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*billing.Subscription, error) {
	plan, err := billing.PlanForTier(input.Tier)
	if err != nil {
		return nil, err
	}
	if input.PaymentMethodID == "" {
		return nil, shared.NewDomainError("NO_PAYMENT_METHOD", "Payment method is required")
	}

	h, err := s.households.FindByID(ctx, input.HouseholdID)
	if err != nil {
		return nil, err
	}

	if _, err := s.subscriptions.FindActiveByHousehold(ctx, input.HouseholdID); err == nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrConstraintViolation, billing.ErrActiveSubscriptionExists)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	province := input.Province
	if province == "" {
		province = h.DeliveryAddress.Province()
	}
	rate, recognized := s.taxes.RateFor(province)
	if !recognized {
		s.logger.Warn("Unrecognized province for subscription tax, using default",
			zap.String("province", province),
			zap.String("fallback", tax.DefaultProvince))
	}

	customerID := h.GatewayCustomerID
	if customerID == "" {
		customer, err := s.gateway.CreateCustomer(ctx, billing.CreateCustomerInput{
			HouseholdID: h.ID.String(),
			Email:       h.Email,
			Name:        h.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("create gateway customer: %w", err)
		}
		customerID = customer.ID
		h.GatewayCustomerID = customerID
	}

	if err := s.gateway.AttachPaymentMethod(ctx, customerID, input.PaymentMethodID); err != nil {
		return nil, fmt.Errorf("attach payment method: %w", err)
	}
	h.PaymentMethodID = input.PaymentMethodID
	if err := s.households.Save(ctx, h); err != nil {
		return nil, err
	}

	gatewaySub, err := s.gateway.CreateSubscription(ctx, billing.CreateGatewaySubscriptionInput{
		CustomerID:      customerID,
		PaymentMethodID: input.PaymentMethodID,
		Tier:            plan.Tier.String(),
		Amount:          plan.Amount,
		Currency:        subscriptionCurrency,
		Interval:        string(plan.Interval),
		TaxRate:         rate.Combined(),
		Metadata:        map[string]string{"household_id": h.ID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway subscription: %w", err)
	}

	sub := billing.NewSubscription(h.ID, plan, province, rate.GST, rate.PST)
	sub.GatewayCustomerID = customerID
	sub.GatewaySubID = gatewaySub.ID
	sub.SetPeriod(gatewaySub.CurrentPeriodStart, gatewaySub.CurrentPeriodEnd)

	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("Subscription created",
		zap.String("household_id", h.ID.String()),
		zap.String("tier", plan.Tier.String()),
		zap.String("gateway_sub_id", gatewaySub.ID))
	return sub, nil
}

// UpdateSubscriptionInput describes subscription changes
type UpdateSubscriptionInput struct {
	HouseholdID       uuid.UUID
	NewTier           *billing.Tier
	CancelAtPeriodEnd *bool
}

// UpdateSubscription re-prices the plan (with proration) and/or toggles
// end-of-period cancellation.
func (s *SubscriptionService) UpdateSubscription(ctx context.Context, input UpdateSubscriptionInput) (*billing.Subscription, error) {
	sub, err := s.subscriptions.FindActiveByHousehold(ctx, input.HouseholdID)
	if err != nil {
		return nil, err
	}

	update := billing.UpdateGatewaySubscriptionInput{GatewaySubID: sub.GatewaySubID}

	if input.NewTier != nil {
		plan, err := billing.PlanForTier(*input.NewTier)
		if err != nil {
			return nil, err
		}
		if err := sub.ChangeTier(plan); err != nil {
			return nil, err
		}
		update.NewTier = plan.Tier.String()
		amount := plan.Amount
		update.NewAmount = &amount
	}
	if input.CancelAtPeriodEnd != nil {
		if err := sub.SetCancelAtPeriodEnd(*input.CancelAtPeriodEnd); err != nil {
			return nil, err
		}
		update.CancelAtPeriodEnd = input.CancelAtPeriodEnd
	}

	if update.NewTier == "" && update.CancelAtPeriodEnd == nil {
		return sub, nil
	}

	gatewaySub, err := s.gateway.UpdateSubscription(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("update gateway subscription: %w", err)
	}
	sub.SetPeriod(gatewaySub.CurrentPeriodStart, gatewaySub.CurrentPeriodEnd)

	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelSubscription cancels the plan immediately on the gateway and
// deactivates the local record. No proration is issued.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, householdID uuid.UUID) (*billing.Subscription, error) {
	sub, err := s.subscriptions.FindActiveByHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.CancelSubscription(ctx, sub.GatewaySubID); err != nil {
		return nil, fmt.Errorf("cancel gateway subscription: %w", err)
	}
	sub.Cancel()
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("Subscription cancelled",
		zap.String("household_id", householdID.String()),
		zap.String("gateway_sub_id", sub.GatewaySubID))
	return sub, nil
}

// GetSubscription returns the household's active subscription
func (s *SubscriptionService) GetSubscription(ctx context.Context, householdID uuid.UUID) (*billing.Subscription, error) {
	return s.subscriptions.FindActiveByHousehold(ctx, householdID)
}
