package payment

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/paymentmethod"
	"github.com/stripe/stripe-go/v81/refund"
	"github.com/stripe/stripe-go/v81/subscription"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/billing"
)

// centsPerDollar converts decimal amounts to Stripe's minor units
const centsPerDollar = 100

// StripeAdapter implements billing.PaymentGateway on the Stripe API
type StripeAdapter struct {
	config *StripeConfig
	logger *zap.Logger
}

var _ billing.PaymentGateway = (*StripeAdapter)(nil)

// NewStripeAdapter creates a new Stripe adapter
func NewStripeAdapter(config *StripeConfig, logger *zap.Logger) (*StripeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.InitStripeClient()

	return &StripeAdapter{
		config: config,
		logger: logger,
	}, nil
}

// toCents converts a decimal dollar amount to Stripe minor units
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(centsPerDollar)).Round(0).IntPart()
}

// fromCents converts Stripe minor units back to a decimal dollar amount
func fromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(centsPerDollar))
}

// ---------------------------------------------------------------------------
// Customer Operations
// ---------------------------------------------------------------------------

// CreateCustomer creates a new customer in Stripe
func (a *StripeAdapter) CreateCustomer(ctx context.Context, input billing.CreateCustomerInput) (*billing.Customer, error) {
	a.logger.Debug("Creating Stripe customer",
		zap.String("household_id", input.HouseholdID),
		zap.String("email", input.Email))

	params := &stripe.CustomerParams{
		Email: stripe.String(input.Email),
		Name:  stripe.String(input.Name),
	}
	params.Context = ctx
	params.Metadata = map[string]string{
		"household_id": input.HouseholdID,
	}
	maps.Copy(params.Metadata, input.Metadata)

	cust, err := customer.New(params)
	if err != nil {
		a.logger.Error("Failed to create Stripe customer",
			zap.String("household_id", input.HouseholdID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	a.logger.Info("Created Stripe customer",
		zap.String("household_id", input.HouseholdID),
		zap.String("customer_id", cust.ID))

	return &billing.Customer{
		ID:    cust.ID,
		Email: cust.Email,
		Name:  cust.Name,
	}, nil
}

// AttachPaymentMethod attaches a payment method to a customer and makes it
// the default for invoices
func (a *StripeAdapter) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	attachParams := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	attachParams.Context = ctx
	if _, err := paymentmethod.Attach(paymentMethodID, attachParams); err != nil {
		return fmt.Errorf("stripe: failed to attach payment method: %w", err)
	}

	updateParams := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	updateParams.Context = ctx
	if _, err := customer.Update(customerID, updateParams); err != nil {
		return fmt.Errorf("stripe: failed to set default payment method: %w", err)
	}

	a.logger.Info("Attached payment method",
		zap.String("customer_id", customerID),
		zap.String("payment_method_id", paymentMethodID))
	return nil
}

// DetachPaymentMethod detaches a payment method from its customer
func (a *StripeAdapter) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	if _, err := paymentmethod.Detach(paymentMethodID, params); err != nil {
		return fmt.Errorf("stripe: failed to detach payment method: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Subscription Operations
// ---------------------------------------------------------------------------

// CreateSubscription creates a recurring plan for the customer. Tax is folded
// into the recurring charge from the snapshot rate supplied by the caller.
func (a *StripeAdapter) CreateSubscription(ctx context.Context, input billing.CreateGatewaySubscriptionInput) (*billing.GatewaySubscription, error) {
	interval := input.Interval
	if interval == "" {
		interval = "month"
	}
	gross := input.Amount.Mul(decimal.NewFromInt(1).Add(input.TaxRate)).Round(2)

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(input.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				PriceData: &stripe.SubscriptionItemPriceDataParams{
					Currency:   stripe.String(a.config.DefaultCurrency),
					Product:    stripe.String(a.config.SubscriptionProductID),
					UnitAmount: stripe.Int64(toCents(gross)),
					Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
						Interval: stripe.String(interval),
					},
				},
			},
		},
		PaymentBehavior: stripe.String("error_if_incomplete"),
	}
	params.Context = ctx
	if input.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(input.PaymentMethodID)
	}
	params.Metadata = map[string]string{"tier": input.Tier}
	maps.Copy(params.Metadata, input.Metadata)

	sub, err := subscription.New(params)
	if err != nil {
		a.logger.Error("Failed to create Stripe subscription",
			zap.String("customer_id", input.CustomerID),
			zap.String("tier", input.Tier),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create subscription: %w", err)
	}

	a.logger.Info("Created Stripe subscription",
		zap.String("customer_id", input.CustomerID),
		zap.String("subscription_id", sub.ID),
		zap.String("tier", input.Tier))

	return toGatewaySubscription(sub), nil
}

// UpdateSubscription re-prices an existing subscription with proration
// and/or toggles cancel-at-period-end
func (a *StripeAdapter) UpdateSubscription(ctx context.Context, input billing.UpdateGatewaySubscriptionInput) (*billing.GatewaySubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	if input.NewAmount != nil {
		getParams := &stripe.SubscriptionParams{}
		getParams.Context = ctx
		current, err := subscription.Get(input.GatewaySubID, getParams)
		if err != nil {
			return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
		}
		if len(current.Items.Data) == 0 {
			return nil, fmt.Errorf("stripe: subscription %s has no items", input.GatewaySubID)
		}

		params.Items = []*stripe.SubscriptionItemsParams{
			{
				ID: stripe.String(current.Items.Data[0].ID),
				PriceData: &stripe.SubscriptionItemPriceDataParams{
					Currency:   stripe.String(a.config.DefaultCurrency),
					Product:    stripe.String(a.config.SubscriptionProductID),
					UnitAmount: stripe.Int64(toCents(*input.NewAmount)),
					Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
						Interval: stripe.String("month"),
					},
				},
			},
		}
		params.ProrationBehavior = stripe.String("create_prorations")
		if input.NewTier != "" {
			params.Metadata = map[string]string{"tier": input.NewTier}
		}
	}
	if input.CancelAtPeriodEnd != nil {
		params.CancelAtPeriodEnd = stripe.Bool(*input.CancelAtPeriodEnd)
	}

	sub, err := subscription.Update(input.GatewaySubID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to update subscription: %w", err)
	}

	a.logger.Info("Updated Stripe subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("tier", input.NewTier))

	return toGatewaySubscription(sub), nil
}

// CancelSubscription cancels the subscription immediately
func (a *StripeAdapter) CancelSubscription(ctx context.Context, gatewaySubID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := subscription.Cancel(gatewaySubID, params); err != nil {
		return fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}

	a.logger.Info("Cancelled Stripe subscription", zap.String("subscription_id", gatewaySubID))
	return nil
}

// ---------------------------------------------------------------------------
// Payment Operations
// ---------------------------------------------------------------------------

// AuthorizePayment creates and confirms a payment intent with manual capture
func (a *StripeAdapter) AuthorizePayment(ctx context.Context, input billing.AuthorizePaymentInput) (*billing.PaymentIntent, error) {
	currency := input.Currency
	if currency == "" {
		currency = a.config.DefaultCurrency
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toCents(input.Amount)),
		Currency:      stripe.String(currency),
		Customer:      stripe.String(input.CustomerID),
		PaymentMethod: stripe.String(input.PaymentMethodID),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}
	if len(input.Metadata) > 0 {
		params.Metadata = input.Metadata
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		a.logger.Error("Failed to authorize payment",
			zap.String("customer_id", input.CustomerID),
			zap.String("amount", input.Amount.StringFixed(2)),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to authorize payment: %w", err)
	}
	if intent.Status != stripe.PaymentIntentStatusRequiresCapture {
		return nil, fmt.Errorf("stripe: unexpected intent status after confirm: %s", intent.Status)
	}

	a.logger.Info("Authorized payment",
		zap.String("customer_id", input.CustomerID),
		zap.String("payment_intent_id", intent.ID),
		zap.String("amount", input.Amount.StringFixed(2)))

	return &billing.PaymentIntent{
		ID:     intent.ID,
		Amount: fromCents(intent.Amount),
		Status: billing.PaymentIntentStatusRequiresCapture,
	}, nil
}

// CapturePayment captures a previously authorized payment intent
func (a *StripeAdapter) CapturePayment(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := paymentintent.Capture(paymentIntentID, params); err != nil {
		return fmt.Errorf("stripe: failed to capture payment: %w", err)
	}

	a.logger.Info("Captured payment", zap.String("payment_intent_id", paymentIntentID))
	return nil
}

// RefundPayment refunds the full amount of a payment intent. An authorized
// but uncaptured intent is released by cancelling it instead.
func (a *StripeAdapter) RefundPayment(ctx context.Context, paymentIntentID string) (*billing.Refund, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	intent, err := paymentintent.Get(paymentIntentID, getParams)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to get payment intent: %w", err)
	}

	if intent.Status == stripe.PaymentIntentStatusRequiresCapture {
		cancelParams := &stripe.PaymentIntentCancelParams{}
		cancelParams.Context = ctx
		cancelled, err := paymentintent.Cancel(paymentIntentID, cancelParams)
		if err != nil {
			return nil, fmt.Errorf("stripe: failed to release authorization: %w", err)
		}

		a.logger.Info("Released payment authorization",
			zap.String("payment_intent_id", paymentIntentID))

		return &billing.Refund{
			ID:              cancelled.ID,
			PaymentIntentID: paymentIntentID,
			Amount:          fromCents(cancelled.Amount),
		}, nil
	}

	refundParams := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	refundParams.Context = ctx
	ref, err := refund.New(refundParams)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to refund payment: %w", err)
	}

	a.logger.Info("Refunded payment",
		zap.String("payment_intent_id", paymentIntentID),
		zap.String("refund_id", ref.ID))

	return &billing.Refund{
		ID:              ref.ID,
		PaymentIntentID: paymentIntentID,
		Amount:          fromCents(ref.Amount),
	}, nil
}

// toGatewaySubscription maps a Stripe subscription to the domain view
func toGatewaySubscription(sub *stripe.Subscription) *billing.GatewaySubscription {
	out := &billing.GatewaySubscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out
}
