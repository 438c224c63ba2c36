package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the port interface over the external payment provider.
// It covers the primitives this core needs: customer management, payment
// method attachment, recurring subscriptions and one-off payment intents
// with capture/refund. The concrete implementation lives in
// infrastructure/payment.
type PaymentGateway interface {
	// CreateCustomer creates (or returns an existing) gateway customer
	CreateCustomer(ctx context.Context, input CreateCustomerInput) (*Customer, error)

	// AttachPaymentMethod attaches a payment method to a customer and makes
	// it the default for invoices
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	// DetachPaymentMethod detaches a payment method from its customer
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error

	// CreateSubscription creates a recurring plan for the customer
	CreateSubscription(ctx context.Context, input CreateGatewaySubscriptionInput) (*GatewaySubscription, error)

	// UpdateSubscription re-prices an existing subscription with proration
	// and/or toggles cancel-at-period-end
	UpdateSubscription(ctx context.Context, input UpdateGatewaySubscriptionInput) (*GatewaySubscription, error)

	// CancelSubscription cancels the subscription immediately
	CancelSubscription(ctx context.Context, gatewaySubID string) error

	// AuthorizePayment creates and confirms a payment intent with manual
	// capture, placing a hold for the amount
	AuthorizePayment(ctx context.Context, input AuthorizePaymentInput) (*PaymentIntent, error)

	// CapturePayment captures a previously authorized payment intent
	CapturePayment(ctx context.Context, paymentIntentID string) error

	// RefundPayment refunds the full amount of a payment intent
	RefundPayment(ctx context.Context, paymentIntentID string) (*Refund, error)
}

// CreateCustomerInput describes a customer to create on the gateway
type CreateCustomerInput struct {
	HouseholdID string
	Email       string
	Name        string
	Metadata    map[string]string
}

// Customer is a gateway customer reference
type Customer struct {
	ID    string
	Email string
	Name  string
}

// CreateGatewaySubscriptionInput describes a recurring plan to create
type CreateGatewaySubscriptionInput struct {
	CustomerID      string
	PaymentMethodID string
	Tier            string
	Amount          decimal.Decimal
	Currency        string
	Interval        string
	// TaxRate is the combined GST+PST rate applied to the recurring charge
	TaxRate  decimal.Decimal
	Metadata map[string]string
}

// UpdateGatewaySubscriptionInput describes changes to a recurring plan
type UpdateGatewaySubscriptionInput struct {
	GatewaySubID      string
	NewTier           string
	NewAmount         *decimal.Decimal
	CancelAtPeriodEnd *bool
}

// GatewaySubscription is the gateway's view of a recurring plan
type GatewaySubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// AuthorizePaymentInput describes a one-off payment authorization
type AuthorizePaymentInput struct {
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	Metadata        map[string]string
}

// PaymentIntentStatus is the gateway payment intent lifecycle state
type PaymentIntentStatus string

const (
	PaymentIntentStatusRequiresCapture PaymentIntentStatus = "requires_capture"
	PaymentIntentStatusSucceeded       PaymentIntentStatus = "succeeded"
	PaymentIntentStatusCanceled        PaymentIntentStatus = "canceled"
)

// PaymentIntent is a gateway payment intent reference
type PaymentIntent struct {
	ID     string
	Amount decimal.Decimal
	Status PaymentIntentStatus
}

// Refund is a gateway refund reference
type Refund struct {
	ID              string
	PaymentIntentID string
	Amount          decimal.Decimal
}
