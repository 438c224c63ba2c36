// Package order holds the reorder transaction aggregate. Transactions are
// financial records: they are never deleted and their status history is an
// append-only trail of OrderStatusUpdate entries.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/domain/shared/valueobject"
)

// Status is the lifecycle state of a reorder transaction
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusDelivered  Status = "DELIVERED"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAuthorized, StatusConfirmed, StatusFailed, StatusCancelled, StatusDelivered:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for final states
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusDelivered:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusAuthorized || target == StatusFailed || target == StatusCancelled
	case StatusAuthorized:
		return target == StatusConfirmed || target == StatusFailed || target == StatusCancelled
	case StatusConfirmed:
		return target == StatusDelivered || target == StatusCancelled
	}
	return false
}

// UpdateSource distinguishes internal transitions from webhook-driven ones
type UpdateSource string

const (
	SourceInternal UpdateSource = "INTERNAL"
	SourceWebhook  UpdateSource = "WEBHOOK"
)

// StatusUpdate is one append-only audit entry per status transition
type StatusUpdate struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	FromStatus    Status
	ToStatus      Status
	Source        UpdateSource
	// ExternalRef carries the gateway or retailer reference that drove an
	// external transition
	ExternalRef string
	Note        string
	CreatedAt   time.Time
}

// LineItem is one product line in a reorder transaction
type LineItem struct {
	ID                uuid.UUID
	TransactionID     uuid.UUID
	RetailerProductID string
	Title             string
	Quantity          int
	UnitPrice         decimal.Decimal
	Amount            decimal.Decimal
}

// NewLineItem creates a validated line item
func NewLineItem(transactionID uuid.UUID, retailerProductID, title string, quantity int, unitPrice decimal.Decimal) (*LineItem, error) {
	if retailerProductID == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Retailer product ID cannot be empty")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	return &LineItem{
		ID:                uuid.New(),
		TransactionID:     transactionID,
		RetailerProductID: retailerProductID,
		Title:             title,
		Quantity:          quantity,
		UnitPrice:         unitPrice,
		Amount:            unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}, nil
}

// Transaction is one reorder: forecast-triggered or manual
type Transaction struct {
	shared.BaseEntity
	OrderRef    string
	HouseholdID uuid.UUID
	ChildID     uuid.UUID
	Retailer    retailer.Code
	Status      Status
	Items       []LineItem
	Subtotal    decimal.Decimal
	Shipping    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	Address     valueobject.Address
	// PaymentRef is the gateway payment intent reference once authorized
	PaymentRef string
	// PredictionID links the triggering consumption prediction, nil for
	// manual orders
	PredictionID      *uuid.UUID
	RetailerOrderID   string
	TrackingRef       string
	EstimatedDelivery *time.Time
	FailureReason     string
	RetryCount        int
	Updates           []StatusUpdate
}

// NewTransaction creates a PENDING transaction with computed totals. The
// invariant total == round(subtotal+shipping+tax, 2) half-up is established
// here and must survive every later mutation.
func NewTransaction(householdID, childID uuid.UUID, code retailer.Code, items []LineItem, shipping, taxAmount decimal.Decimal, addr valueobject.Address) (*Transaction, error) {
	if len(items) == 0 {
		return nil, shared.NewDomainError("EMPTY_ORDER", "Order must contain at least one line item")
	}
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
	}

	base := shared.NewBaseEntity()
	// Items may be built before the transaction exists; rebind them here.
	for i := range items {
		items[i].TransactionID = base.ID
	}
	tx := &Transaction{
		BaseEntity:  base,
		OrderRef:    fmt.Sprintf("LL-%s", base.ID.String()[:8]),
		HouseholdID: householdID,
		ChildID:     childID,
		Retailer:    code,
		Status:      StatusPending,
		Items:       items,
		Subtotal:    subtotal,
		Shipping:    shipping,
		Tax:         taxAmount,
		Total:       subtotal.Add(shipping).Add(taxAmount).Round(2),
		Address:     addr,
	}
	tx.appendUpdate("", StatusPending, SourceInternal, "", "created")
	return tx, nil
}

// transitionTo moves the transaction to the target status, appending the
// audit entry. The history is never rewritten.
func (t *Transaction) transitionTo(target Status, source UpdateSource, externalRef, note string) error {
	if !t.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_TRANSITION",
			fmt.Sprintf("Cannot transition order from %s to %s", t.Status, target))
	}
	t.appendUpdate(t.Status, target, source, externalRef, note)
	t.Status = target
	t.Touch()
	return nil
}

func (t *Transaction) appendUpdate(from, to Status, source UpdateSource, externalRef, note string) {
	t.Updates = append(t.Updates, StatusUpdate{
		ID:            uuid.New(),
		TransactionID: t.ID,
		FromStatus:    from,
		ToStatus:      to,
		Source:        source,
		ExternalRef:   externalRef,
		Note:          note,
		CreatedAt:     time.Now(),
	})
}

// Authorize records the payment hold and moves to AUTHORIZED
func (t *Transaction) Authorize(paymentRef string) error {
	if err := t.transitionTo(StatusAuthorized, SourceInternal, paymentRef, "payment authorized"); err != nil {
		return err
	}
	t.PaymentRef = paymentRef
	return nil
}

// Confirm records the retailer outcome and moves to CONFIRMED
func (t *Transaction) Confirm(retailerOrderID, trackingRef string, eta *time.Time) error {
	if err := t.transitionTo(StatusConfirmed, SourceInternal, retailerOrderID, "retailer accepted order"); err != nil {
		return err
	}
	t.RetailerOrderID = retailerOrderID
	t.TrackingRef = trackingRef
	t.EstimatedDelivery = eta
	return nil
}

// Fail records the failure reason and moves to FAILED
func (t *Transaction) Fail(reason string) error {
	if err := t.transitionTo(StatusFailed, SourceInternal, "", reason); err != nil {
		return err
	}
	t.FailureReason = reason
	return nil
}

// Cancel moves the transaction to CANCELLED
func (t *Transaction) Cancel(source UpdateSource, note string) error {
	return t.transitionTo(StatusCancelled, source, "", note)
}

// MarkDelivered moves a confirmed transaction to DELIVERED. Replaying the
// same external event is a no-op, keeping webhook handling idempotent.
func (t *Transaction) MarkDelivered(source UpdateSource, externalRef string) error {
	if t.Status == StatusDelivered {
		return nil
	}
	return t.transitionTo(StatusDelivered, source, externalRef, "delivery confirmed")
}

// TotalsConsistent verifies total == round(subtotal+shipping+tax, 2)
func (t *Transaction) TotalsConsistent() bool {
	return t.Total.Equal(t.Subtotal.Add(t.Shipping).Add(t.Tax).Round(2))
}

// Repository persists transactions and their append-only status history
type Repository interface {
	Save(ctx context.Context, tx *Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FindByOrderRef(ctx context.Context, orderRef string) (*Transaction, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (*Transaction, error)
	FindByHousehold(ctx context.Context, householdID uuid.UUID, limit int) ([]*Transaction, error)
}
