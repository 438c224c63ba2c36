package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/littleloop/backend/internal/domain/order"
	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared/valueobject"
)

// ReorderTransactionModel is the persistence model for the reorder
// transaction aggregate. Line items and status updates load with it.
type ReorderTransactionModel struct {
	BaseModel
	OrderRef    string    `gorm:"type:varchar(20);not null;uniqueIndex"`
	HouseholdID uuid.UUID `gorm:"type:uuid;not null;index"`
	ChildID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Retailer    string    `gorm:"type:varchar(20);not null"`
	Status      string    `gorm:"type:varchar(20);not null;index"`

	Subtotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Shipping decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Tax      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Address valueobject.Address `gorm:"type:jsonb"`

	PaymentRef        string     `gorm:"type:varchar(100);index"`
	PredictionID      *uuid.UUID `gorm:"type:uuid"`
	RetailerOrderID   string     `gorm:"type:varchar(100)"`
	TrackingRef       string     `gorm:"type:varchar(255)"`
	EstimatedDelivery *time.Time
	FailureReason     string `gorm:"type:varchar(500)"`
	RetryCount        int    `gorm:"not null;default:0"`

	Items   []OrderLineItemModel    `gorm:"foreignKey:TransactionID"`
	Updates []OrderStatusUpdateModel `gorm:"foreignKey:TransactionID"`
}

// TableName returns the table name for GORM
func (ReorderTransactionModel) TableName() string {
	return "reorder_transactions"
}

// OrderLineItemModel is one product line of a reorder transaction
type OrderLineItemModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key"`
	TransactionID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	RetailerProductID string          `gorm:"type:varchar(100);not null"`
	Title             string          `gorm:"type:varchar(500)"`
	Quantity          int             `gorm:"not null"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// TableName returns the table name for GORM
func (OrderLineItemModel) TableName() string {
	return "order_line_items"
}

// OrderStatusUpdateModel is one append-only status history entry
type OrderStatusUpdateModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	TransactionID uuid.UUID `gorm:"type:uuid;not null;index"`
	FromStatus    string    `gorm:"type:varchar(20)"`
	ToStatus      string    `gorm:"type:varchar(20);not null"`
	Source        string    `gorm:"type:varchar(20);not null"`
	ExternalRef   string    `gorm:"type:varchar(255)"`
	Note          string    `gorm:"type:varchar(500)"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderStatusUpdateModel) TableName() string {
	return "order_status_updates"
}

// ToDomain converts the persistence model to a domain Transaction
func (m *ReorderTransactionModel) ToDomain() *order.Transaction {
	tx := &order.Transaction{
		BaseEntity:        m.BaseModel.ToDomain(),
		OrderRef:          m.OrderRef,
		HouseholdID:       m.HouseholdID,
		ChildID:           m.ChildID,
		Retailer:          retailer.Code(m.Retailer),
		Status:            order.Status(m.Status),
		Subtotal:          m.Subtotal,
		Shipping:          m.Shipping,
		Tax:               m.Tax,
		Total:             m.Total,
		Address:           m.Address,
		PaymentRef:        m.PaymentRef,
		PredictionID:      m.PredictionID,
		RetailerOrderID:   m.RetailerOrderID,
		TrackingRef:       m.TrackingRef,
		EstimatedDelivery: m.EstimatedDelivery,
		FailureReason:     m.FailureReason,
		RetryCount:        m.RetryCount,
	}
	tx.Items = make([]order.LineItem, 0, len(m.Items))
	for _, item := range m.Items {
		tx.Items = append(tx.Items, order.LineItem{
			ID:                item.ID,
			TransactionID:     item.TransactionID,
			RetailerProductID: item.RetailerProductID,
			Title:             item.Title,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			Amount:            item.Amount,
		})
	}
	tx.Updates = make([]order.StatusUpdate, 0, len(m.Updates))
	for _, u := range m.Updates {
		tx.Updates = append(tx.Updates, order.StatusUpdate{
			ID:            u.ID,
			TransactionID: u.TransactionID,
			FromStatus:    order.Status(u.FromStatus),
			ToStatus:      order.Status(u.ToStatus),
			Source:        order.UpdateSource(u.Source),
			ExternalRef:   u.ExternalRef,
			Note:          u.Note,
			CreatedAt:     u.CreatedAt,
		})
	}
	return tx
}

// FromDomain populates the persistence model from a domain Transaction
func (m *ReorderTransactionModel) FromDomain(tx *order.Transaction) {
	m.FromDomainBaseEntity(tx.BaseEntity)
	m.OrderRef = tx.OrderRef
	m.HouseholdID = tx.HouseholdID
	m.ChildID = tx.ChildID
	m.Retailer = tx.Retailer.String()
	m.Status = tx.Status.String()
	m.Subtotal = tx.Subtotal
	m.Shipping = tx.Shipping
	m.Tax = tx.Tax
	m.Total = tx.Total
	m.Address = tx.Address
	m.PaymentRef = tx.PaymentRef
	m.PredictionID = tx.PredictionID
	m.RetailerOrderID = tx.RetailerOrderID
	m.TrackingRef = tx.TrackingRef
	m.EstimatedDelivery = tx.EstimatedDelivery
	m.FailureReason = tx.FailureReason
	m.RetryCount = tx.RetryCount

	m.Items = make([]OrderLineItemModel, 0, len(tx.Items))
	for _, item := range tx.Items {
		m.Items = append(m.Items, OrderLineItemModel{
			ID:                item.ID,
			TransactionID:     item.TransactionID,
			RetailerProductID: item.RetailerProductID,
			Title:             item.Title,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
			Amount:            item.Amount,
		})
	}
	m.Updates = make([]OrderStatusUpdateModel, 0, len(tx.Updates))
	for _, u := range tx.Updates {
		m.Updates = append(m.Updates, OrderStatusUpdateModel{
			ID:            u.ID,
			TransactionID: u.TransactionID,
			FromStatus:    u.FromStatus.String(),
			ToStatus:      u.ToStatus.String(),
			Source:        string(u.Source),
			ExternalRef:   u.ExternalRef,
			Note:          u.Note,
			CreatedAt:     u.CreatedAt,
		})
	}
}
