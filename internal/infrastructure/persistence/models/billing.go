package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/littleloop/backend/internal/domain/billing"
)

// SubscriptionModel is the persistence model for the Subscription entity
type SubscriptionModel struct {
	BaseModel
	HouseholdID uuid.UUID `gorm:"type:uuid;not null;index"`
	Tier        string    `gorm:"type:varchar(20);not null"`
	Status      string    `gorm:"type:varchar(20);not null;index"`
	Interval    string    `gorm:"type:varchar(10);not null"`

	Amount     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	TaxRateGST decimal.Decimal `gorm:"type:decimal(6,5);not null"`
	TaxRatePST decimal.Decimal `gorm:"type:decimal(6,5);not null"`
	Province   string          `gorm:"type:varchar(2);not null"`

	FeaturesJSON string `gorm:"type:jsonb;column:features"`

	GatewayCustomerID string `gorm:"type:varchar(100);index"`
	GatewaySubID      string `gorm:"type:varchar(100);index"`

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool `gorm:"not null;default:false"`
	CancelledAt        *time.Time
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription
func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	sub := &billing.Subscription{
		BaseEntity:         m.BaseModel.ToDomain(),
		HouseholdID:        m.HouseholdID,
		Tier:               billing.Tier(m.Tier),
		Status:             billing.SubscriptionStatus(m.Status),
		Interval:           billing.BillingInterval(m.Interval),
		Amount:             m.Amount,
		TaxRateGST:         m.TaxRateGST,
		TaxRatePST:         m.TaxRatePST,
		Province:           m.Province,
		Features:           make([]string, 0),
		GatewayCustomerID:  m.GatewayCustomerID,
		GatewaySubID:       m.GatewaySubID,
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		CancelAtPeriodEnd:  m.CancelAtPeriodEnd,
		CancelledAt:        m.CancelledAt,
	}
	if m.FeaturesJSON != "" {
		var features []string
		if err := json.Unmarshal([]byte(m.FeaturesJSON), &features); err == nil {
			sub.Features = features
		}
	}
	return sub
}

// FromDomain populates the persistence model from a domain Subscription
func (m *SubscriptionModel) FromDomain(sub *billing.Subscription) {
	m.FromDomainBaseEntity(sub.BaseEntity)
	m.HouseholdID = sub.HouseholdID
	m.Tier = sub.Tier.String()
	m.Status = string(sub.Status)
	m.Interval = string(sub.Interval)
	m.Amount = sub.Amount
	m.TaxRateGST = sub.TaxRateGST
	m.TaxRatePST = sub.TaxRatePST
	m.Province = sub.Province
	m.GatewayCustomerID = sub.GatewayCustomerID
	m.GatewaySubID = sub.GatewaySubID
	m.CurrentPeriodStart = sub.CurrentPeriodStart
	m.CurrentPeriodEnd = sub.CurrentPeriodEnd
	m.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	m.CancelledAt = sub.CancelledAt

	if data, err := json.Marshal(sub.Features); err == nil {
		m.FeaturesJSON = string(data)
	}
}

// ProcessedWebhookModel records handled webhook event IDs for durable
// replay suppression.
type ProcessedWebhookModel struct {
	EventID     string    `gorm:"type:varchar(255);primary_key"`
	ProcessedAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ProcessedWebhookModel) TableName() string {
	return "processed_webhooks"
}
