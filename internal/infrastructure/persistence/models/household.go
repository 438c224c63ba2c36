package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/shared/valueobject"
)

// HouseholdModel is the persistence model for the Household entity
type HouseholdModel struct {
	BaseModel
	Email             string              `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name              string              `gorm:"type:varchar(255);not null"`
	DeliveryAddress   valueobject.Address `gorm:"type:jsonb"`
	AutoReorder       bool                `gorm:"not null;default:false;index"`
	PaymentMethodID   string              `gorm:"type:varchar(100)"`
	GatewayCustomerID string              `gorm:"type:varchar(100);index"`
}

// TableName returns the table name for GORM
func (HouseholdModel) TableName() string {
	return "households"
}

// ToDomain converts the persistence model to a domain Household
func (m *HouseholdModel) ToDomain() *household.Household {
	return &household.Household{
		BaseEntity:        m.BaseModel.ToDomain(),
		Email:             m.Email,
		Name:              m.Name,
		DeliveryAddress:   m.DeliveryAddress,
		AutoReorder:       m.AutoReorder,
		PaymentMethodID:   m.PaymentMethodID,
		GatewayCustomerID: m.GatewayCustomerID,
	}
}

// FromDomain populates the persistence model from a domain Household
func (m *HouseholdModel) FromDomain(h *household.Household) {
	m.FromDomainBaseEntity(h.BaseEntity)
	m.Email = h.Email
	m.Name = h.Name
	m.DeliveryAddress = h.DeliveryAddress
	m.AutoReorder = h.AutoReorder
	m.PaymentMethodID = h.PaymentMethodID
	m.GatewayCustomerID = h.GatewayCustomerID
}

// ChildModel is the persistence model for the Child entity
type ChildModel struct {
	BaseModel
	HouseholdID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name        string    `gorm:"type:varchar(255);not null"`
	BirthDate   time.Time `gorm:"not null"`
	CurrentSize string    `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (ChildModel) TableName() string {
	return "children"
}

// ToDomain converts the persistence model to a domain Child
func (m *ChildModel) ToDomain() *household.Child {
	return &household.Child{
		BaseEntity:  m.BaseModel.ToDomain(),
		HouseholdID: m.HouseholdID,
		Name:        m.Name,
		BirthDate:   m.BirthDate,
		CurrentSize: m.CurrentSize,
	}
}

// FromDomain populates the persistence model from a domain Child
func (m *ChildModel) FromDomain(c *household.Child) {
	m.FromDomainBaseEntity(c.BaseEntity)
	m.HouseholdID = c.HouseholdID
	m.Name = c.Name
	m.BirthDate = c.BirthDate
	m.CurrentSize = c.CurrentSize
}
