package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/littleloop/backend/internal/domain/retailer"
)

// RetailerConfigurationModel is the persistence model for a household's
// retailer configuration. Credentials are stored column-per-field; secret
// values are encrypted at the column level in production deployments.
type RetailerConfigurationModel struct {
	BaseModel
	HouseholdID uuid.UUID `gorm:"type:uuid;not null;index:idx_retailer_configs_household_code,unique,priority:1"`
	Retailer    string    `gorm:"type:varchar(20);not null;index:idx_retailer_configs_household_code,unique,priority:2"`

	AccessKey    string `gorm:"type:varchar(255)"`
	SecretKey    string `gorm:"type:varchar(255)"`
	PartnerTag   string `gorm:"type:varchar(100)"`
	ClientID     string `gorm:"type:varchar(255)"`
	ClientSecret string `gorm:"type:varchar(255)"`

	IsActive            bool       `gorm:"not null;default:true;index"`
	ConsecutiveFailures int        `gorm:"not null;default:0"`
	LastError           string     `gorm:"type:varchar(500)"`
	LastSuccessAt       *time.Time
	LastFailureAt       *time.Time
	RateLimitPerMinute  int `gorm:"not null;default:60"`
}

// TableName returns the table name for GORM
func (RetailerConfigurationModel) TableName() string {
	return "retailer_configurations"
}

// ToDomain converts the persistence model to a domain Configuration
func (m *RetailerConfigurationModel) ToDomain() *retailer.Configuration {
	return &retailer.Configuration{
		BaseEntity:  m.BaseModel.ToDomain(),
		HouseholdID: m.HouseholdID,
		Retailer:    retailer.Code(m.Retailer),
		Credentials: retailer.Credentials{
			AccessKey:    m.AccessKey,
			SecretKey:    m.SecretKey,
			PartnerTag:   m.PartnerTag,
			ClientID:     m.ClientID,
			ClientSecret: m.ClientSecret,
		},
		IsActive:            m.IsActive,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastError:           m.LastError,
		LastSuccessAt:       m.LastSuccessAt,
		LastFailureAt:       m.LastFailureAt,
		RateLimitPerMinute:  m.RateLimitPerMinute,
	}
}

// FromDomain populates the persistence model from a domain Configuration
func (m *RetailerConfigurationModel) FromDomain(c *retailer.Configuration) {
	m.FromDomainBaseEntity(c.BaseEntity)
	m.HouseholdID = c.HouseholdID
	m.Retailer = c.Retailer.String()
	m.AccessKey = c.Credentials.AccessKey
	m.SecretKey = c.Credentials.SecretKey
	m.PartnerTag = c.Credentials.PartnerTag
	m.ClientID = c.Credentials.ClientID
	m.ClientSecret = c.Credentials.ClientSecret
	m.IsActive = c.IsActive
	m.ConsecutiveFailures = c.ConsecutiveFailures
	m.LastError = c.LastError
	m.LastSuccessAt = c.LastSuccessAt
	m.LastFailureAt = c.LastFailureAt
	m.RateLimitPerMinute = c.RateLimitPerMinute
}
