package retailer

import (
	"time"

	"github.com/google/uuid"

	"github.com/littleloop/backend/internal/domain/shared"
)

// MaxConsecutiveFailures is the health threshold: a configuration is
// deactivated once this many calls fail in a row. Reactivation is manual;
// deactivation never self-heals.
const MaxConsecutiveFailures = 5

// maxErrorLength bounds the stored last_error text
const maxErrorLength = 500

// Configuration holds a household's credentials and health counters for one
// retailer.
type Configuration struct {
	shared.BaseEntity
	HouseholdID         uuid.UUID
	Retailer            Code
	Credentials         Credentials
	IsActive            bool
	ConsecutiveFailures int
	LastError           string
	LastSuccessAt       *time.Time
	LastFailureAt       *time.Time
	// RateLimitPerMinute caps outbound calls for this configuration
	RateLimitPerMinute int
}

// NewConfiguration creates an active configuration for a household+retailer
func NewConfiguration(householdID uuid.UUID, code Code, creds Credentials) (*Configuration, error) {
	if !code.IsValid() {
		return nil, ErrUnknownRetailer
	}
	if householdID == uuid.Nil {
		return nil, shared.ErrValidation
	}
	return &Configuration{
		BaseEntity:         shared.NewBaseEntity(),
		HouseholdID:        householdID,
		Retailer:           code,
		Credentials:        creds,
		IsActive:           true,
		RateLimitPerMinute: 60,
	}, nil
}

// RecordSuccess resets the failure counter and stamps the success time
func (c *Configuration) RecordSuccess() {
	now := time.Now()
	c.ConsecutiveFailures = 0
	c.LastError = ""
	c.LastSuccessAt = &now
	c.Touch()
}

// RecordFailure increments the failure counter, truncates and stores the
// cause, and deactivates the configuration at the threshold.
func (c *Configuration) RecordFailure(cause string) {
	now := time.Now()
	c.ConsecutiveFailures++
	c.LastError = TruncateError(cause)
	c.LastFailureAt = &now
	if c.ConsecutiveFailures >= MaxConsecutiveFailures {
		c.IsActive = false
	}
	c.Touch()
}

// Reactivate clears the failure state after a manual reconnection
func (c *Configuration) Reactivate() {
	c.IsActive = true
	c.ConsecutiveFailures = 0
	c.LastError = ""
	c.Touch()
}

// Deactivate takes the configuration out of rotation without touching its
// failure counters
func (c *Configuration) Deactivate() {
	c.IsActive = false
	c.Touch()
}

// TruncateError bounds an error message to the stored length
func TruncateError(cause string) string {
	if len(cause) > maxErrorLength {
		return cause[:maxErrorLength]
	}
	return cause
}
