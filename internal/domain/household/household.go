// Package household holds the account aggregate: a household owns tracked
// children, retailer configurations and at most one subscription. Profile
// CRUD lives outside this core; only the lookups the engine needs are here.
package household

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/domain/shared/valueobject"
)

// Household is the account unit
type Household struct {
	shared.BaseEntity
	Email           string
	Name            string
	DeliveryAddress valueobject.Address
	// AutoReorder enables the scheduled forecast-and-reorder loop
	AutoReorder bool
	// PaymentMethodID is the default gateway payment method
	PaymentMethodID   string
	GatewayCustomerID string
}

// Child is one tracked child within a household
type Child struct {
	shared.BaseEntity
	HouseholdID uuid.UUID
	Name        string
	BirthDate   time.Time
	// CurrentSize is the diaper size currently in use
	CurrentSize string
}

// AgeInMonths returns the child's age in whole months at the given time
func (c *Child) AgeInMonths(at time.Time) int {
	if at.Before(c.BirthDate) {
		return 0
	}
	months := (at.Year()-c.BirthDate.Year())*12 + int(at.Month()) - int(c.BirthDate.Month())
	if at.Day() < c.BirthDate.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// Repository provides the household lookups the engine needs
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Household, error)
	FindChild(ctx context.Context, childID uuid.UUID) (*Child, error)
	// FindChildOwnedBy returns the child only when the household owns it,
	// shared.ErrNotFound otherwise
	FindChildOwnedBy(ctx context.Context, householdID, childID uuid.UUID) (*Child, error)
	FindChildrenByHousehold(ctx context.Context, householdID uuid.UUID) ([]*Child, error)
	FindAutoReorderHouseholds(ctx context.Context) ([]*Household, error)
	Save(ctx context.Context, h *Household) error
	SaveChild(ctx context.Context, c *Child) error
}
