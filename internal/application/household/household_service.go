// Package household holds the account-facing service: registration, child
// tracking, usage logging and inventory updates.
package household

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/forecast"
	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/domain/shared/valueobject"
)

// ModelInvalidator drops a child's cached consumption model after new data
// arrives.
type ModelInvalidator interface {
	InvalidateModel(householdID, childID uuid.UUID)
}

// HouseholdService manages households, their children and the raw usage
// stream the forecaster trains on.
type HouseholdService struct {
	households household.Repository
	usage      forecast.UsageEventRecorder
	inventory  forecast.InventoryWriter
	models     ModelInvalidator
	logger     *zap.Logger
}

// NewHouseholdService creates a new HouseholdService
func NewHouseholdService(
	households household.Repository,
	usage forecast.UsageEventRecorder,
	inventory forecast.InventoryWriter,
	models ModelInvalidator,
	logger *zap.Logger,
) *HouseholdService {
	return &HouseholdService{
		households: households,
		usage:      usage,
		inventory:  inventory,
		models:     models,
		logger:     logger,
	}
}

// RegisterHouseholdInput describes a new account
type RegisterHouseholdInput struct {
	Email      string
	Name       string
	Line1      string
	City       string
	Province   string
	PostalCode string
	Country    string
}

// RegisterHousehold creates a new household account
func (s *HouseholdService) RegisterHousehold(ctx context.Context, input RegisterHouseholdInput) (*household.Household, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "A valid email address is required")
	}

	addr, err := valueobject.NewAddress(input.Line1, input.City, input.Province, input.PostalCode, input.Country)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", err.Error())
	}

	h := &household.Household{
		BaseEntity:      shared.NewBaseEntity(),
		Email:           email,
		Name:            strings.TrimSpace(input.Name),
		DeliveryAddress: addr,
	}
	if err := s.households.Save(ctx, h); err != nil {
		return nil, fmt.Errorf("save household: %w", err)
	}

	s.logger.Info("Household registered",
		zap.String("household_id", h.ID.String()))
	return h, nil
}

// GetHousehold returns one household by ID
func (s *HouseholdService) GetHousehold(ctx context.Context, id uuid.UUID) (*household.Household, error) {
	return s.households.FindByID(ctx, id)
}

// SetAutoReorder toggles the scheduled forecast-and-reorder loop
func (s *HouseholdService) SetAutoReorder(ctx context.Context, householdID uuid.UUID, enabled bool) (*household.Household, error) {
	h, err := s.households.FindByID(ctx, householdID)
	if err != nil {
		return nil, err
	}
	h.AutoReorder = enabled
	h.Touch()
	if err := s.households.Save(ctx, h); err != nil {
		return nil, fmt.Errorf("save household: %w", err)
	}
	return h, nil
}

// AddChildInput describes a child to track
type AddChildInput struct {
	Name        string
	BirthDate   time.Time
	CurrentSize string
}

// AddChild registers a child under the household
func (s *HouseholdService) AddChild(ctx context.Context, householdID uuid.UUID, input AddChildInput) (*household.Child, error) {
	if _, err := s.households.FindByID(ctx, householdID); err != nil {
		return nil, err
	}
	if input.BirthDate.IsZero() || input.BirthDate.After(time.Now()) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Birth date must be in the past")
	}

	c := &household.Child{
		BaseEntity:  shared.NewBaseEntity(),
		HouseholdID: householdID,
		Name:        strings.TrimSpace(input.Name),
		BirthDate:   input.BirthDate,
		CurrentSize: input.CurrentSize,
	}
	if err := s.households.SaveChild(ctx, c); err != nil {
		return nil, fmt.Errorf("save child: %w", err)
	}
	return c, nil
}

// ListChildren returns the household's tracked children
func (s *HouseholdService) ListChildren(ctx context.Context, householdID uuid.UUID) ([]*household.Child, error) {
	return s.households.FindChildrenByHousehold(ctx, householdID)
}

// UpdateChildSize records a confirmed size change and drops the cached
// model so the next forecast retrains on the new size.
func (s *HouseholdService) UpdateChildSize(ctx context.Context, householdID, childID uuid.UUID, size string) (*household.Child, error) {
	c, err := s.households.FindChildOwnedBy(ctx, householdID, childID)
	if err != nil {
		return nil, err
	}
	size = strings.TrimSpace(size)
	if size == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Size cannot be empty")
	}
	c.CurrentSize = size
	c.Touch()
	if err := s.households.SaveChild(ctx, c); err != nil {
		return nil, fmt.Errorf("save child: %w", err)
	}
	s.models.InvalidateModel(householdID, childID)
	return c, nil
}

// LogUsageInput is one batch of diaper changes to record
type LogUsageInput struct {
	// Count of changes since the last log entry, at least 1
	Count int
	// LoggedAt defaults to now when zero
	LoggedAt time.Time
}

// LogUsage appends usage events for a child. Ownership is enforced; counts
// above one fan out into individual events so daily aggregation stays exact.
func (s *HouseholdService) LogUsage(ctx context.Context, householdID, childID uuid.UUID, input LogUsageInput) error {
	if _, err := s.households.FindChildOwnedBy(ctx, householdID, childID); err != nil {
		return err
	}
	if input.Count < 1 {
		return shared.NewDomainError("VALIDATION_ERROR", "Count must be at least 1")
	}
	loggedAt := input.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = time.Now()
	}

	for i := 0; i < input.Count; i++ {
		if err := s.usage.RecordEvent(ctx, childID, loggedAt); err != nil {
			return fmt.Errorf("record usage event: %w", err)
		}
	}
	s.models.InvalidateModel(householdID, childID)
	return nil
}

// SetInventory sets the on-hand diaper count for a child
func (s *HouseholdService) SetInventory(ctx context.Context, householdID, childID uuid.UUID, onHand float64) error {
	if _, err := s.households.FindChildOwnedBy(ctx, householdID, childID); err != nil {
		return err
	}
	if onHand < 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "On-hand count cannot be negative")
	}
	return s.inventory.SetOnHand(ctx, childID, onHand)
}
