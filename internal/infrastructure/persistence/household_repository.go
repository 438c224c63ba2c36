package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/infrastructure/persistence/models"
)

// GormHouseholdRepository implements household.Repository using GORM
type GormHouseholdRepository struct {
	db *gorm.DB
}

var _ household.Repository = (*GormHouseholdRepository)(nil)

// NewGormHouseholdRepository creates a new GormHouseholdRepository
func NewGormHouseholdRepository(db *gorm.DB) *GormHouseholdRepository {
	return &GormHouseholdRepository{db: db}
}

// FindByID finds a household by its ID
func (r *GormHouseholdRepository) FindByID(ctx context.Context, id uuid.UUID) (*household.Household, error) {
	var model models.HouseholdModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindChild finds a child by its ID
func (r *GormHouseholdRepository) FindChild(ctx context.Context, childID uuid.UUID) (*household.Child, error) {
	var model models.ChildModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", childID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindChildOwnedBy returns the child only when the household owns it
func (r *GormHouseholdRepository) FindChildOwnedBy(ctx context.Context, householdID, childID uuid.UUID) (*household.Child, error) {
	var model models.ChildModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND household_id = ?", childID, householdID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindChildrenByHousehold returns all children tracked by a household
func (r *GormHouseholdRepository) FindChildrenByHousehold(ctx context.Context, householdID uuid.UUID) ([]*household.Child, error) {
	var rows []models.ChildModel
	if err := r.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*household.Child, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// FindAutoReorderHouseholds returns all households with auto-reorder enabled
func (r *GormHouseholdRepository) FindAutoReorderHouseholds(ctx context.Context) ([]*household.Household, error) {
	var rows []models.HouseholdModel
	if err := r.db.WithContext(ctx).
		Where("auto_reorder = ?", true).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*household.Household, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// Save persists a household
func (r *GormHouseholdRepository) Save(ctx context.Context, h *household.Household) error {
	var model models.HouseholdModel
	model.FromDomain(h)
	return r.db.WithContext(ctx).Save(&model).Error
}

// SaveChild persists a child
func (r *GormHouseholdRepository) SaveChild(ctx context.Context, c *household.Child) error {
	var model models.ChildModel
	model.FromDomain(c)
	return r.db.WithContext(ctx).Save(&model).Error
}
