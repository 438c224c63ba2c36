package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/infrastructure/persistence/models"
)

// GormRetailerConfigurationRepository implements retailer.ConfigurationRepository
// using GORM. Health counter updates run as single SQL statements so
// concurrent recorders never lose increments.
type GormRetailerConfigurationRepository struct {
	db *gorm.DB
}

var _ retailer.ConfigurationRepository = (*GormRetailerConfigurationRepository)(nil)

// NewGormRetailerConfigurationRepository creates a new repository
func NewGormRetailerConfigurationRepository(db *gorm.DB) *GormRetailerConfigurationRepository {
	return &GormRetailerConfigurationRepository{db: db}
}

// Save persists a retailer configuration
func (r *GormRetailerConfigurationRepository) Save(ctx context.Context, cfg *retailer.Configuration) error {
	var model models.RetailerConfigurationModel
	model.FromDomain(cfg)
	return r.db.WithContext(ctx).Save(&model).Error
}

// FindByID finds a configuration by its ID
func (r *GormRetailerConfigurationRepository) FindByID(ctx context.Context, id uuid.UUID) (*retailer.Configuration, error) {
	var model models.RetailerConfigurationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive returns the household's active configuration for a retailer
func (r *GormRetailerConfigurationRepository) FindActive(ctx context.Context, householdID uuid.UUID, code retailer.Code) (*retailer.Configuration, error) {
	var model models.RetailerConfigurationModel
	if err := r.db.WithContext(ctx).
		Where("household_id = ? AND retailer = ? AND is_active = ?", householdID, code.String(), true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByHousehold returns all configurations for a household
func (r *GormRetailerConfigurationRepository) FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*retailer.Configuration, error) {
	var rows []models.RetailerConfigurationModel
	if err := r.db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Order("retailer ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*retailer.Configuration, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// RecordSuccess resets consecutive_failures and stamps last_success_at in
// one atomic update
func (r *GormRetailerConfigurationRepository) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.RetailerConfigurationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"consecutive_failures": 0,
			"last_error":           "",
			"last_success_at":      now,
			"updated_at":           now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RecordFailure increments consecutive_failures, records the cause and
// deactivates the configuration once the threshold is crossed, all in one
// atomic update. Returns the counter value after the update.
func (r *GormRetailerConfigurationRepository) RecordFailure(ctx context.Context, id uuid.UUID, cause string) (int, error) {
	now := time.Now()
	var failures int

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Model(&models.RetailerConfigurationModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
				"last_error":           retailer.TruncateError(cause),
				"last_failure_at":      now,
				"is_active": gorm.Expr(
					"CASE WHEN consecutive_failures + 1 >= ? THEN ? ELSE is_active END",
					retailer.MaxConsecutiveFailures, false),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}

		return tx.
			Model(&models.RetailerConfigurationModel{}).
			Where("id = ?", id).
			Select("consecutive_failures").
			Scan(&failures).Error
	})
	if err != nil {
		return 0, err
	}
	return failures, nil
}
