package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/littleloop/backend/internal/domain/billing"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/infrastructure/persistence/models"
)

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// Save persists a subscription
func (r *GormSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	var model models.SubscriptionModel
	model.FromDomain(sub)
	return r.db.WithContext(ctx).Save(&model).Error
}

// FindByID finds a subscription by its ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByHousehold returns the household's billable subscription.
// PAST_DUE still counts as active for duplicate-subscription checks.
func (r *GormSubscriptionRepository) FindActiveByHousehold(ctx context.Context, householdID uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("household_id = ? AND status IN ?", householdID, []string{
			string(billing.SubscriptionStatusActive),
			string(billing.SubscriptionStatusPastDue),
		}).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByGatewaySubID finds a subscription by the gateway subscription reference
func (r *GormSubscriptionRepository) FindByGatewaySubID(ctx context.Context, gatewaySubID string) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("gateway_sub_id = ?", gatewaySubID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByGatewayCustomerID finds the most recent subscription for a gateway customer
func (r *GormSubscriptionRepository) FindByGatewayCustomerID(ctx context.Context, gatewayCustomerID string) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("gateway_customer_id = ?", gatewayCustomerID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GormIdempotencyStore implements shared.IdempotencyStore on the processed
// webhooks table for durable replay suppression.
type GormIdempotencyStore struct {
	db *gorm.DB
}

var _ shared.IdempotencyStore = (*GormIdempotencyStore)(nil)

// NewGormIdempotencyStore creates a new GormIdempotencyStore
func NewGormIdempotencyStore(db *gorm.DB) *GormIdempotencyStore {
	return &GormIdempotencyStore{db: db}
}

// MarkProcessed records an event ID as handled. The TTL is ignored; rows
// are pruned by PruneBefore instead of expiring in place.
func (s *GormIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, _ time.Duration) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProcessedWebhookModel{
			EventID:     eventID,
			ProcessedAt: time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// PruneBefore deletes processed-event rows older than the cutoff
func (s *GormIdempotencyStore) PruneBefore(ctx context.Context, cutoff time.Time) error {
	return s.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&models.ProcessedWebhookModel{}).Error
}

// IsProcessed reports whether an event ID has been handled before
func (s *GormIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.ProcessedWebhookModel{}).
		Where("event_id = ?", eventID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close is a no-op; the shared database connection outlives the store
func (s *GormIdempotencyStore) Close() error {
	return nil
}
