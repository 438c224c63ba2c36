package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/littleloop/backend/internal/domain/order"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/infrastructure/persistence/models"
)

// GormTransactionRepository implements order.Repository using GORM
type GormTransactionRepository struct {
	db *gorm.DB
}

var _ order.Repository = (*GormTransactionRepository)(nil)

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Save persists a transaction with its line items and status history.
// Status updates are insert-only: existing entries are never rewritten.
func (r *GormTransactionRepository) Save(ctx context.Context, tx *order.Transaction) error {
	var model models.ReorderTransactionModel
	model.FromDomain(tx)

	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		items := model.Items
		updates := model.Updates
		model.Items = nil
		model.Updates = nil

		if err := db.Save(&model).Error; err != nil {
			return err
		}
		for i := range items {
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&items[i]).Error; err != nil {
				return err
			}
		}
		for i := range updates {
			if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&updates[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID finds a transaction by its ID
func (r *GormTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Transaction, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByOrderRef finds a transaction by its order reference
func (r *GormTransactionRepository) FindByOrderRef(ctx context.Context, orderRef string) (*order.Transaction, error) {
	return r.findOne(ctx, "order_ref = ?", orderRef)
}

// FindByPaymentRef finds a transaction by its gateway payment reference
func (r *GormTransactionRepository) FindByPaymentRef(ctx context.Context, paymentRef string) (*order.Transaction, error) {
	return r.findOne(ctx, "payment_ref = ?", paymentRef)
}

func (r *GormTransactionRepository) findOne(ctx context.Context, query string, arg any) (*order.Transaction, error) {
	var model models.ReorderTransactionModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Updates", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where(query, arg).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByHousehold returns a household's transactions, newest first
func (r *GormTransactionRepository) FindByHousehold(ctx context.Context, householdID uuid.UUID, limit int) ([]*order.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.ReorderTransactionModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Updates").
		Where("household_id = ?", householdID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*order.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}
