package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/littleloop/backend/internal/domain/forecast"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/infrastructure/persistence/models"
)

// GormPredictionRepository implements forecast.PredictionRepository using GORM
type GormPredictionRepository struct {
	db *gorm.DB
}

var _ forecast.PredictionRepository = (*GormPredictionRepository)(nil)

// NewGormPredictionRepository creates a new GormPredictionRepository
func NewGormPredictionRepository(db *gorm.DB) *GormPredictionRepository {
	return &GormPredictionRepository{db: db}
}

// Save inserts a prediction. Predictions are immutable, so this is always
// a plain insert, never an upsert.
func (r *GormPredictionRepository) Save(ctx context.Context, p *forecast.ConsumptionPrediction) error {
	var model models.ConsumptionPredictionModel
	model.FromDomain(p)
	return r.db.WithContext(ctx).Create(&model).Error
}

// FindByID finds a prediction by its ID
func (r *GormPredictionRepository) FindByID(ctx context.Context, id uuid.UUID) (*forecast.ConsumptionPrediction, error) {
	var model models.ConsumptionPredictionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatestByChild returns the most recent prediction for a child
func (r *GormPredictionRepository) FindLatestByChild(ctx context.Context, childID uuid.UUID) (*forecast.ConsumptionPrediction, error) {
	var model models.ConsumptionPredictionModel
	if err := r.db.WithContext(ctx).
		Where("child_id = ?", childID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GormUsageHistoryStore implements forecast.UsageHistoryStore by aggregating
// logged usage events into calendar-day counts.
type GormUsageHistoryStore struct {
	db *gorm.DB
}

var _ forecast.UsageHistoryStore = (*GormUsageHistoryStore)(nil)
var _ forecast.UsageEventRecorder = (*GormUsageHistoryStore)(nil)

// NewGormUsageHistoryStore creates a new GormUsageHistoryStore
func NewGormUsageHistoryStore(db *gorm.DB) *GormUsageHistoryStore {
	return &GormUsageHistoryStore{db: db}
}

// dailyCount is the aggregation row shape. Day is scanned as text because
// DATE() yields driver-specific types otherwise.
type dailyCount struct {
	Day   string
	Count int
}

// QueryDailyUsage returns per-day usage counts for a child over [start, end).
// Days with no events are absent from the result.
func (s *GormUsageHistoryStore) QueryDailyUsage(ctx context.Context, childID uuid.UUID, start, end time.Time) ([]forecast.DailyUsage, error) {
	var rows []dailyCount
	if err := s.db.WithContext(ctx).
		Model(&models.UsageEventModel{}).
		Select("DATE(logged_at) AS day, COUNT(*) AS count").
		Where("child_id = ? AND logged_at >= ? AND logged_at < ?", childID, start, end).
		Group("DATE(logged_at)").
		Order("day ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	usage := make([]forecast.DailyUsage, 0, len(rows))
	for _, row := range rows {
		day := row.Day
		if len(day) > 10 {
			day = day[:10]
		}
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, err
		}
		usage = append(usage, forecast.DailyUsage{Date: date, Count: row.Count})
	}
	return usage, nil
}

// RecordEvent logs one usage event for a child
func (s *GormUsageHistoryStore) RecordEvent(ctx context.Context, childID uuid.UUID, loggedAt time.Time) error {
	return s.db.WithContext(ctx).Create(&models.UsageEventModel{
		ID:        uuid.New(),
		ChildID:   childID,
		LoggedAt:  loggedAt,
		CreatedAt: time.Now(),
	}).Error
}

// GormInventoryStore implements forecast.InventoryStore on the per-child
// inventory level table.
type GormInventoryStore struct {
	db *gorm.DB
}

var _ forecast.InventoryStore = (*GormInventoryStore)(nil)
var _ forecast.InventoryWriter = (*GormInventoryStore)(nil)

// NewGormInventoryStore creates a new GormInventoryStore
func NewGormInventoryStore(db *gorm.DB) *GormInventoryStore {
	return &GormInventoryStore{db: db}
}

// CurrentOnHand returns the on-hand count for a child, zero when untracked
func (s *GormInventoryStore) CurrentOnHand(ctx context.Context, childID uuid.UUID) (float64, error) {
	var model models.InventoryLevelModel
	if err := s.db.WithContext(ctx).First(&model, "child_id = ?", childID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return model.OnHand, nil
}

// SetOnHand upserts the on-hand count for a child
func (s *GormInventoryStore) SetOnHand(ctx context.Context, childID uuid.UUID, onHand float64) error {
	model := models.InventoryLevelModel{
		ChildID:   childID,
		OnHand:    onHand,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&model).Error
}
