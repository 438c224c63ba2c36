package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/littleloop/backend/internal/domain/forecast"
)

// UsageEventModel is one logged diaper change. Daily usage series are
// aggregated from these rows at query time.
type UsageEventModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	ChildID   uuid.UUID `gorm:"type:uuid;not null;index:idx_usage_events_child_time,priority:1"`
	LoggedAt  time.Time `gorm:"not null;index:idx_usage_events_child_time,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UsageEventModel) TableName() string {
	return "usage_events"
}

// InventoryLevelModel tracks the on-hand diaper count per child
type InventoryLevelModel struct {
	ChildID   uuid.UUID `gorm:"type:uuid;primary_key"`
	OnHand    float64   `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InventoryLevelModel) TableName() string {
	return "inventory_levels"
}

// ConsumptionPredictionModel is the persistence model for one forecast run.
// Rows are insert-only; later runs supersede earlier ones by recency.
type ConsumptionPredictionModel struct {
	BaseModel
	HouseholdID  uuid.UUID `gorm:"type:uuid;not null;index"`
	ChildID      uuid.UUID `gorm:"type:uuid;not null;index:idx_predictions_child_created,priority:1"`
	ModelVersion string    `gorm:"type:varchar(50);not null"`
	HorizonDays  int       `gorm:"not null"`
	Confidence   string    `gorm:"type:varchar(20);not null"`

	DailyRate           float64   `gorm:"not null"`
	HorizonQuantity     int       `gorm:"not null"`
	PredictedRunoutDate time.Time `gorm:"not null"`
	RecommendedReorder  time.Time `gorm:"not null"`

	MAE      float64 `gorm:"column:mae;not null"`
	RSquared float64 `gorm:"column:r_squared;not null"`

	SizeChangeProbability *float64
	SizeChangeDate        *time.Time

	TrainingSamples int       `gorm:"not null"`
	TrainedAt       time.Time `gorm:"not null"`
	PredictionDate  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConsumptionPredictionModel) TableName() string {
	return "consumption_predictions"
}

// ToDomain converts the persistence model to a domain ConsumptionPrediction
func (m *ConsumptionPredictionModel) ToDomain() *forecast.ConsumptionPrediction {
	p := &forecast.ConsumptionPrediction{
		BaseEntity:          m.BaseModel.ToDomain(),
		HouseholdID:         m.HouseholdID,
		ChildID:             m.ChildID,
		ModelVersion:        m.ModelVersion,
		HorizonDays:         m.HorizonDays,
		Confidence:          forecast.ConfidenceGrade(m.Confidence),
		DailyRate:           m.DailyRate,
		HorizonQuantity:     m.HorizonQuantity,
		PredictedRunoutDate: m.PredictedRunoutDate,
		RecommendedReorder:  m.RecommendedReorder,
		MAE:                 m.MAE,
		RSquared:            m.RSquared,
		TrainingSamples:     m.TrainingSamples,
		TrainedAt:           m.TrainedAt,
		PredictionDate:      m.PredictionDate,
	}
	if m.SizeChangeProbability != nil && m.SizeChangeDate != nil {
		p.SizeChange = &forecast.SizeChangeEstimate{
			Probability:   *m.SizeChangeProbability,
			EstimatedDate: *m.SizeChangeDate,
		}
	}
	return p
}

// FromDomain populates the persistence model from a domain ConsumptionPrediction
func (m *ConsumptionPredictionModel) FromDomain(p *forecast.ConsumptionPrediction) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.HouseholdID = p.HouseholdID
	m.ChildID = p.ChildID
	m.ModelVersion = p.ModelVersion
	m.HorizonDays = p.HorizonDays
	m.Confidence = p.Confidence.String()
	m.DailyRate = p.DailyRate
	m.HorizonQuantity = p.HorizonQuantity
	m.PredictedRunoutDate = p.PredictedRunoutDate
	m.RecommendedReorder = p.RecommendedReorder
	m.MAE = p.MAE
	m.RSquared = p.RSquared
	m.TrainingSamples = p.TrainingSamples
	m.TrainedAt = p.TrainedAt
	m.PredictionDate = p.PredictionDate
	if p.SizeChange != nil {
		prob := p.SizeChange.Probability
		date := p.SizeChange.EstimatedDate
		m.SizeChangeProbability = &prob
		m.SizeChangeDate = &date
	} else {
		m.SizeChangeProbability = nil
		m.SizeChangeDate = nil
	}
}
