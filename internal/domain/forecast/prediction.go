// Package forecast holds the consumption prediction aggregate and the ports
// its forecaster consumes. Predictions are immutable: a later run supersedes
// an earlier one, it never mutates it.
package forecast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/littleloop/backend/internal/domain/shared"
)

// Forecast errors
var (
	// ErrInsufficientHistory is an expected outcome, not a fault: callers
	// get it whenever fewer than MinHistoryDays daily observations exist.
	ErrInsufficientHistory = errors.New("forecast: insufficient usage history")
	// ErrFitFailed wraps genuine model fitting faults
	ErrFitFailed = errors.New("forecast: model fitting failed")
)

// MinHistoryDays is the minimum number of daily observations required to fit
const MinHistoryDays = 14

// MinCrossValidationDays is the minimum history for an 80/20 holdout score;
// below it the forecaster reports fixed conservative metrics instead.
const MinCrossValidationDays = 21

// ModelVersion identifies the forecasting model generation
const ModelVersion = "additive-v2"

// ConfidenceGrade is an ordinal label summarizing forecast trustworthiness
type ConfidenceGrade string

const (
	ConfidenceVeryLow  ConfidenceGrade = "VERY_LOW"
	ConfidenceLow      ConfidenceGrade = "LOW"
	ConfidenceMedium   ConfidenceGrade = "MEDIUM"
	ConfidenceHigh     ConfidenceGrade = "HIGH"
	ConfidenceVeryHigh ConfidenceGrade = "VERY_HIGH"
)

// IsValid returns true if the grade is a known grade
func (g ConfidenceGrade) IsValid() bool {
	switch g {
	case ConfidenceVeryLow, ConfidenceLow, ConfidenceMedium, ConfidenceHigh, ConfidenceVeryHigh:
		return true
	}
	return false
}

// String returns the string representation of ConfidenceGrade
func (g ConfidenceGrade) String() string {
	return string(g)
}

// GradeConfidence derives the ordinal grade from sample count and holdout
// quality metrics.
func GradeConfidence(sampleCount int, mae, r2 float64) ConfidenceGrade {
	switch {
	case sampleCount < MinHistoryDays:
		return ConfidenceVeryLow
	case sampleCount >= 30 && r2 > 0.8 && mae < 1.5:
		return ConfidenceVeryHigh
	case sampleCount >= 30 && r2 > 0.6 && mae < 2.5:
		return ConfidenceHigh
	case r2 > 0.4 && mae < 3.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SizeChangeEstimate is the optional size transition forecast
type SizeChangeEstimate struct {
	Probability   float64
	EstimatedDate time.Time
}

// ConsumptionPrediction is one forecasting run's output for a child
type ConsumptionPrediction struct {
	shared.BaseEntity
	HouseholdID  uuid.UUID
	ChildID      uuid.UUID
	ModelVersion string
	HorizonDays  int
	Confidence   ConfidenceGrade

	// Point estimates
	DailyRate           float64
	HorizonQuantity     int
	PredictedRunoutDate time.Time
	RecommendedReorder  time.Time

	// Holdout quality metrics
	MAE      float64
	RSquared float64

	// SizeChange is surfaced only above the probability floor, nil otherwise
	SizeChange *SizeChangeEstimate

	// Training metadata
	TrainingSamples int
	TrainedAt       time.Time
	PredictionDate  time.Time
}

// DailyUsage is one aggregated calendar-day observation
type DailyUsage struct {
	Date  time.Time
	Count int
}

// UsageHistoryStore is the external usage-history source
type UsageHistoryStore interface {
	QueryDailyUsage(ctx context.Context, childID uuid.UUID, start, end time.Time) ([]DailyUsage, error)
}

// UsageEventRecorder appends raw usage events
type UsageEventRecorder interface {
	RecordEvent(ctx context.Context, childID uuid.UUID, loggedAt time.Time) error
}

// InventoryStore reports on-hand stock per child
type InventoryStore interface {
	CurrentOnHand(ctx context.Context, childID uuid.UUID) (float64, error)
}

// InventoryWriter sets the on-hand count for a child
type InventoryWriter interface {
	SetOnHand(ctx context.Context, childID uuid.UUID, onHand float64) error
}

// PredictionRepository persists predictions. Saves only ever insert; prior
// rows for the same child stay untouched.
type PredictionRepository interface {
	Save(ctx context.Context, p *ConsumptionPrediction) error
	FindByID(ctx context.Context, id uuid.UUID) (*ConsumptionPrediction, error)
	// FindLatestByChild returns the most recent prediction or shared.ErrNotFound
	FindLatestByChild(ctx context.Context, childID uuid.UUID) (*ConsumptionPrediction, error)
}
