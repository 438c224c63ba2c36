// Package forecast implements the demand forecasting application service:
// usage aggregation, model fitting with holdout scoring, and runout/reorder
// recommendations.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/littleloop/backend/internal/domain/forecast"
	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/infrastructure/cache"
	"github.com/littleloop/backend/internal/infrastructure/config"
	"github.com/littleloop/backend/internal/infrastructure/forecasting"
)

const (
	// holdoutFraction is the chronological share of history held out for scoring
	holdoutFraction = 0.2

	// conservativeMAE and conservativeR2 are reported when history is too
	// short for a holdout split.
	conservativeMAE = 0.5
	conservativeR2  = 0.5

	// trailingWindowDays is the window for the runout daily rate
	trailingWindowDays = 7

	// reorderLeadDays is subtracted from the runout date so the order
	// arrives before supplies run out.
	reorderLeadDays = 7
)

// ForecasterService generates consumption predictions for tracked children
type ForecasterService struct {
	households  household.Repository
	usage       forecast.UsageHistoryStore
	inventory   forecast.InventoryStore
	predictions forecast.PredictionRepository
	modelCache  *cache.ModelCache
	cfg         *config.ForecastConfig
	logger      *zap.Logger
	// now is injectable for deterministic tests
	now func() time.Time
}

// NewForecasterService creates a new ForecasterService
func NewForecasterService(
	households household.Repository,
	usage forecast.UsageHistoryStore,
	inventory forecast.InventoryStore,
	predictions forecast.PredictionRepository,
	modelCache *cache.ModelCache,
	cfg *config.ForecastConfig,
	logger *zap.Logger,
) *ForecasterService {
	return &ForecasterService{
		households:  households,
		usage:       usage,
		inventory:   inventory,
		predictions: predictions,
		modelCache:  modelCache,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// GenerateForecast fits (or reuses) a model for the child and produces one
// persisted prediction. The child must belong to the household.
func (s *ForecasterService) GenerateForecast(ctx context.Context, householdID, childID uuid.UUID, horizonDays int) (*forecast.ConsumptionPrediction, error) {
	child, err := s.households.FindChildOwnedBy(ctx, householdID, childID)
	if err != nil {
		return nil, err
	}
	if horizonDays <= 0 {
		horizonDays = s.cfg.DefaultHorizonDays
	}

	now := s.now()
	start := now.AddDate(0, 0, -s.cfg.HistoryDays)
	usage, err := s.usage.QueryDailyUsage(ctx, childID, start, now)
	if err != nil {
		return nil, fmt.Errorf("query usage history: %w", err)
	}
	if len(usage) < forecast.MinHistoryDays {
		s.logger.Info("Insufficient usage history for forecast",
			zap.String("child_id", childID.String()),
			zap.Int("days", len(usage)),
			zap.Int("required", forecast.MinHistoryDays))
		return nil, forecast.ErrInsufficientHistory
	}

	obs := toObservations(usage, child.BirthDate)

	mae, r2, err := s.score(obs)
	if err != nil {
		return nil, err
	}

	key := cache.ModelKey{HouseholdID: householdID, ChildID: childID}
	model, err := s.modelCache.GetOrFit(key, func() (*forecasting.Model, error) {
		m, err := forecasting.Fit(obs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", forecast.ErrFitFailed, err)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	horizon := model.Forecast(now, horizonDays, func(d time.Time) (float64, float64) {
		return forecasting.RegressorsFor(child.BirthDate, d)
	})
	var horizonTotal float64
	for _, v := range horizon {
		horizonTotal += v
	}

	trailingRate := trailingDailyRate(usage, now)

	onHand, err := s.inventory.CurrentOnHand(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	runout := s.runoutDate(now, onHand, trailingRate)
	// Reorder lead is not clamped: a date in the past signals an overdue order
	reorder := runout.AddDate(0, 0, -reorderLeadDays)

	quantity := int(math.Ceil(horizonTotal))
	if quantity < 1 {
		quantity = 1
	}

	prediction := &forecast.ConsumptionPrediction{
		HouseholdID:         householdID,
		ChildID:             childID,
		ModelVersion:        forecast.ModelVersion,
		HorizonDays:         horizonDays,
		Confidence:          forecast.GradeConfidence(len(usage), mae, r2),
		DailyRate:           trailingRate,
		HorizonQuantity:     quantity,
		PredictedRunoutDate: runout,
		RecommendedReorder:  reorder,
		MAE:                 mae,
		RSquared:            r2,
		SizeChange:          forecast.EstimateSizeChange(child.AgeInMonths(now), trailingRate, now),
		TrainingSamples:     len(usage),
		TrainedAt:           now,
		PredictionDate:      now,
	}
	prediction.BaseEntity = shared.NewBaseEntity()

	if err := s.predictions.Save(ctx, prediction); err != nil {
		return nil, fmt.Errorf("save prediction: %w", err)
	}

	s.logger.Info("Generated consumption prediction",
		zap.String("child_id", childID.String()),
		zap.Float64("daily_rate", trailingRate),
		zap.String("confidence", prediction.Confidence.String()),
		zap.Time("runout", runout))

	return prediction, nil
}

// LatestForecast returns the most recent prediction for an owned child
func (s *ForecasterService) LatestForecast(ctx context.Context, householdID, childID uuid.UUID) (*forecast.ConsumptionPrediction, error) {
	if _, err := s.households.FindChildOwnedBy(ctx, householdID, childID); err != nil {
		return nil, err
	}
	return s.predictions.FindLatestByChild(ctx, childID)
}

// HouseholdForecast is one child's outcome in a batch run
type HouseholdForecast struct {
	ChildID    uuid.UUID
	Prediction *forecast.ConsumptionPrediction
	Err        error
}

// GenerateForHousehold forecasts every tracked child of a household. Fits
// run concurrently, bounded by the configured worker count. A child with
// insufficient history yields an entry with the error, not a batch failure.
func (s *ForecasterService) GenerateForHousehold(ctx context.Context, householdID uuid.UUID, childIDs []uuid.UUID, horizonDays int) ([]HouseholdForecast, error) {
	results := make([]HouseholdForecast, len(childIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fitWorkers())
	for i, childID := range childIDs {
		g.Go(func() error {
			p, err := s.GenerateForecast(gctx, householdID, childID, horizonDays)
			results[i] = HouseholdForecast{ChildID: childID, Prediction: p, Err: err}
			if err != nil && !errors.Is(err, forecast.ErrInsufficientHistory) {
				s.logger.Warn("Forecast failed for child",
					zap.String("child_id", childID.String()),
					zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// InvalidateModel drops the cached model for a child, forcing a refit on
// the next forecast. Called when fresh usage data arrives in bulk.
func (s *ForecasterService) InvalidateModel(householdID, childID uuid.UUID) {
	s.modelCache.Invalidate(cache.ModelKey{HouseholdID: householdID, ChildID: childID})
}

func (s *ForecasterService) fitWorkers() int {
	if s.cfg.FitWorkers > 0 {
		return s.cfg.FitWorkers
	}
	return 1
}

// score computes holdout quality metrics. With enough history the split is
// chronological 80/20; shorter histories report fixed conservative metrics
// because a tiny holdout scores more noise than signal.
func (s *ForecasterService) score(obs []forecasting.Observation) (mae, r2 float64, err error) {
	if len(obs) < forecast.MinCrossValidationDays {
		return conservativeMAE, conservativeR2, nil
	}

	split := len(obs) - int(math.Round(float64(len(obs))*holdoutFraction))
	train, holdout := obs[:split], obs[split:]

	model, err := forecasting.Fit(train)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", forecast.ErrFitFailed, err)
	}
	mae, r2 = forecasting.Evaluate(model, holdout)
	return mae, r2, nil
}

// runoutDate projects when on-hand stock depletes at the trailing rate.
// The result never precedes the prediction date.
func (s *ForecasterService) runoutDate(now time.Time, onHand, rate float64) time.Time {
	if rate < 1 {
		rate = 1
	}
	days := int(math.Floor(onHand / rate))
	if days < 0 {
		days = 0
	}
	return now.AddDate(0, 0, days)
}

// toObservations pairs daily counts with their deterministic regressors
func toObservations(usage []forecast.DailyUsage, birthDate time.Time) []forecasting.Observation {
	obs := make([]forecasting.Observation, 0, len(usage))
	for _, u := range usage {
		growth, seasonal := forecasting.RegressorsFor(birthDate, u.Date)
		obs = append(obs, forecasting.Observation{
			Date:     u.Date,
			Count:    float64(u.Count),
			Growth:   growth,
			Seasonal: seasonal,
		})
	}
	return obs
}

// trailingDailyRate averages the last window of observed daily counts.
// Missing days inside the window count as zero usage.
func trailingDailyRate(usage []forecast.DailyUsage, now time.Time) float64 {
	cutoff := now.AddDate(0, 0, -trailingWindowDays)
	var total float64
	for _, u := range usage {
		if u.Date.After(cutoff) {
			total += float64(u.Count)
		}
	}
	return total / trailingWindowDays
}
