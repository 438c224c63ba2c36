package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appforecast "github.com/littleloop/backend/internal/application/forecast"
	"github.com/littleloop/backend/internal/application/reorder"
	"github.com/littleloop/backend/internal/domain/forecast"
	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/retailer"
)

// HouseholdRepositoryScanner adapts the household repository to the
// scheduler's scanner port.
type HouseholdRepositoryScanner struct {
	households household.Repository
}

// NewHouseholdRepositoryScanner creates a new scanner over the repository
func NewHouseholdRepositoryScanner(households household.Repository) *HouseholdRepositoryScanner {
	return &HouseholdRepositoryScanner{households: households}
}

// ScanAutoReorderHouseholds lists households with auto-reorder enabled
func (s *HouseholdRepositoryScanner) ScanAutoReorderHouseholds(ctx context.Context) ([]uuid.UUID, error) {
	households, err := s.households.FindAutoReorderHouseholds(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(households))
	for _, h := range households {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

var _ HouseholdScanner = (*HouseholdRepositoryScanner)(nil)

// ForecastReorderExecutor runs one household pass: refresh forecasts for
// every tracked child, then place an order for each child whose recommended
// reorder date has arrived.
type ForecastReorderExecutor struct {
	households   household.Repository
	forecaster   *appforecast.ForecasterService
	orchestrator *reorder.OrchestratorService
	logger       *zap.Logger
	// now is injectable for deterministic tests
	now func() time.Time
}

// NewForecastReorderExecutor creates a new executor
func NewForecastReorderExecutor(
	households household.Repository,
	forecaster *appforecast.ForecasterService,
	orchestrator *reorder.OrchestratorService,
	logger *zap.Logger,
) *ForecastReorderExecutor {
	return &ForecastReorderExecutor{
		households:   households,
		forecaster:   forecaster,
		orchestrator: orchestrator,
		logger:       logger,
		now:          time.Now,
	}
}

var _ ReorderExecutor = (*ForecastReorderExecutor)(nil)

// Execute runs the forecast-and-reorder pass for the job's household
func (e *ForecastReorderExecutor) Execute(ctx context.Context, job *ReorderJob) error {
	children, err := e.households.FindChildrenByHousehold(ctx, job.HouseholdID)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		job.Complete(0, 0, 0, 0)
		return nil
	}

	childIDs := make([]uuid.UUID, 0, len(children))
	for _, c := range children {
		childIDs = append(childIDs, c.ID)
	}

	results, err := e.forecaster.GenerateForHousehold(ctx, job.HouseholdID, childIDs, 0)
	if err != nil {
		return err
	}

	var forecasts, ordered, skipped, failed int
	now := e.now()
	for _, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, forecast.ErrInsufficientHistory) {
				skipped++
				continue
			}
			failed++
			continue
		}
		forecasts++

		if r.Prediction.RecommendedReorder.After(now) {
			skipped++
			continue
		}

		tx, err := e.orchestrator.ExecuteReorder(ctx, r.Prediction)
		if err != nil {
			// A deactivated retailer needs manual reconnection; retrying
			// every scan would only burn the hold-and-refund cycle.
			if errors.Is(err, retailer.ErrRetailerDeactivated) || errors.Is(err, retailer.ErrRetailerNotConfigured) {
				e.logger.Warn("Auto-reorder skipped: retailer unavailable for household",
					zap.String("household_id", job.HouseholdID.String()),
					zap.String("child_id", r.ChildID.String()),
					zap.Error(err))
				skipped++
				continue
			}
			e.logger.Error("Auto-reorder failed for child",
				zap.String("household_id", job.HouseholdID.String()),
				zap.String("child_id", r.ChildID.String()),
				zap.Error(err))
			failed++
			continue
		}
		ordered++
		e.logger.Info("Auto-reorder placed",
			zap.String("household_id", job.HouseholdID.String()),
			zap.String("child_id", r.ChildID.String()),
			zap.String("order_ref", tx.OrderRef))
	}

	job.Complete(forecasts, ordered, skipped, failed)
	return nil
}
