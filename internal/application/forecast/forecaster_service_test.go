package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/forecast"
	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/infrastructure/cache"
	"github.com/littleloop/backend/internal/infrastructure/config"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeHouseholdRepo struct {
	households map[uuid.UUID]*household.Household
	children   map[uuid.UUID]*household.Child
}

func newFakeHouseholdRepo() *fakeHouseholdRepo {
	return &fakeHouseholdRepo{
		households: make(map[uuid.UUID]*household.Household),
		children:   make(map[uuid.UUID]*household.Child),
	}
}

func (r *fakeHouseholdRepo) FindByID(_ context.Context, id uuid.UUID) (*household.Household, error) {
	h, ok := r.households[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return h, nil
}

func (r *fakeHouseholdRepo) FindChild(_ context.Context, childID uuid.UUID) (*household.Child, error) {
	c, ok := r.children[childID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (r *fakeHouseholdRepo) FindChildOwnedBy(_ context.Context, householdID, childID uuid.UUID) (*household.Child, error) {
	c, ok := r.children[childID]
	if !ok || c.HouseholdID != householdID {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (r *fakeHouseholdRepo) FindChildrenByHousehold(_ context.Context, householdID uuid.UUID) ([]*household.Child, error) {
	var out []*household.Child
	for _, c := range r.children {
		if c.HouseholdID == householdID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeHouseholdRepo) FindAutoReorderHouseholds(_ context.Context) ([]*household.Household, error) {
	var out []*household.Household
	for _, h := range r.households {
		if h.AutoReorder {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeHouseholdRepo) Save(_ context.Context, h *household.Household) error {
	r.households[h.ID] = h
	return nil
}

func (r *fakeHouseholdRepo) SaveChild(_ context.Context, c *household.Child) error {
	r.children[c.ID] = c
	return nil
}

type fakeUsageStore struct {
	usage map[uuid.UUID][]forecast.DailyUsage
}

func (s *fakeUsageStore) QueryDailyUsage(_ context.Context, childID uuid.UUID, start, end time.Time) ([]forecast.DailyUsage, error) {
	var out []forecast.DailyUsage
	for _, u := range s.usage[childID] {
		if !u.Date.Before(start) && u.Date.Before(end) {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeInventoryStore struct {
	onHand map[uuid.UUID]float64
}

func (s *fakeInventoryStore) CurrentOnHand(_ context.Context, childID uuid.UUID) (float64, error) {
	return s.onHand[childID], nil
}

type fakePredictionRepo struct {
	saved []*forecast.ConsumptionPrediction
}

func (r *fakePredictionRepo) Save(_ context.Context, p *forecast.ConsumptionPrediction) error {
	r.saved = append(r.saved, p)
	return nil
}

func (r *fakePredictionRepo) FindByID(_ context.Context, id uuid.UUID) (*forecast.ConsumptionPrediction, error) {
	for _, p := range r.saved {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakePredictionRepo) FindLatestByChild(_ context.Context, childID uuid.UUID) (*forecast.ConsumptionPrediction, error) {
	for i := len(r.saved) - 1; i >= 0; i-- {
		if r.saved[i].ChildID == childID {
			return r.saved[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	service     *ForecasterService
	households  *fakeHouseholdRepo
	usage       *fakeUsageStore
	inventory   *fakeInventoryStore
	predictions *fakePredictionRepo
	householdID uuid.UUID
	childID     uuid.UUID
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	households := newFakeHouseholdRepo()
	h := &household.Household{BaseEntity: shared.NewBaseEntity(), Email: "parent@example.com", Name: "Lee"}
	require.NoError(t, households.Save(context.Background(), h))

	child := &household.Child{
		BaseEntity:  shared.NewBaseEntity(),
		HouseholdID: h.ID,
		Name:        "Sam",
		BirthDate:   now.AddDate(0, -4, 0),
		CurrentSize: "2",
	}
	require.NoError(t, households.SaveChild(context.Background(), child))

	usage := &fakeUsageStore{usage: make(map[uuid.UUID][]forecast.DailyUsage)}
	inventory := &fakeInventoryStore{onHand: make(map[uuid.UUID]float64)}
	predictions := &fakePredictionRepo{}

	cfg := &config.ForecastConfig{
		ModelCacheTTL:      time.Minute,
		FitWorkers:         2,
		DefaultHorizonDays: 30,
		HistoryDays:        90,
	}

	service := NewForecasterService(
		households, usage, inventory, predictions,
		cache.NewModelCache(cfg.ModelCacheTTL), cfg, zap.NewNop(),
	)
	service.now = func() time.Time { return now }

	return &fixture{
		service:     service,
		households:  households,
		usage:       usage,
		inventory:   inventory,
		predictions: predictions,
		householdID: h.ID,
		childID:     child.ID,
		now:         now,
	}
}

// seedUsage adds `days` consecutive daily observations ending today, so the
// trailing window holds exactly seven full days at countPerDay.
func (f *fixture) seedUsage(days, countPerDay int) {
	var usage []forecast.DailyUsage
	for i := days - 1; i >= 0; i-- {
		usage = append(usage, forecast.DailyUsage{
			Date:  f.now.AddDate(0, 0, -i).Truncate(24 * time.Hour),
			Count: countPerDay,
		})
	}
	f.usage.usage[f.childID] = usage
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestForecasterService_InsufficientHistory(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(13, 6)

	_, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	assert.ErrorIs(t, err, forecast.ErrInsufficientHistory)
	assert.Empty(t, f.predictions.saved)
}

func TestForecasterService_MinimumHistoryForecasts(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(14, 6)

	p, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	assert.Equal(t, 14, p.TrainingSamples)
	assert.Equal(t, forecast.ModelVersion, p.ModelVersion)
	// Below the holdout threshold the fixed conservative metrics apply
	assert.Equal(t, 0.5, p.MAE)
	assert.Equal(t, 0.5, p.RSquared)
	assert.Equal(t, forecast.ConfidenceMedium, p.Confidence)
	require.Len(t, f.predictions.saved, 1)
}

func TestForecasterService_HoldoutScoringAboveThreshold(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(40, 6)

	p, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	assert.Equal(t, 40, p.TrainingSamples)
	// A real holdout was scored: MAE reflects the data, not the fixed value
	assert.NotEqual(t, 0.5, p.MAE)
	assert.True(t, p.Confidence.IsValid())
	assert.True(t, p.HorizonQuantity > 0)
}

func TestForecasterService_RunoutAndReorderDates(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(30, 5)
	f.inventory.onHand[f.childID] = 35 // 7 days at 5/day

	p, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	assert.InDelta(t, 5.0, p.DailyRate, 0.01)
	assert.Equal(t, f.now.AddDate(0, 0, 7), p.PredictedRunoutDate)
	// Lead time lands the reorder exactly on today
	assert.Equal(t, f.now, p.RecommendedReorder)
}

func TestForecasterService_OverdueReorderDateStaysInPast(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(20, 8)
	f.inventory.onHand[f.childID] = 16 // 2 days at 8/day

	p, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	assert.Equal(t, f.now.AddDate(0, 0, 2), p.PredictedRunoutDate)
	// runout minus lead puts the recommendation 5 days ago: the overdue signal
	assert.Equal(t, f.now.AddDate(0, 0, -5), p.RecommendedReorder)
}

func TestForecasterService_RunoutNeverPrecedesPredictionDate(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(30, 8)
	f.inventory.onHand[f.childID] = 0

	p, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	// Runout is clamped to today; the reorder recommendation is not
	assert.Equal(t, f.now, p.PredictedRunoutDate)
	assert.Equal(t, f.now.AddDate(0, 0, -7), p.RecommendedReorder)
}

func TestForecasterService_HorizonQuantityFloor(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(20, 0) // tracked but unused: enough history, zero consumption

	p, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	assert.Equal(t, 1, p.HorizonQuantity)
	assert.Zero(t, p.DailyRate)
}

func TestForecasterService_SizeChangeEstimate(t *testing.T) {
	f := newFixture(t)
	// 4-month-old in the 3-6 month bucket
	f.seedUsage(30, 6)

	p, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	require.NotNil(t, p.SizeChange)
	assert.InDelta(t, 0.30, p.SizeChange.Probability, 0.001)
	assert.Equal(t, f.now.AddDate(0, 0, 30), p.SizeChange.EstimatedDate)
}

func TestForecasterService_HeavyUsageBoostsSizeChange(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(30, 10) // above the heavy-usage threshold

	p, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	require.NotNil(t, p.SizeChange)
	assert.InDelta(t, 0.45, p.SizeChange.Probability, 0.001)
	assert.Equal(t, f.now.AddDate(0, 0, 21), p.SizeChange.EstimatedDate)
}

func TestForecasterService_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(30, 6)

	_, err := f.service.GenerateForecast(context.Background(), uuid.New(), f.childID, 30)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestForecasterService_LatestForecast(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(30, 6)

	first, err := f.service.GenerateForecast(context.Background(), f.householdID, f.childID, 30)
	require.NoError(t, err)

	latest, err := f.service.LatestForecast(context.Background(), f.householdID, f.childID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
}

func TestForecasterService_GenerateForHousehold(t *testing.T) {
	f := newFixture(t)
	f.seedUsage(30, 6)

	// Second child with too little history
	sparse := &household.Child{
		BaseEntity:  shared.NewBaseEntity(),
		HouseholdID: f.householdID,
		Name:        "Alex",
		BirthDate:   f.now.AddDate(-1, 0, 0),
	}
	require.NoError(t, f.households.SaveChild(context.Background(), sparse))

	results, err := f.service.GenerateForHousehold(context.Background(), f.householdID,
		[]uuid.UUID{f.childID, sparse.ID}, 30)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byChild := map[uuid.UUID]HouseholdForecast{}
	for _, r := range results {
		byChild[r.ChildID] = r
	}
	assert.NoError(t, byChild[f.childID].Err)
	assert.NotNil(t, byChild[f.childID].Prediction)
	assert.ErrorIs(t, byChild[sparse.ID].Err, forecast.ErrInsufficientHistory)
}
