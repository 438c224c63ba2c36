package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubScanner struct {
	mu         sync.Mutex
	households []uuid.UUID
	err        error
	calls      int
}

func (s *stubScanner) ScanAutoReorderHouseholds(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.households, nil
}

type stubExecutor struct {
	mu       sync.Mutex
	executed []*ReorderJob
	err      error
	block    chan struct{}

	// complete is applied to the job when err is nil
	complete func(job *ReorderJob)
}

func (e *stubExecutor) Execute(ctx context.Context, job *ReorderJob) error {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	e.executed = append(e.executed, job)
	e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	if e.complete != nil {
		e.complete(job)
	} else {
		job.Complete(1, 1, 0, 0)
	}
	return nil
}

func (e *stubExecutor) executedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executed)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newTestScheduler(t *testing.T, scanner *stubScanner, executor *stubExecutor) *ReorderScheduler {
	t.Helper()
	cfg := ReorderSchedulerConfig{
		Enabled:           true,
		ScanInterval:      time.Hour,
		MaxConcurrentJobs: 2,
		JobTimeout:        time.Second,
	}
	s, err := NewReorderScheduler(cfg, scanner, executor, zap.NewNop())
	require.NoError(t, err)
	return s
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestReorderSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ReorderSchedulerConfig)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *ReorderSchedulerConfig) {}},
		{name: "zero scan interval", mutate: func(c *ReorderSchedulerConfig) { c.ScanInterval = 0 }, wantErr: true},
		{name: "zero workers", mutate: func(c *ReorderSchedulerConfig) { c.MaxConcurrentJobs = 0 }, wantErr: true},
		{name: "negative job timeout", mutate: func(c *ReorderSchedulerConfig) { c.JobTimeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReorderSchedulerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewReorderScheduler_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultReorderSchedulerConfig()
	cfg.MaxConcurrentJobs = 0

	_, err := NewReorderScheduler(cfg, &stubScanner{}, &stubExecutor{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// Job lifecycle
// ---------------------------------------------------------------------------

func TestReorderJob_CompleteDerivesStatus(t *testing.T) {
	tests := []struct {
		name                                string
		forecasts, ordered, skipped, failed int
		want                                ReorderJobStatus
	}{
		{name: "all clean", forecasts: 2, ordered: 1, skipped: 1, want: ReorderJobStatusSuccess},
		{name: "nothing to do", want: ReorderJobStatusSuccess},
		{name: "some failures", forecasts: 3, ordered: 1, skipped: 1, failed: 1, want: ReorderJobStatusPartial},
		{name: "only failures", forecasts: 2, failed: 2, want: ReorderJobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewReorderJob(uuid.New())
			job.Start()
			job.Complete(tt.forecasts, tt.ordered, tt.skipped, tt.failed)

			assert.Equal(t, tt.want, job.Status)
			assert.NotNil(t, job.StartedAt)
			assert.NotNil(t, job.CompletedAt)
		})
	}
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

func TestReorderScheduler_SubmitAndProcess(t *testing.T) {
	executor := &stubExecutor{}
	s := newTestScheduler(t, &stubScanner{}, executor)

	require.NoError(t, s.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	householdID := uuid.New()
	require.NoError(t, s.SubmitJob(NewReorderJob(householdID)))

	waitFor(t, time.Second, func() bool { return executor.executedCount() == 1 })

	history := s.GetJobHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, householdID, history[0].HouseholdID)
	assert.Equal(t, ReorderJobStatusSuccess, history[0].Status)
	assert.Equal(t, 1, history[0].ForecastCount)
	assert.Equal(t, 1, history[0].OrderedCount)
}

func TestReorderScheduler_ExecutorErrorFailsJob(t *testing.T) {
	executor := &stubExecutor{err: errors.New("forecast store unavailable")}
	s := newTestScheduler(t, &stubScanner{}, executor)

	require.NoError(t, s.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	require.NoError(t, s.SubmitJob(NewReorderJob(uuid.New())))

	waitFor(t, time.Second, func() bool { return len(s.GetJobHistory(1)) == 1 })

	job := s.GetJobHistory(1)[0]
	assert.Equal(t, ReorderJobStatusFailed, job.Status)
	assert.Equal(t, "forecast store unavailable", job.Error)
}

func TestReorderScheduler_TriggerScanSubmitsPerHousehold(t *testing.T) {
	scanner := &stubScanner{households: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}
	executor := &stubExecutor{}
	s := newTestScheduler(t, scanner, executor)

	require.NoError(t, s.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	require.NoError(t, s.TriggerScan(context.Background()))

	waitFor(t, time.Second, func() bool { return executor.executedCount() == 3 })
	assert.Len(t, s.GetJobHistory(10), 3)
}

func TestReorderScheduler_TriggerScanPropagatesScannerError(t *testing.T) {
	scanner := &stubScanner{err: errors.New("db down")}
	s := newTestScheduler(t, scanner, &stubExecutor{})

	require.NoError(t, s.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(stopCtx)
	}()

	err := s.TriggerScan(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestReorderScheduler_SubmitWhenNotRunning(t *testing.T) {
	s := newTestScheduler(t, &stubScanner{}, &stubExecutor{})

	err := s.SubmitJob(NewReorderJob(uuid.New()))
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestReorderScheduler_StopDrainsQueuedJobs(t *testing.T) {
	block := make(chan struct{})
	executor := &stubExecutor{block: block}
	s := newTestScheduler(t, &stubScanner{}, executor)

	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.SubmitJob(NewReorderJob(uuid.New())))
	}
	close(block)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	assert.ErrorIs(t, s.SubmitJob(NewReorderJob(uuid.New())), ErrSchedulerNotRunning)
}

func TestReorderScheduler_HistoryIsNewestFirstAndBounded(t *testing.T) {
	s := newTestScheduler(t, &stubScanner{}, &stubExecutor{})
	s.maxHistory = 3

	for i := 0; i < 5; i++ {
		job := NewReorderJob(uuid.New())
		job.Start()
		job.Complete(i, 0, 0, 0)
		s.addToHistory(job)
	}

	history := s.GetJobHistory(0)
	require.Len(t, history, 3)
	assert.Equal(t, 4, history[0].ForecastCount)
	assert.Equal(t, 2, history[2].ForecastCount)

	limited := s.GetJobHistory(2)
	assert.Len(t, limited, 2)
}
