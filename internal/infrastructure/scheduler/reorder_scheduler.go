// Package scheduler runs the background loops: the auto-reorder scan that
// refreshes forecasts and places due orders, and the retailer pricing
// refresh. Jobs run on a bounded worker pool with per-job timeouts.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Reorder Job Types
// ---------------------------------------------------------------------------

// ReorderJobStatus represents the status of a reorder scan job
type ReorderJobStatus string

const (
	ReorderJobStatusPending ReorderJobStatus = "PENDING"
	ReorderJobStatusRunning ReorderJobStatus = "RUNNING"
	ReorderJobStatusSuccess ReorderJobStatus = "SUCCESS"
	ReorderJobStatusPartial ReorderJobStatus = "PARTIAL"
	ReorderJobStatusFailed  ReorderJobStatus = "FAILED"
)

// ReorderJob is one household's forecast-and-reorder pass
type ReorderJob struct {
	ID          uuid.UUID
	HouseholdID uuid.UUID
	Status      ReorderJobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time

	// Pass results
	ForecastCount int
	OrderedCount  int
	SkippedCount  int
	FailedCount   int
}

// NewReorderJob creates a pending job for one household
func NewReorderJob(householdID uuid.UUID) *ReorderJob {
	return &ReorderJob{
		ID:          uuid.New(),
		HouseholdID: householdID,
		Status:      ReorderJobStatusPending,
	}
}

// Start marks the job as running
func (j *ReorderJob) Start() {
	now := time.Now()
	j.Status = ReorderJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete records the pass results and derives the final status
func (j *ReorderJob) Complete(forecasts, ordered, skipped, failed int) {
	now := time.Now()
	j.ForecastCount = forecasts
	j.OrderedCount = ordered
	j.SkippedCount = skipped
	j.FailedCount = failed
	j.CompletedAt = &now

	switch {
	case failed == 0:
		j.Status = ReorderJobStatusSuccess
	case ordered > 0 || skipped > 0:
		j.Status = ReorderJobStatusPartial
	default:
		j.Status = ReorderJobStatusFailed
	}
}

// Fail marks the whole job as failed
func (j *ReorderJob) Fail(err string) {
	now := time.Now()
	j.Status = ReorderJobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ---------------------------------------------------------------------------
// ReorderExecutor Interface
// ---------------------------------------------------------------------------

// ReorderExecutor runs one household's forecast-and-reorder pass
type ReorderExecutor interface {
	Execute(ctx context.Context, job *ReorderJob) error
}

// HouseholdScanner lists the households eligible for auto-reorder
type HouseholdScanner interface {
	ScanAutoReorderHouseholds(ctx context.Context) ([]uuid.UUID, error)
}

// ---------------------------------------------------------------------------
// ReorderSchedulerConfig
// ---------------------------------------------------------------------------

// ReorderSchedulerConfig holds configuration for the reorder scheduler
type ReorderSchedulerConfig struct {
	// Enabled indicates if the scheduler is enabled
	Enabled bool
	// ScanInterval is how often the auto-reorder scan runs
	ScanInterval time.Duration
	// MaxConcurrentJobs is the maximum number of concurrent household jobs
	MaxConcurrentJobs int
	// JobTimeout is the maximum time one household pass may run
	JobTimeout time.Duration
}

// DefaultReorderSchedulerConfig returns default configuration
func DefaultReorderSchedulerConfig() ReorderSchedulerConfig {
	return ReorderSchedulerConfig{
		Enabled:           true,
		ScanInterval:      24 * time.Hour,
		MaxConcurrentJobs: 4,
		JobTimeout:        2 * time.Minute,
	}
}

// Validate validates the configuration
func (c *ReorderSchedulerConfig) Validate() error {
	if c.ScanInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// ReorderScheduler
// ---------------------------------------------------------------------------

// ReorderScheduler owns the periodic auto-reorder scan and the worker pool
// that processes the resulting household jobs.
type ReorderScheduler struct {
	config   ReorderSchedulerConfig
	scanner  HouseholdScanner
	executor ReorderExecutor
	logger   *zap.Logger

	jobs      chan *ReorderJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Job history for monitoring (in-memory, bounded)
	historyMu  sync.RWMutex
	history    []*ReorderJob
	maxHistory int
}

// NewReorderScheduler creates a new reorder scheduler
func NewReorderScheduler(config ReorderSchedulerConfig, scanner HouseholdScanner, executor ReorderExecutor, logger *zap.Logger) (*ReorderScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReorderScheduler{
		config:     config,
		scanner:    scanner,
		executor:   executor,
		logger:     logger,
		jobs:       make(chan *ReorderJob, 100),
		history:    make([]*ReorderJob, 0, 100),
		maxHistory: 100,
	}, nil
}

// Start starts the worker pool and the scan loop
func (s *ReorderScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.wg.Add(1)
	go s.scanLoop(ctx)

	s.logger.Info("Reorder scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("scan_interval", s.config.ScanInterval),
		zap.Duration("job_timeout", s.config.JobTimeout))
	return nil
}

// Stop gracefully stops the scheduler
func (s *ReorderScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	close(s.jobs)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reorder scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reorder scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob queues a job for execution
func (s *ReorderScheduler) SubmitJob(job *ReorderJob) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.mu.Unlock()

	select {
	case s.jobs <- job:
		s.logger.Debug("Reorder job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("household_id", job.HouseholdID.String()))
		return nil
	default:
		return ErrJobQueueFull
	}
}

// TriggerScan runs one scan pass immediately, outside the ticker
func (s *ReorderScheduler) TriggerScan(ctx context.Context) error {
	return s.scan(ctx)
}

// scanLoop walks eligible households on every tick
func (s *ReorderScheduler) scanLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				s.logger.Error("Auto-reorder scan failed", zap.Error(err))
			}
		}
	}
}

func (s *ReorderScheduler) scan(ctx context.Context) error {
	householdIDs, err := s.scanner.ScanAutoReorderHouseholds(ctx)
	if err != nil {
		return err
	}

	submitted := 0
	for _, id := range householdIDs {
		if err := s.SubmitJob(NewReorderJob(id)); err != nil {
			s.logger.Warn("Could not queue reorder job",
				zap.String("household_id", id.String()),
				zap.Error(err))
			continue
		}
		submitted++
	}
	s.logger.Info("Auto-reorder scan complete",
		zap.Int("eligible", len(householdIDs)),
		zap.Int("submitted", submitted))
	return nil
}

// worker processes jobs from the queue
func (s *ReorderScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *ReorderScheduler) processJob(ctx context.Context, job *ReorderJob, workerID int) {
	job.Start()

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if err := s.executor.Execute(jobCtx, job); err != nil {
		job.Fail(err.Error())
		s.logger.Error("Reorder job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("household_id", job.HouseholdID.String()),
			zap.Error(err))
		s.addToHistory(job)
		return
	}

	s.logger.Info("Reorder job completed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("household_id", job.HouseholdID.String()),
		zap.String("status", string(job.Status)),
		zap.Int("forecasts", job.ForecastCount),
		zap.Int("ordered", job.OrderedCount),
		zap.Int("skipped", job.SkippedCount),
		zap.Int("failed", job.FailedCount))
	s.addToHistory(job)
}

func (s *ReorderScheduler) addToHistory(job *ReorderJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*ReorderJob{job}, s.history...)
	if len(s.history) > s.maxHistory {
		s.history = s.history[:s.maxHistory]
	}
}

// GetJobHistory returns recent job history, newest first
func (s *ReorderScheduler) GetJobHistory(limit int) []*ReorderJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*ReorderJob, limit)
	copy(result, s.history[:limit])
	return result
}
