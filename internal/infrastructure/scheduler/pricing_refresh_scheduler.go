package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/order"
	"github.com/littleloop/backend/internal/domain/retailer"
)

// recentOrderLimit bounds how many past orders feed the refresh set
const recentOrderLimit = 10

// PricingRefreshSchedulerConfig holds configuration for the pricing refresh loop
type PricingRefreshSchedulerConfig struct {
	Enabled bool
	// Interval is how often prices are refreshed
	Interval time.Duration
	// CallTimeout bounds each retailer pricing call
	CallTimeout time.Duration
}

// DefaultPricingRefreshSchedulerConfig returns default configuration
func DefaultPricingRefreshSchedulerConfig() PricingRefreshSchedulerConfig {
	return PricingRefreshSchedulerConfig{
		Enabled:     true,
		Interval:    6 * time.Hour,
		CallTimeout: 15 * time.Second,
	}
}

// PricingRefreshScheduler periodically refreshes retailer prices for the
// products each auto-reorder household has been buying, keeping the retailer
// health counters honest between orders.
type PricingRefreshScheduler struct {
	config       PricingRefreshSchedulerConfig
	households   household.Repository
	configs      retailer.ConfigurationRepository
	transactions order.Repository
	registry     retailer.Registry
	logger       *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPricingRefreshScheduler creates a new pricing refresh scheduler
func NewPricingRefreshScheduler(
	config PricingRefreshSchedulerConfig,
	households household.Repository,
	configs retailer.ConfigurationRepository,
	transactions order.Repository,
	registry retailer.Registry,
	logger *zap.Logger,
) (*PricingRefreshScheduler, error) {
	if config.Interval <= 0 || config.CallTimeout <= 0 {
		return nil, ErrInvalidConfig
	}
	return &PricingRefreshScheduler{
		config:       config,
		households:   households,
		configs:      configs,
		transactions: transactions,
		registry:     registry,
		logger:       logger,
	}, nil
}

// Start starts the refresh loop
func (s *PricingRefreshScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RefreshAll(ctx)
			}
		}
	}()

	s.logger.Info("Pricing refresh scheduler started",
		zap.Duration("interval", s.config.Interval))
	return nil
}

// Stop stops the refresh loop
func (s *PricingRefreshScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Pricing refresh scheduler stopped")
}

// RefreshAll runs one refresh pass over every auto-reorder household
func (s *PricingRefreshScheduler) RefreshAll(ctx context.Context) {
	households, err := s.households.FindAutoReorderHouseholds(ctx)
	if err != nil {
		s.logger.Error("Pricing refresh scan failed", zap.Error(err))
		return
	}

	var refreshed, failures int
	for _, h := range households {
		configs, err := s.configs.FindByHousehold(ctx, h.ID)
		if err != nil {
			s.logger.Warn("Could not load retailer configurations",
				zap.String("household_id", h.ID.String()), zap.Error(err))
			continue
		}
		for _, cfg := range configs {
			if !cfg.IsActive {
				continue
			}
			n, err := s.refreshConfiguration(ctx, h, cfg)
			if err != nil {
				failures++
				continue
			}
			refreshed += n
		}
	}
	s.logger.Info("Pricing refresh pass complete",
		zap.Int("households", len(households)),
		zap.Int("products_refreshed", refreshed),
		zap.Int("failures", failures))
}

// refreshConfiguration refreshes prices for the products in the household's
// recent orders through one retailer configuration.
func (s *PricingRefreshScheduler) refreshConfiguration(ctx context.Context, h *household.Household, cfg *retailer.Configuration) (int, error) {
	productIDs, err := s.recentProductIDs(ctx, h, cfg.Retailer)
	if err != nil {
		return 0, err
	}
	if len(productIDs) == 0 {
		return 0, nil
	}

	backend, err := s.registry.Backend(cfg.Retailer)
	if err != nil {
		return 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()
	updates, err := backend.UpdatePricing(callCtx, cfg.Credentials, productIDs)
	if err != nil {
		if _, ferr := s.configs.RecordFailure(ctx, cfg.ID, err.Error()); ferr != nil {
			s.logger.Warn("Could not record pricing failure",
				zap.String("configuration_id", cfg.ID.String()), zap.Error(ferr))
		}
		s.logger.Warn("Pricing refresh failed",
			zap.String("household_id", h.ID.String()),
			zap.String("retailer", cfg.Retailer.String()),
			zap.Error(err))
		return 0, err
	}
	if err := s.configs.RecordSuccess(ctx, cfg.ID); err != nil {
		s.logger.Warn("Could not record pricing success",
			zap.String("configuration_id", cfg.ID.String()), zap.Error(err))
	}

	for _, u := range updates {
		if !u.InStock {
			s.logger.Info("Tracked product out of stock",
				zap.String("retailer", cfg.Retailer.String()),
				zap.String("retailer_product_id", u.RetailerProductID))
		}
	}
	return len(updates), nil
}

// recentProductIDs collects distinct product IDs from the household's recent
// orders with one retailer.
func (s *PricingRefreshScheduler) recentProductIDs(ctx context.Context, h *household.Household, code retailer.Code) ([]string, error) {
	transactions, err := s.transactions.FindByHousehold(ctx, h.ID, recentOrderLimit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, tx := range transactions {
		if tx.Retailer != code {
			continue
		}
		for _, item := range tx.Items {
			if _, ok := seen[item.RetailerProductID]; ok {
				continue
			}
			seen[item.RetailerProductID] = struct{}{}
			ids = append(ids, item.RetailerProductID)
		}
	}
	return ids, nil
}
