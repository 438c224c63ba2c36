// Package retail manages household retailer connections: credential
// verification, health status and manual reactivation.
package retail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared"
)

// ConfigurationService manages retailer configurations for households
type ConfigurationService struct {
	households  household.Repository
	configs     retailer.ConfigurationRepository
	registry    retailer.Registry
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewConfigurationService creates a new ConfigurationService
func NewConfigurationService(
	households household.Repository,
	configs retailer.ConfigurationRepository,
	registry retailer.Registry,
	callTimeout time.Duration,
	logger *zap.Logger,
) *ConfigurationService {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	return &ConfigurationService{
		households:  households,
		configs:     configs,
		registry:    registry,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// ConnectRetailerInput carries the credentials to verify and store
type ConnectRetailerInput struct {
	HouseholdID uuid.UUID
	Retailer    retailer.Code
	Credentials retailer.Credentials
}

// ConnectRetailer verifies the credentials against the retailer API and
// stores them. Reconnecting an existing configuration replaces its
// credentials and reactivates it.
func (s *ConfigurationService) ConnectRetailer(ctx context.Context, input ConnectRetailerInput) (*retailer.Configuration, error) {
	if _, err := s.households.FindByID(ctx, input.HouseholdID); err != nil {
		return nil, err
	}

	backend, err := s.registry.Backend(input.Retailer)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := backend.TestConnection(callCtx, input.Credentials); err != nil {
		return nil, fmt.Errorf("%w: %s connection test failed: %v",
			shared.ErrExternalService, input.Retailer, err)
	}

	cfg, err := s.existingConfiguration(ctx, input.HouseholdID, input.Retailer)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		cfg.Credentials = input.Credentials
		cfg.Reactivate()
	} else {
		cfg, err = retailer.NewConfiguration(input.HouseholdID, input.Retailer, input.Credentials)
		if err != nil {
			return nil, err
		}
	}

	if err := s.configs.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save configuration: %w", err)
	}

	s.logger.Info("Retailer connected",
		zap.String("household_id", input.HouseholdID.String()),
		zap.String("retailer", input.Retailer.String()))
	return cfg, nil
}

// TestConfiguration re-verifies a stored configuration against the retailer
// API, updating its health counters either way.
func (s *ConfigurationService) TestConfiguration(ctx context.Context, householdID, configID uuid.UUID) (*retailer.Configuration, error) {
	cfg, err := s.ownedConfiguration(ctx, householdID, configID)
	if err != nil {
		return nil, err
	}

	backend, err := s.registry.Backend(cfg.Retailer)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := backend.TestConnection(callCtx, cfg.Credentials); err != nil {
		if _, ferr := s.configs.RecordFailure(ctx, cfg.ID, err.Error()); ferr != nil {
			return nil, ferr
		}
		return s.configs.FindByID(ctx, cfg.ID)
	}

	if err := s.configs.RecordSuccess(ctx, cfg.ID); err != nil {
		return nil, err
	}
	return s.configs.FindByID(ctx, cfg.ID)
}

// ListConfigurations returns the household's retailer configurations
func (s *ConfigurationService) ListConfigurations(ctx context.Context, householdID uuid.UUID) ([]*retailer.Configuration, error) {
	return s.configs.FindByHousehold(ctx, householdID)
}

// DisconnectRetailer deactivates a configuration. Credentials stay stored so
// a later reconnection can reuse them after verification.
func (s *ConfigurationService) DisconnectRetailer(ctx context.Context, householdID, configID uuid.UUID) error {
	cfg, err := s.ownedConfiguration(ctx, householdID, configID)
	if err != nil {
		return err
	}
	cfg.Deactivate()
	if err := s.configs.Save(ctx, cfg); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	s.logger.Info("Retailer disconnected",
		zap.String("household_id", householdID.String()),
		zap.String("retailer", cfg.Retailer.String()))
	return nil
}

func (s *ConfigurationService) ownedConfiguration(ctx context.Context, householdID, configID uuid.UUID) (*retailer.Configuration, error) {
	cfg, err := s.configs.FindByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.HouseholdID != householdID {
		return nil, shared.ErrNotFound
	}
	return cfg, nil
}

func (s *ConfigurationService) existingConfiguration(ctx context.Context, householdID uuid.UUID, code retailer.Code) (*retailer.Configuration, error) {
	configs, err := s.configs.FindByHousehold(ctx, householdID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.Retailer == code {
			return cfg, nil
		}
	}
	return nil, nil
}
