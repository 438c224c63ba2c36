package retail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeHouseholdRepo struct {
	households map[uuid.UUID]*household.Household
}

func (r *fakeHouseholdRepo) FindByID(ctx context.Context, id uuid.UUID) (*household.Household, error) {
	h, ok := r.households[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return h, nil
}

func (r *fakeHouseholdRepo) FindChild(ctx context.Context, childID uuid.UUID) (*household.Child, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeHouseholdRepo) FindChildOwnedBy(ctx context.Context, householdID, childID uuid.UUID) (*household.Child, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeHouseholdRepo) FindChildrenByHousehold(ctx context.Context, householdID uuid.UUID) ([]*household.Child, error) {
	return nil, nil
}

func (r *fakeHouseholdRepo) FindAutoReorderHouseholds(ctx context.Context) ([]*household.Household, error) {
	return nil, nil
}

func (r *fakeHouseholdRepo) Save(ctx context.Context, h *household.Household) error {
	r.households[h.ID] = h
	return nil
}

func (r *fakeHouseholdRepo) SaveChild(ctx context.Context, c *household.Child) error {
	return nil
}

type fakeConfigRepo struct {
	configs map[uuid.UUID]*retailer.Configuration
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{configs: make(map[uuid.UUID]*retailer.Configuration)}
}

func (r *fakeConfigRepo) Save(ctx context.Context, cfg *retailer.Configuration) error {
	r.configs[cfg.ID] = cfg
	return nil
}

func (r *fakeConfigRepo) FindByID(ctx context.Context, id uuid.UUID) (*retailer.Configuration, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cfg, nil
}

func (r *fakeConfigRepo) FindActive(ctx context.Context, householdID uuid.UUID, code retailer.Code) (*retailer.Configuration, error) {
	for _, cfg := range r.configs {
		if cfg.HouseholdID == householdID && cfg.Retailer == code && cfg.IsActive {
			return cfg, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeConfigRepo) FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*retailer.Configuration, error) {
	var out []*retailer.Configuration
	for _, cfg := range r.configs {
		if cfg.HouseholdID == householdID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (r *fakeConfigRepo) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	cfg, ok := r.configs[id]
	if !ok {
		return shared.ErrNotFound
	}
	cfg.RecordSuccess()
	return nil
}

func (r *fakeConfigRepo) RecordFailure(ctx context.Context, id uuid.UUID, cause string) (int, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return 0, shared.ErrNotFound
	}
	cfg.RecordFailure(cause)
	return cfg.ConsecutiveFailures, nil
}

type fakeBackend struct {
	code    retailer.Code
	testErr error
	tested  []retailer.Credentials
}

func (b *fakeBackend) Code() retailer.Code { return b.code }

func (b *fakeBackend) Search(ctx context.Context, creds retailer.Credentials, query retailer.SearchQuery) ([]retailer.ProductOffer, error) {
	return nil, nil
}

func (b *fakeBackend) SubmitOrder(ctx context.Context, creds retailer.Credentials, order retailer.OrderSubmission) (*retailer.OrderReceipt, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBackend) TestConnection(ctx context.Context, creds retailer.Credentials) error {
	b.tested = append(b.tested, creds)
	return b.testErr
}

func (b *fakeBackend) UpdatePricing(ctx context.Context, creds retailer.Credentials, productIDs []string) ([]retailer.PriceUpdate, error) {
	return nil, nil
}

type fakeRegistry struct {
	backends map[retailer.Code]retailer.Backend
}

func (r *fakeRegistry) Backend(code retailer.Code) (retailer.Backend, error) {
	b, ok := r.backends[code]
	if !ok {
		return nil, retailer.ErrUnknownRetailer
	}
	return b, nil
}

func (r *fakeRegistry) Backends() []retailer.Backend {
	var out []retailer.Backend
	for _, b := range r.backends {
		out = append(out, b)
	}
	return out
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type configFixture struct {
	householdID uuid.UUID
	repo        *fakeConfigRepo
	backend     *fakeBackend
	service     *ConfigurationService
}

func newConfigFixture() *configFixture {
	h := &household.Household{BaseEntity: shared.NewBaseEntity(), Email: "parent@example.com"}
	households := &fakeHouseholdRepo{households: map[uuid.UUID]*household.Household{h.ID: h}}

	repo := newFakeConfigRepo()
	backend := &fakeBackend{code: retailer.CodeWalmart}
	registry := &fakeRegistry{backends: map[retailer.Code]retailer.Backend{
		retailer.CodeWalmart: backend,
	}}

	return &configFixture{
		householdID: h.ID,
		repo:        repo,
		backend:     backend,
		service: NewConfigurationService(households, repo, registry,
			5*time.Second, zap.NewNop()),
	}
}

func walmartCreds() retailer.Credentials {
	return retailer.Credentials{ClientID: "client-1", ClientSecret: "secret-1"}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestConfigurationService_ConnectRetailer(t *testing.T) {
	f := newConfigFixture()

	cfg, err := f.service.ConnectRetailer(context.Background(), ConnectRetailerInput{
		HouseholdID: f.householdID,
		Retailer:    retailer.CodeWalmart,
		Credentials: walmartCreds(),
	})
	require.NoError(t, err)

	assert.True(t, cfg.IsActive)
	assert.Equal(t, retailer.CodeWalmart, cfg.Retailer)
	assert.Len(t, f.backend.tested, 1)

	active, err := f.repo.FindActive(context.Background(), f.householdID, retailer.CodeWalmart)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, active.ID)
}

func TestConfigurationService_ConnectRetailer_BadCredentials(t *testing.T) {
	f := newConfigFixture()
	f.backend.testErr = errors.New("401 invalid client")

	_, err := f.service.ConnectRetailer(context.Background(), ConnectRetailerInput{
		HouseholdID: f.householdID,
		Retailer:    retailer.CodeWalmart,
		Credentials: walmartCreds(),
	})

	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Empty(t, f.repo.configs)
}

func TestConfigurationService_ConnectRetailer_UnknownRetailer(t *testing.T) {
	f := newConfigFixture()

	_, err := f.service.ConnectRetailer(context.Background(), ConnectRetailerInput{
		HouseholdID: f.householdID,
		Retailer:    retailer.Code("TARGET"),
		Credentials: walmartCreds(),
	})

	assert.ErrorIs(t, err, retailer.ErrUnknownRetailer)
}

func TestConfigurationService_ConnectRetailer_UnknownHousehold(t *testing.T) {
	f := newConfigFixture()

	_, err := f.service.ConnectRetailer(context.Background(), ConnectRetailerInput{
		HouseholdID: uuid.New(),
		Retailer:    retailer.CodeWalmart,
		Credentials: walmartCreds(),
	})

	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.backend.tested)
}

func TestConfigurationService_ReconnectReplacesCredentialsAndReactivates(t *testing.T) {
	f := newConfigFixture()

	cfg, err := f.service.ConnectRetailer(context.Background(), ConnectRetailerInput{
		HouseholdID: f.householdID,
		Retailer:    retailer.CodeWalmart,
		Credentials: walmartCreds(),
	})
	require.NoError(t, err)

	// drive it to deactivation through repeated failures
	for i := 0; i < retailer.MaxConsecutiveFailures; i++ {
		_, err := f.repo.RecordFailure(context.Background(), cfg.ID, "timeout")
		require.NoError(t, err)
	}
	require.False(t, f.repo.configs[cfg.ID].IsActive)

	rotated := retailer.Credentials{ClientID: "client-2", ClientSecret: "secret-2"}
	reconnected, err := f.service.ConnectRetailer(context.Background(), ConnectRetailerInput{
		HouseholdID: f.householdID,
		Retailer:    retailer.CodeWalmart,
		Credentials: rotated,
	})
	require.NoError(t, err)

	assert.Equal(t, cfg.ID, reconnected.ID)
	assert.True(t, reconnected.IsActive)
	assert.Equal(t, 0, reconnected.ConsecutiveFailures)
	assert.Equal(t, "client-2", reconnected.Credentials.ClientID)
	assert.Len(t, f.repo.configs, 1)
}

func TestConfigurationService_TestConfiguration(t *testing.T) {
	f := newConfigFixture()
	cfg, err := f.service.ConnectRetailer(context.Background(), ConnectRetailerInput{
		HouseholdID: f.householdID,
		Retailer:    retailer.CodeWalmart,
		Credentials: walmartCreds(),
	})
	require.NoError(t, err)

	t.Run("success stamps health", func(t *testing.T) {
		tested, err := f.service.TestConfiguration(context.Background(), f.householdID, cfg.ID)
		require.NoError(t, err)
		assert.True(t, tested.IsActive)
		assert.NotNil(t, tested.LastSuccessAt)
	})

	t.Run("failure counts against health", func(t *testing.T) {
		f.backend.testErr = errors.New("503 unavailable")

		tested, err := f.service.TestConfiguration(context.Background(), f.householdID, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, tested.ConsecutiveFailures)
		assert.Equal(t, "503 unavailable", tested.LastError)
	})

	t.Run("ownership enforced", func(t *testing.T) {
		_, err := f.service.TestConfiguration(context.Background(), uuid.New(), cfg.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestConfigurationService_DisconnectRetailer(t *testing.T) {
	f := newConfigFixture()
	cfg, err := f.service.ConnectRetailer(context.Background(), ConnectRetailerInput{
		HouseholdID: f.householdID,
		Retailer:    retailer.CodeWalmart,
		Credentials: walmartCreds(),
	})
	require.NoError(t, err)

	require.NoError(t, f.service.DisconnectRetailer(context.Background(), f.householdID, cfg.ID))

	stored := f.repo.configs[cfg.ID]
	assert.False(t, stored.IsActive)
	// credentials survive for a later reconnect
	assert.Equal(t, "client-1", stored.Credentials.ClientID)

	_, err = f.repo.FindActive(context.Background(), f.householdID, retailer.CodeWalmart)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
