package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/form"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/billing"
)

// mockBackend implements stripe.Backend for testing
type mockBackend struct {
	handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)
}

func (m *mockBackend) Call(method, path, key string, params stripe.ParamsContainer, v stripe.LastResponseSetter) error {
	data, err := m.handler(method, path, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *mockBackend) CallStreaming(method, path, key string, params stripe.ParamsContainer, v stripe.StreamingLastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallRaw(method, path, key string, body *form.Values, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallMultipart(method, path, key, boundary string, body *bytes.Buffer, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) SetMaxNetworkRetries(maxNetworkRetries int64) {}

// testConfig returns a valid test configuration
func testConfig() *StripeConfig {
	return &StripeConfig{
		SecretKey:             "sk_test_123456789",
		WebhookSecret:         "whsec_test_123456789",
		IsTestMode:            true,
		DefaultCurrency:       "cad",
		SubscriptionProductID: "prod_test_plan",
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// setupMockBackend installs a mock Stripe backend for one test
func setupMockBackend(t *testing.T, handler func(method, path string, params stripe.ParamsContainer) ([]byte, error)) {
	t.Helper()
	stripe.SetBackend(stripe.APIBackend, &mockBackend{handler: handler})
	t.Cleanup(func() {
		stripe.SetBackend(stripe.APIBackend, nil)
	})
}

func newTestAdapter(t *testing.T) *StripeAdapter {
	t.Helper()
	adapter, err := NewStripeAdapter(testConfig(), testLogger())
	require.NoError(t, err)
	return adapter
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestNewStripeAdapter_InvalidConfig(t *testing.T) {
	tests := []struct {
		name        string
		config      *StripeConfig
		expectedErr string
	}{
		{
			name: "missing secret key",
			config: &StripeConfig{
				IsTestMode:      true,
				DefaultCurrency: "cad",
			},
			expectedErr: "secret key is required",
		},
		{
			name: "test mode with live key",
			config: &StripeConfig{
				SecretKey:             "sk_live_123456789",
				IsTestMode:            true,
				DefaultCurrency:       "cad",
				SubscriptionProductID: "prod_test",
			},
			expectedErr: "test mode enabled but secret key is not a test key",
		},
		{
			name: "missing currency",
			config: &StripeConfig{
				SecretKey:             "sk_test_123456789",
				IsTestMode:            true,
				SubscriptionProductID: "prod_test",
			},
			expectedErr: "default currency is required",
		},
		{
			name: "missing product ID",
			config: &StripeConfig{
				SecretKey:       "sk_test_123456789",
				IsTestMode:      true,
				DefaultCurrency: "cad",
			},
			expectedErr: "subscription product ID is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewStripeAdapter(tt.config, testLogger())
			assert.Error(t, err)
			assert.Nil(t, adapter)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

// ---------------------------------------------------------------------------
// Customer Tests
// ---------------------------------------------------------------------------

func TestStripeAdapter_CreateCustomer(t *testing.T) {
	adapter := newTestAdapter(t)

	setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		assert.Equal(t, "POST", method)
		assert.Equal(t, "/v1/customers", path)

		custParams, ok := params.(*stripe.CustomerParams)
		require.True(t, ok)
		assert.Equal(t, "parent@example.com", *custParams.Email)
		assert.Equal(t, "hh-123", custParams.Metadata["household_id"])

		return json.Marshal(map[string]any{
			"id":    "cus_test123",
			"email": "parent@example.com",
			"name":  "Jordan Lee",
		})
	})

	cust, err := adapter.CreateCustomer(context.Background(), billing.CreateCustomerInput{
		HouseholdID: "hh-123",
		Email:       "parent@example.com",
		Name:        "Jordan Lee",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_test123", cust.ID)
	assert.Equal(t, "parent@example.com", cust.Email)
}

// ---------------------------------------------------------------------------
// Subscription Tests
// ---------------------------------------------------------------------------

func TestStripeAdapter_CreateSubscription_TaxFoldedIntoCharge(t *testing.T) {
	adapter := newTestAdapter(t)

	setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		assert.Equal(t, "/v1/subscriptions", path)

		subParams, ok := params.(*stripe.SubscriptionParams)
		require.True(t, ok)
		require.Len(t, subParams.Items, 1)
		// 39.99 at Ontario HST 13% -> 45.19 -> 4519 cents
		assert.Equal(t, int64(4519), *subParams.Items[0].PriceData.UnitAmount)
		assert.Equal(t, "prod_test_plan", *subParams.Items[0].PriceData.Product)
		assert.Equal(t, "premium", subParams.Metadata["tier"])

		return json.Marshal(map[string]any{
			"id":                   "sub_test123",
			"status":               "active",
			"customer":             map[string]any{"id": "cus_test123"},
			"current_period_start": 1750000000,
			"current_period_end":   1752592000,
		})
	})

	sub, err := adapter.CreateSubscription(context.Background(), billing.CreateGatewaySubscriptionInput{
		CustomerID:      "cus_test123",
		PaymentMethodID: "pm_test",
		Tier:            "premium",
		Amount:          decimal.RequireFromString("39.99"),
		TaxRate:         decimal.RequireFromString("0.13"),
	})
	require.NoError(t, err)
	assert.Equal(t, "sub_test123", sub.ID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "cus_test123", sub.CustomerID)
}

func TestStripeAdapter_UpdateSubscription_CancelAtPeriodEnd(t *testing.T) {
	adapter := newTestAdapter(t)

	setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		assert.Equal(t, "/v1/subscriptions/sub_test123", path)

		subParams, ok := params.(*stripe.SubscriptionParams)
		require.True(t, ok)
		require.NotNil(t, subParams.CancelAtPeriodEnd)
		assert.True(t, *subParams.CancelAtPeriodEnd)

		return json.Marshal(map[string]any{
			"id":                   "sub_test123",
			"status":               "active",
			"cancel_at_period_end": true,
		})
	})

	cancel := true
	sub, err := adapter.UpdateSubscription(context.Background(), billing.UpdateGatewaySubscriptionInput{
		GatewaySubID:      "sub_test123",
		CancelAtPeriodEnd: &cancel,
	})
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
}

// ---------------------------------------------------------------------------
// Payment Tests
// ---------------------------------------------------------------------------

func TestStripeAdapter_AuthorizePayment(t *testing.T) {
	adapter := newTestAdapter(t)

	setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		assert.Equal(t, "/v1/payment_intents", path)

		piParams, ok := params.(*stripe.PaymentIntentParams)
		require.True(t, ok)
		assert.Equal(t, int64(6766), *piParams.Amount)
		assert.Equal(t, "manual", *piParams.CaptureMethod)
		assert.True(t, *piParams.Confirm)

		return json.Marshal(map[string]any{
			"id":     "pi_test123",
			"amount": 6766,
			"status": "requires_capture",
		})
	})

	intent, err := adapter.AuthorizePayment(context.Background(), billing.AuthorizePaymentInput{
		CustomerID:      "cus_test123",
		PaymentMethodID: "pm_test",
		Amount:          decimal.RequireFromString("67.66"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_test123", intent.ID)
	assert.Equal(t, billing.PaymentIntentStatusRequiresCapture, intent.Status)
	assert.Equal(t, "67.66", intent.Amount.StringFixed(2))
}

func TestStripeAdapter_AuthorizePayment_Declined(t *testing.T) {
	adapter := newTestAdapter(t)

	setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		return nil, fmt.Errorf("card_declined")
	})

	_, err := adapter.AuthorizePayment(context.Background(), billing.AuthorizePaymentInput{
		CustomerID:      "cus_test123",
		PaymentMethodID: "pm_test",
		Amount:          decimal.RequireFromString("67.66"),
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to authorize payment")
}

func TestStripeAdapter_CapturePayment(t *testing.T) {
	adapter := newTestAdapter(t)

	setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		assert.Equal(t, "/v1/payment_intents/pi_test123/capture", path)
		return json.Marshal(map[string]any{
			"id":     "pi_test123",
			"status": "succeeded",
		})
	})

	err := adapter.CapturePayment(context.Background(), "pi_test123")
	require.NoError(t, err)
}

func TestStripeAdapter_RefundPayment_ReleasesUncapturedHold(t *testing.T) {
	adapter := newTestAdapter(t)

	setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		switch {
		case method == "GET" && path == "/v1/payment_intents/pi_test123":
			return json.Marshal(map[string]any{
				"id":     "pi_test123",
				"amount": 6766,
				"status": "requires_capture",
			})
		case strings.HasSuffix(path, "/cancel"):
			return json.Marshal(map[string]any{
				"id":     "pi_test123",
				"amount": 6766,
				"status": "canceled",
			})
		}
		return nil, fmt.Errorf("unexpected call: %s %s", method, path)
	})

	ref, err := adapter.RefundPayment(context.Background(), "pi_test123")
	require.NoError(t, err)
	assert.Equal(t, "pi_test123", ref.PaymentIntentID)
	assert.Equal(t, "67.66", ref.Amount.StringFixed(2))
}

func TestStripeAdapter_RefundPayment_RefundsCapturedPayment(t *testing.T) {
	adapter := newTestAdapter(t)

	setupMockBackend(t, func(method, path string, params stripe.ParamsContainer) ([]byte, error) {
		switch {
		case method == "GET" && path == "/v1/payment_intents/pi_test123":
			return json.Marshal(map[string]any{
				"id":     "pi_test123",
				"amount": 6766,
				"status": "succeeded",
			})
		case path == "/v1/refunds":
			return json.Marshal(map[string]any{
				"id":     "re_test123",
				"amount": 6766,
			})
		}
		return nil, fmt.Errorf("unexpected call: %s %s", method, path)
	})

	ref, err := adapter.RefundPayment(context.Background(), "pi_test123")
	require.NoError(t, err)
	assert.Equal(t, "re_test123", ref.ID)
	assert.Equal(t, "67.66", ref.Amount.StringFixed(2))
}
