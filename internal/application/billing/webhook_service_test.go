package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/billing"
	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/order"
	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/domain/shared/valueobject"
	"github.com/littleloop/backend/internal/infrastructure/payment"
)

const testWebhookSecret = "whsec_test_secret"

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeTransactionRepo struct {
	saved map[uuid.UUID]*order.Transaction
}

func (r *fakeTransactionRepo) Save(_ context.Context, tx *order.Transaction) error {
	r.saved[tx.ID] = tx
	return nil
}

func (r *fakeTransactionRepo) FindByID(_ context.Context, id uuid.UUID) (*order.Transaction, error) {
	if tx, ok := r.saved[id]; ok {
		return tx, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTransactionRepo) FindByOrderRef(_ context.Context, ref string) (*order.Transaction, error) {
	for _, tx := range r.saved {
		if tx.OrderRef == ref {
			return tx, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTransactionRepo) FindByPaymentRef(_ context.Context, ref string) (*order.Transaction, error) {
	for _, tx := range r.saved {
		if tx.PaymentRef == ref {
			return tx, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTransactionRepo) FindByHousehold(_ context.Context, _ uuid.UUID, _ int) ([]*order.Transaction, error) {
	return nil, nil
}

type fakeIdempotencyStore struct {
	processed map[string]bool
}

func (s *fakeIdempotencyStore) MarkProcessed(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	if s.processed[eventID] {
		return false, nil
	}
	s.processed[eventID] = true
	return true, nil
}

func (s *fakeIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	return s.processed[eventID], nil
}

func (s *fakeIdempotencyStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type webhookFixture struct {
	service      *WebhookService
	subs         *fakeSubscriptionRepo
	transactions *fakeTransactionRepo
	households   *fakeHouseholdRepo
	idempotency  *fakeIdempotencyStore
	householdID  uuid.UUID
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	h := &household.Household{
		BaseEntity:        shared.NewBaseEntity(),
		Email:             "parent@example.com",
		Name:              "Lee",
		GatewayCustomerID: "cus_wh_1",
		PaymentMethodID:   "pm_wh_1",
	}
	households := &fakeHouseholdRepo{households: map[uuid.UUID]*household.Household{h.ID: h}}
	subs := &fakeSubscriptionRepo{subs: make(map[uuid.UUID]*billing.Subscription)}
	transactions := &fakeTransactionRepo{saved: make(map[uuid.UUID]*order.Transaction)}
	idempotency := &fakeIdempotencyStore{processed: make(map[string]bool)}

	service := NewWebhookService(
		&payment.StripeConfig{
			SecretKey:     "sk_test_xxx",
			WebhookSecret: testWebhookSecret,
			IsTestMode:    true,
		},
		subs, transactions, households, idempotency,
		shared.DefaultIdempotencyConfig(),
		zap.NewNop(),
	)

	return &webhookFixture{
		service:      service,
		subs:         subs,
		transactions: transactions,
		households:   households,
		idempotency:  idempotency,
		householdID:  h.ID,
	}
}

func (f *webhookFixture) seedSubscription(t *testing.T) *billing.Subscription {
	t.Helper()
	plan, err := billing.PlanForTier(billing.TierBasic)
	require.NoError(t, err)
	sub := billing.NewSubscription(f.householdID, plan, "ON",
		decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.08))
	sub.GatewayCustomerID = "cus_wh_1"
	sub.GatewaySubID = "sub_wh_1"
	require.NoError(t, f.subs.Save(context.Background(), sub))
	return sub
}

func (f *webhookFixture) seedAuthorizedTransaction(t *testing.T) *order.Transaction {
	t.Helper()
	addr, err := valueobject.NewAddress("123 Main St", "Toronto", "ON", "M5V 1A1", "CA")
	require.NoError(t, err)
	item, err := order.NewLineItem(uuid.Nil, "WM-1001", "Diapers", 1, decimal.RequireFromString("54.99"))
	require.NoError(t, err)
	tx, err := order.NewTransaction(f.householdID, uuid.New(), retailer.CodeWalmart,
		[]order.LineItem{*item}, decimal.Zero, decimal.RequireFromString("7.15"), addr)
	require.NoError(t, err)
	require.NoError(t, tx.Authorize("pi_wh_1"))
	require.NoError(t, f.transactions.Save(context.Background(), tx))
	return tx
}

// signedPayload wraps an object into a Stripe event envelope signed the way
// the gateway signs deliveries: HMAC-SHA256 over "<timestamp>.<payload>".
func signedPayload(t *testing.T, eventID, eventType string, object any) (payload []byte, signature string) {
	t.Helper()

	raw, err := json.Marshal(object)
	require.NoError(t, err)

	payload, err = json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	signature = fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
	return payload, signature
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWebhookService_RejectsInvalidSignature(t *testing.T) {
	f := newWebhookFixture(t)

	payload := []byte(`{"type": "customer.subscription.updated"}`)
	result, err := f.service.ProcessWebhook(context.Background(), payload, "t=1,v1=bogus")

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidSignature)
	assert.Nil(t, result)
}

func TestWebhookService_SignedRoundTrip(t *testing.T) {
	f := newWebhookFixture(t)
	sub := f.seedSubscription(t)

	payload, signature := signedPayload(t, "evt_rt_1", "customer.subscription.deleted",
		stripe.Subscription{ID: "sub_wh_1", Status: stripe.SubscriptionStatusCanceled})

	result, err := f.service.ProcessWebhook(context.Background(), payload, signature)
	require.NoError(t, err)
	assert.True(t, result.Processed)

	assert.Equal(t, billing.SubscriptionStatusCanceled, f.subs.subs[sub.ID].Status)
}

func TestWebhookService_ReplayIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t)
	sub := f.seedSubscription(t)

	payload, signature := signedPayload(t, "evt_replay_1", "customer.subscription.deleted",
		stripe.Subscription{ID: "sub_wh_1", Status: stripe.SubscriptionStatusCanceled})

	first, err := f.service.ProcessWebhook(context.Background(), payload, signature)
	require.NoError(t, err)
	require.True(t, first.Processed)
	cancelledAt := *f.subs.subs[sub.ID].CancelledAt

	second, err := f.service.ProcessWebhook(context.Background(), payload, signature)
	require.NoError(t, err)
	assert.True(t, second.Processed)
	assert.Equal(t, "duplicate event", second.Message)
	assert.Equal(t, cancelledAt, *f.subs.subs[sub.ID].CancelledAt)
}

func TestWebhookService_SubscriptionUpdatedSyncsPeriodAndStatus(t *testing.T) {
	f := newWebhookFixture(t)
	sub := f.seedSubscription(t)

	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	raw, _ := json.Marshal(stripe.Subscription{
		ID:                 "sub_wh_1",
		Status:             stripe.SubscriptionStatusPastDue,
		CurrentPeriodStart: start.Unix(),
		CurrentPeriodEnd:   end.Unix(),
		CancelAtPeriodEnd:  true,
	})
	event := stripe.Event{ID: "evt_1", Type: "customer.subscription.updated", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, f.service.handleSubscriptionUpdated(context.Background(), event))

	got := f.subs.subs[sub.ID]
	assert.Equal(t, billing.SubscriptionStatusPastDue, got.Status)
	assert.True(t, got.CancelAtPeriodEnd)
	assert.Equal(t, start.Unix(), got.CurrentPeriodStart.Unix())
	assert.Equal(t, end.Unix(), got.CurrentPeriodEnd.Unix())
}

func TestWebhookService_UnmatchedSubscriptionAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	raw, _ := json.Marshal(stripe.Subscription{ID: "sub_foreign", Status: stripe.SubscriptionStatusCanceled})
	event := stripe.Event{ID: "evt_2", Type: "customer.subscription.deleted", Data: &stripe.EventData{Raw: raw}}

	assert.NoError(t, f.service.handleSubscriptionDeleted(context.Background(), event))
}

func TestWebhookService_InvoicePaidReactivatesPastDue(t *testing.T) {
	f := newWebhookFixture(t)
	sub := f.seedSubscription(t)
	sub.MarkPastDue()

	raw, _ := json.Marshal(stripe.Invoice{
		Subscription: &stripe.Subscription{ID: "sub_wh_1"},
		PeriodStart:  time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC).Unix(),
		PeriodEnd:    time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC).Unix(),
	})
	event := stripe.Event{ID: "evt_3", Type: "invoice.paid", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, f.service.handleInvoicePaid(context.Background(), event))
	assert.Equal(t, billing.SubscriptionStatusActive, f.subs.subs[sub.ID].Status)
}

func TestWebhookService_InvoicePaymentFailedMarksPastDue(t *testing.T) {
	f := newWebhookFixture(t)
	sub := f.seedSubscription(t)

	raw, _ := json.Marshal(stripe.Invoice{Subscription: &stripe.Subscription{ID: "sub_wh_1"}})
	event := stripe.Event{ID: "evt_4", Type: "invoice.payment_failed", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, f.service.handleInvoicePaymentFailed(context.Background(), event))
	assert.Equal(t, billing.SubscriptionStatusPastDue, f.subs.subs[sub.ID].Status)
}

func TestWebhookService_PaymentIntentCanceledCancelsHeldOrder(t *testing.T) {
	f := newWebhookFixture(t)
	tx := f.seedAuthorizedTransaction(t)

	raw, _ := json.Marshal(stripe.PaymentIntent{ID: "pi_wh_1"})
	event := stripe.Event{ID: "evt_5", Type: "payment_intent.canceled", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, f.service.handlePaymentIntentCanceled(context.Background(), event))

	got := f.transactions.saved[tx.ID]
	assert.Equal(t, order.StatusCancelled, got.Status)
	last := got.Updates[len(got.Updates)-1]
	assert.Equal(t, order.SourceWebhook, last.Source)
}

func TestWebhookService_PaymentIntentCanceledOnTerminalOrderIsNoOp(t *testing.T) {
	f := newWebhookFixture(t)
	tx := f.seedAuthorizedTransaction(t)
	require.NoError(t, tx.Fail("retailer submission failed"))
	updates := len(tx.Updates)

	raw, _ := json.Marshal(stripe.PaymentIntent{ID: "pi_wh_1"})
	event := stripe.Event{ID: "evt_6", Type: "payment_intent.canceled", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, f.service.handlePaymentIntentCanceled(context.Background(), event))
	assert.Equal(t, order.StatusFailed, f.transactions.saved[tx.ID].Status)
	assert.Len(t, f.transactions.saved[tx.ID].Updates, updates)
}

func TestWebhookService_PaymentIntentFailedFailsOrder(t *testing.T) {
	f := newWebhookFixture(t)
	tx := f.seedAuthorizedTransaction(t)

	raw, _ := json.Marshal(stripe.PaymentIntent{ID: "pi_wh_1"})
	event := stripe.Event{ID: "evt_7", Type: "payment_intent.payment_failed", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, f.service.handlePaymentIntentFailed(context.Background(), event))
	assert.Equal(t, order.StatusFailed, f.transactions.saved[tx.ID].Status)
}

func TestWebhookService_UnmatchedPaymentIntentAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	raw, _ := json.Marshal(stripe.PaymentIntent{ID: "pi_foreign"})
	event := stripe.Event{ID: "evt_8", Type: "payment_intent.succeeded", Data: &stripe.EventData{Raw: raw}}

	assert.NoError(t, f.service.handlePaymentIntentSucceeded(context.Background(), event))
}

func TestWebhookService_PaymentMethodDetachedClearsDefault(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedSubscription(t)

	raw, _ := json.Marshal(stripe.PaymentMethod{
		ID:       "pm_wh_1",
		Customer: &stripe.Customer{ID: "cus_wh_1"},
	})
	event := stripe.Event{ID: "evt_9", Type: "payment_method.detached", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, f.service.handlePaymentMethodDetached(context.Background(), event))
	assert.Empty(t, f.households.households[f.householdID].PaymentMethodID)
}

func TestWebhookService_DetachedOtherPaymentMethodIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedSubscription(t)

	raw, _ := json.Marshal(stripe.PaymentMethod{
		ID:       "pm_other",
		Customer: &stripe.Customer{ID: "cus_wh_1"},
	})
	event := stripe.Event{ID: "evt_10", Type: "payment_method.detached", Data: &stripe.EventData{Raw: raw}}

	require.NoError(t, f.service.handlePaymentMethodDetached(context.Background(), event))
	assert.Equal(t, "pm_wh_1", f.households.households[f.householdID].PaymentMethodID)
}
