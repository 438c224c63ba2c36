package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/billing"
	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/order"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/infrastructure/payment"
)

// WebhookService reconciles gateway webhook events with local subscription
// and order state. Signature verification happens before any payload field
// is trusted; duplicate deliveries are absorbed by the idempotency store and
// no-op state transitions.
type WebhookService struct {
	config        *payment.StripeConfig
	subscriptions billing.SubscriptionRepository
	transactions  order.Repository
	households    household.Repository
	idempotency   shared.IdempotencyStore
	idemCfg       shared.IdempotencyConfig
	logger        *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(
	config *payment.StripeConfig,
	subscriptions billing.SubscriptionRepository,
	transactions order.Repository,
	households household.Repository,
	idempotency shared.IdempotencyStore,
	idemCfg shared.IdempotencyConfig,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		config:        config,
		subscriptions: subscriptions,
		transactions:  transactions,
		households:    households,
		idempotency:   idempotency,
		idemCfg:       idemCfg,
		logger:        logger,
	}
}

// WebhookResult reports the outcome of one webhook delivery
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// ProcessWebhook verifies and routes one raw webhook delivery
func (s *WebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidSignature, err)
	}

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	if s.idemCfg.Enabled {
		processed, err := s.idempotency.IsProcessed(ctx, event.ID)
		if err != nil {
			s.logger.Warn("Idempotency check failed, processing anyway",
				zap.String("event_id", event.ID), zap.Error(err))
		} else if processed {
			result.Message = "duplicate event"
			return result, nil
		}
	}

	s.logger.Info("Processing gateway webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	switch event.Type {
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	case "invoice.paid":
		err = s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		err = s.handleInvoicePaymentFailed(ctx, event)
	case "payment_intent.succeeded":
		err = s.handlePaymentIntentSucceeded(ctx, event)
	case "payment_intent.canceled":
		err = s.handlePaymentIntentCanceled(ctx, event)
	case "payment_intent.payment_failed":
		err = s.handlePaymentIntentFailed(ctx, event)
	case "payment_method.detached":
		err = s.handlePaymentMethodDetached(ctx, event)
	default:
		s.logger.Debug("Unhandled webhook event type",
			zap.String("event_type", string(event.Type)))
		result.Message = "event type not handled"
	}

	if err != nil {
		s.logger.Error("Failed to process webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}

	if s.idemCfg.Enabled {
		if _, err := s.idempotency.MarkProcessed(ctx, event.ID, s.idemCfg.TTL); err != nil {
			s.logger.Warn("Could not mark event processed",
				zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Subscription and invoice events
// ---------------------------------------------------------------------------

func (s *WebhookService) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var gatewaySub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &gatewaySub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	sub, ok, err := s.findSubscription(ctx, gatewaySub.ID)
	if err != nil || !ok {
		return err
	}

	sub.SetPeriod(
		time.Unix(gatewaySub.CurrentPeriodStart, 0),
		time.Unix(gatewaySub.CurrentPeriodEnd, 0),
	)
	sub.CancelAtPeriodEnd = gatewaySub.CancelAtPeriodEnd

	switch gatewaySub.Status {
	case stripe.SubscriptionStatusActive:
		sub.MarkActive()
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		sub.MarkPastDue()
	case stripe.SubscriptionStatusCanceled:
		sub.Cancel()
	}
	return s.subscriptions.Save(ctx, sub)
}

func (s *WebhookService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var gatewaySub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &gatewaySub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	sub, ok, err := s.findSubscription(ctx, gatewaySub.ID)
	if err != nil || !ok {
		return err
	}
	sub.Cancel()
	return s.subscriptions.Save(ctx, sub)
}

func (s *WebhookService) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}
	if invoice.Subscription == nil {
		return nil
	}

	sub, ok, err := s.findSubscription(ctx, invoice.Subscription.ID)
	if err != nil || !ok {
		return err
	}
	sub.MarkActive()
	if invoice.PeriodStart > 0 && invoice.PeriodEnd > 0 {
		sub.SetPeriod(time.Unix(invoice.PeriodStart, 0), time.Unix(invoice.PeriodEnd, 0))
	}
	return s.subscriptions.Save(ctx, sub)
}

func (s *WebhookService) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("unmarshal invoice: %w", err)
	}
	if invoice.Subscription == nil {
		return nil
	}

	sub, ok, err := s.findSubscription(ctx, invoice.Subscription.ID)
	if err != nil || !ok {
		return err
	}
	sub.MarkPastDue()
	return s.subscriptions.Save(ctx, sub)
}

// ---------------------------------------------------------------------------
// Payment intent and payment method events
// ---------------------------------------------------------------------------

func (s *WebhookService) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) error {
	tx, ok, err := s.findTransactionForIntent(ctx, event)
	if err != nil || !ok {
		return err
	}
	// Capture is driven synchronously by the orchestrator; by the time this
	// event lands the transaction is normally CONFIRMED or beyond.
	if tx.Status == order.StatusConfirmed || tx.Status.IsTerminal() {
		return nil
	}
	s.logger.Warn("Payment succeeded for transaction in unexpected state",
		zap.String("order_ref", tx.OrderRef),
		zap.String("status", tx.Status.String()))
	return nil
}

func (s *WebhookService) handlePaymentIntentCanceled(ctx context.Context, event stripe.Event) error {
	tx, ok, err := s.findTransactionForIntent(ctx, event)
	if err != nil || !ok {
		return err
	}
	if tx.Status.IsTerminal() {
		return nil
	}
	if err := tx.Cancel(order.SourceWebhook, "payment hold released by gateway"); err != nil {
		return err
	}
	return s.transactions.Save(ctx, tx)
}

func (s *WebhookService) handlePaymentIntentFailed(ctx context.Context, event stripe.Event) error {
	tx, ok, err := s.findTransactionForIntent(ctx, event)
	if err != nil || !ok {
		return err
	}
	if tx.Status.IsTerminal() {
		return nil
	}
	if err := tx.Fail("payment failed at gateway"); err != nil {
		return err
	}
	return s.transactions.Save(ctx, tx)
}

func (s *WebhookService) handlePaymentMethodDetached(ctx context.Context, event stripe.Event) error {
	var pm stripe.PaymentMethod
	if err := json.Unmarshal(event.Data.Raw, &pm); err != nil {
		return fmt.Errorf("unmarshal payment method: %w", err)
	}

	// After detachment the customer reference may already be gone; fall
	// back to the previous attributes Stripe ships with the event.
	customerID := ""
	if pm.Customer != nil {
		customerID = pm.Customer.ID
	}
	if customerID == "" {
		if prev, ok := event.Data.PreviousAttributes["customer"].(string); ok {
			customerID = prev
		}
	}
	if customerID == "" {
		s.logger.Info("Detached payment method has no customer reference, acknowledging",
			zap.String("payment_method_id", pm.ID))
		return nil
	}

	sub, err := s.subscriptions.FindByGatewayCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("No local subscription for detached payment method, acknowledging",
				zap.String("customer_id", customerID))
			return nil
		}
		return err
	}

	h, err := s.households.FindByID(ctx, sub.HouseholdID)
	if err != nil {
		return err
	}
	if h.PaymentMethodID != pm.ID {
		return nil
	}
	h.PaymentMethodID = ""
	return s.households.Save(ctx, h)
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// findSubscription resolves a gateway subscription ID to a local record.
// A missing record means a foreign or historical event: acknowledge it.
func (s *WebhookService) findSubscription(ctx context.Context, gatewaySubID string) (*billing.Subscription, bool, error) {
	sub, err := s.subscriptions.FindByGatewaySubID(ctx, gatewaySubID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("No local subscription for gateway event, acknowledging",
				zap.String("gateway_sub_id", gatewaySubID))
			return nil, false, nil
		}
		return nil, false, err
	}
	return sub, true, nil
}

func (s *WebhookService) findTransactionForIntent(ctx context.Context, event stripe.Event) (*order.Transaction, bool, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, false, fmt.Errorf("unmarshal payment intent: %w", err)
	}

	tx, err := s.transactions.FindByPaymentRef(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("No local transaction for payment intent, acknowledging",
				zap.String("payment_intent_id", intent.ID))
			return nil, false, nil
		}
		return nil, false, err
	}
	return tx, true, nil
}
