// Package reorder drives the reorder workflow: ownership and configuration
// checks, pricing, payment authorization, retailer submission, and the
// capture-or-refund resolution. No transaction is ever left AUTHORIZED with
// money held and no retailer outcome recorded.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/littleloop/backend/internal/domain/billing"
	"github.com/littleloop/backend/internal/domain/forecast"
	"github.com/littleloop/backend/internal/domain/household"
	"github.com/littleloop/backend/internal/domain/order"
	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/domain/tax"
	"github.com/littleloop/backend/internal/infrastructure/config"
)

// orderCurrency is the settlement currency for reorders
const orderCurrency = "cad"

// ErrNoOfferAvailable means no in-stock offer matched the child's size
var ErrNoOfferAvailable = errors.New("reorder: no in-stock offer available")

// OrchestratorService executes manual and forecast-driven reorders
type OrchestratorService struct {
	households   household.Repository
	configs      retailer.ConfigurationRepository
	registry     retailer.Registry
	transactions order.Repository
	gateway      billing.PaymentGateway
	taxes        *tax.Calculator
	cfg          *config.OrderConfig
	logger       *zap.Logger
}

// NewOrchestratorService creates a new OrchestratorService
func NewOrchestratorService(
	households household.Repository,
	configs retailer.ConfigurationRepository,
	registry retailer.Registry,
	transactions order.Repository,
	gateway billing.PaymentGateway,
	taxes *tax.Calculator,
	cfg *config.OrderConfig,
	logger *zap.Logger,
) *OrchestratorService {
	return &OrchestratorService{
		households:   households,
		configs:      configs,
		registry:     registry,
		transactions: transactions,
		gateway:      gateway,
		taxes:        taxes,
		cfg:          cfg,
		logger:       logger,
	}
}

// OrderLineInput is one requested product line for a manual order
type OrderLineInput struct {
	RetailerProductID string
	Title             string
	Quantity          int
	UnitPrice         decimal.Decimal
}

// ManualOrderInput describes a caller-assembled reorder
type ManualOrderInput struct {
	HouseholdID uuid.UUID
	ChildID     uuid.UUID
	Retailer    retailer.Code
	Lines       []OrderLineInput
}

// CreateManualOrder runs the full workflow for a caller-assembled cart
func (s *OrchestratorService) CreateManualOrder(ctx context.Context, input ManualOrderInput) (*order.Transaction, error) {
	if len(input.Lines) == 0 {
		return nil, shared.NewDomainError("EMPTY_ORDER", "Order must contain at least one line item")
	}
	items := make([]order.LineItem, 0, len(input.Lines))
	for _, line := range input.Lines {
		item, err := order.NewLineItem(uuid.Nil, line.RetailerProductID, line.Title, line.Quantity, line.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return s.execute(ctx, input.HouseholdID, input.ChildID, input.Retailer, items, nil)
}

// ExecuteReorder turns a consumption prediction into a placed order. The
// product is chosen from the household's configured retailer: the cheapest
// in-stock offer per unit in the child's current size, with enough packs to
// cover the forecast horizon.
func (s *OrchestratorService) ExecuteReorder(ctx context.Context, prediction *forecast.ConsumptionPrediction) (*order.Transaction, error) {
	child, err := s.households.FindChildOwnedBy(ctx, prediction.HouseholdID, prediction.ChildID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.activeConfiguration(ctx, prediction.HouseholdID)
	if err != nil {
		return nil, err
	}

	backend, err := s.registry.Backend(cfg.Retailer)
	if err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	offers, err := backend.Search(searchCtx, cfg.Credentials, retailer.SearchQuery{
		Keywords: "diapers",
		Size:     child.CurrentSize,
	})
	if err != nil {
		s.recordRetailerFailure(ctx, cfg, err)
		return nil, err
	}

	offer, ok := selectOffer(offers)
	if !ok {
		return nil, ErrNoOfferAvailable
	}

	packs := 1
	if offer.PackCount > 0 {
		packs = int(math.Ceil(float64(prediction.HorizonQuantity) / float64(offer.PackCount)))
		if packs < 1 {
			packs = 1
		}
	}

	item, err := order.NewLineItem(uuid.Nil, offer.RetailerProductID, offer.Title, packs, offer.Price)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, prediction.HouseholdID, prediction.ChildID, cfg.Retailer, []order.LineItem{*item}, &prediction.ID)
}

// execute runs the shared reorder workflow against validated line items
func (s *OrchestratorService) execute(ctx context.Context, householdID, childID uuid.UUID, code retailer.Code, items []order.LineItem, predictionID *uuid.UUID) (*order.Transaction, error) {
	h, err := s.households.FindByID(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if _, err := s.households.FindChildOwnedBy(ctx, householdID, childID); err != nil {
		return nil, err
	}
	if h.GatewayCustomerID == "" || h.PaymentMethodID == "" {
		return nil, shared.NewDomainError("NO_PAYMENT_METHOD", "Household has no payment method on file")
	}

	cfg, err := s.configs.FindActive(ctx, householdID, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, s.classifyMissingConfig(ctx, householdID, code)
		}
		return nil, err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount)
	}
	shipping := s.shippingFee(subtotal)
	// Tax applies to the goods subtotal only, not the shipping fee
	taxAmount := s.taxes.Tax(subtotal, h.DeliveryAddress.Province())

	tx, err := order.NewTransaction(householdID, childID, code, items, shipping, taxAmount, h.DeliveryAddress)
	if err != nil {
		return nil, err
	}
	tx.PredictionID = predictionID
	if err := s.transactions.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist pending transaction: %w", err)
	}

	intent, err := s.authorize(ctx, h, tx)
	if err != nil {
		s.failTransaction(ctx, tx, fmt.Sprintf("payment authorization failed: %v", err))
		return nil, fmt.Errorf("%w: %v", shared.ErrExternalService, err)
	}
	if err := tx.Authorize(intent.ID); err != nil {
		return nil, err
	}
	if err := s.transactions.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist authorized transaction: %w", err)
	}

	receipt, err := s.submit(ctx, cfg, tx)
	if err != nil {
		s.refund(ctx, tx, intent.ID)
		s.failTransaction(ctx, tx, fmt.Sprintf("retailer submission failed: %v", err))
		s.recordRetailerFailure(ctx, cfg, err)
		return nil, fmt.Errorf("%w: %v", shared.ErrExternalService, err)
	}

	if err := s.capture(ctx, intent.ID); err != nil {
		// Retailer accepted but the capture failed: release the hold and
		// fail the transaction with the retailer reference preserved.
		s.refund(ctx, tx, intent.ID)
		s.failTransaction(ctx, tx, fmt.Sprintf("payment capture failed for retailer order %s: %v", receipt.RetailerOrderID, err))
		s.recordRetailerSuccess(ctx, cfg)
		return nil, fmt.Errorf("%w: %v", shared.ErrExternalService, err)
	}

	if err := tx.Confirm(receipt.RetailerOrderID, receipt.TrackingRef, receipt.EstimatedDelivery); err != nil {
		return nil, err
	}
	if err := s.transactions.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist confirmed transaction: %w", err)
	}
	s.recordRetailerSuccess(ctx, cfg)

	s.logger.Info("Reorder confirmed",
		zap.String("order_ref", tx.OrderRef),
		zap.String("retailer", code.String()),
		zap.String("retailer_order_id", receipt.RetailerOrderID),
		zap.String("total", tx.Total.StringFixed(2)))
	return tx, nil
}

// GetOrder returns one transaction owned by the household
func (s *OrchestratorService) GetOrder(ctx context.Context, householdID, orderID uuid.UUID) (*order.Transaction, error) {
	tx, err := s.transactions.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if tx.HouseholdID != householdID {
		return nil, shared.ErrNotFound
	}
	return tx, nil
}

// ListOrders returns the household's most recent transactions
func (s *OrchestratorService) ListOrders(ctx context.Context, householdID uuid.UUID, limit int) ([]*order.Transaction, error) {
	return s.transactions.FindByHousehold(ctx, householdID, limit)
}

// CancelOrder cancels a pending transaction before any money moves
func (s *OrchestratorService) CancelOrder(ctx context.Context, householdID, orderID uuid.UUID, note string) (*order.Transaction, error) {
	tx, err := s.GetOrder(ctx, householdID, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Cancel(order.SourceInternal, note); err != nil {
		return nil, err
	}
	if err := s.transactions.Save(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ---------------------------------------------------------------------------
// Workflow steps
// ---------------------------------------------------------------------------

func (s *OrchestratorService) authorize(ctx context.Context, h *household.Household, tx *order.Transaction) (*billing.PaymentIntent, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.gateway.AuthorizePayment(callCtx, billing.AuthorizePaymentInput{
		CustomerID:      h.GatewayCustomerID,
		PaymentMethodID: h.PaymentMethodID,
		Amount:          tx.Total,
		Currency:        orderCurrency,
		Description:     fmt.Sprintf("LittleLoop reorder %s", tx.OrderRef),
		Metadata:        map[string]string{"order_ref": tx.OrderRef},
	})
}

func (s *OrchestratorService) submit(ctx context.Context, cfg *retailer.Configuration, tx *order.Transaction) (*retailer.OrderReceipt, error) {
	backend, err := s.registry.Backend(tx.Retailer)
	if err != nil {
		return nil, err
	}
	lines := make([]retailer.OrderLine, 0, len(tx.Items))
	for _, item := range tx.Items {
		lines = append(lines, retailer.OrderLine{
			RetailerProductID: item.RetailerProductID,
			Title:             item.Title,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice,
		})
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return backend.SubmitOrder(callCtx, cfg.Credentials, retailer.OrderSubmission{
		OrderRef: tx.OrderRef,
		Lines:    lines,
		Address:  tx.Address,
	})
}

func (s *OrchestratorService) capture(ctx context.Context, paymentIntentID string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.gateway.CapturePayment(callCtx, paymentIntentID)
}

// refund releases the hold after a failed submission or capture. The refund
// is mandatory; when it fails too, the payment reference stays on the failed
// transaction for manual reconciliation.
func (s *OrchestratorService) refund(ctx context.Context, tx *order.Transaction, paymentIntentID string) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	if _, err := s.gateway.RefundPayment(callCtx, paymentIntentID); err != nil {
		s.logger.Error("Refund failed after order failure",
			zap.String("order_ref", tx.OrderRef),
			zap.String("payment_ref", paymentIntentID),
			zap.Error(err))
	}
}

func (s *OrchestratorService) failTransaction(ctx context.Context, tx *order.Transaction, reason string) {
	if err := tx.Fail(reason); err != nil {
		s.logger.Error("Could not mark transaction failed",
			zap.String("order_ref", tx.OrderRef), zap.Error(err))
		return
	}
	if err := s.transactions.Save(ctx, tx); err != nil {
		s.logger.Error("Could not persist failed transaction",
			zap.String("order_ref", tx.OrderRef), zap.Error(err))
	}
}

func (s *OrchestratorService) recordRetailerSuccess(ctx context.Context, cfg *retailer.Configuration) {
	if err := s.configs.RecordSuccess(ctx, cfg.ID); err != nil {
		s.logger.Warn("Could not record retailer success",
			zap.String("configuration_id", cfg.ID.String()), zap.Error(err))
	}
}

func (s *OrchestratorService) recordRetailerFailure(ctx context.Context, cfg *retailer.Configuration, cause error) {
	failures, err := s.configs.RecordFailure(ctx, cfg.ID, cause.Error())
	if err != nil {
		s.logger.Warn("Could not record retailer failure",
			zap.String("configuration_id", cfg.ID.String()), zap.Error(err))
		return
	}
	if failures >= retailer.MaxConsecutiveFailures {
		s.logger.Warn("Retailer configuration deactivated after repeated failures",
			zap.String("configuration_id", cfg.ID.String()),
			zap.String("retailer", cfg.Retailer.String()),
			zap.Int("consecutive_failures", failures))
	}
}

// classifyMissingConfig distinguishes a never-configured retailer from one
// deactivated by the health counter, so the caller can prompt reconnection.
func (s *OrchestratorService) classifyMissingConfig(ctx context.Context, householdID uuid.UUID, code retailer.Code) error {
	all, err := s.configs.FindByHousehold(ctx, householdID)
	if err != nil {
		return retailer.ErrRetailerNotConfigured
	}
	for _, c := range all {
		if c.Retailer == code && !c.IsActive {
			return retailer.ErrRetailerDeactivated
		}
	}
	return retailer.ErrRetailerNotConfigured
}

// activeConfiguration picks the household's active retailer configuration
// for forecast-driven reorders. With more than one active retailer the
// earliest-configured wins.
func (s *OrchestratorService) activeConfiguration(ctx context.Context, householdID uuid.UUID) (*retailer.Configuration, error) {
	all, err := s.configs.FindByHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	var active []*retailer.Configuration
	for _, c := range all {
		if c.IsActive {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return nil, retailer.ErrRetailerNotConfigured
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	return active[0], nil
}

func (s *OrchestratorService) shippingFee(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(decimal.NewFromFloat(s.cfg.FreeShippingCutoff)) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(s.cfg.FlatShippingFee)
}

// selectOffer returns the cheapest in-stock offer per unit
func selectOffer(offers []retailer.ProductOffer) (retailer.ProductOffer, bool) {
	var best retailer.ProductOffer
	found := false
	for _, o := range offers {
		if !o.InStock {
			continue
		}
		if !found || unitPrice(o).LessThan(unitPrice(best)) {
			best = o
			found = true
		}
	}
	return best, found
}

func unitPrice(o retailer.ProductOffer) decimal.Decimal {
	if o.PricePerUnit.IsPositive() {
		return o.PricePerUnit
	}
	return o.Price
}
