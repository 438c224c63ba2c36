package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	billingapp "github.com/littleloop/backend/internal/application/billing"
	"github.com/littleloop/backend/internal/domain/billing"
)

// SubscriptionHandler handles subscription lifecycle endpoints
type SubscriptionHandler struct {
	BaseHandler
	subscriptions *billingapp.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(subscriptions *billingapp.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// RegisterRoutes registers subscription routes
func (h *SubscriptionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sub := rg.Group("/subscription")
	{
		sub.POST("", h.Create)
		sub.GET("", h.Get)
		sub.PATCH("", h.Update)
		sub.DELETE("", h.Cancel)
	}
}

// ---------------------------------------------------------------------------
// Request/Response DTOs
// ---------------------------------------------------------------------------

// CreateSubscriptionRequest starts a recurring plan
type CreateSubscriptionRequest struct {
	Tier            string `json:"tier" binding:"required,oneof=basic premium family"`
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
	// Province overrides the delivery-address province for tax purposes
	Province string `json:"province" binding:"omitempty,len=2"`
}

// UpdateSubscriptionRequest changes tier or schedules cancellation
type UpdateSubscriptionRequest struct {
	Tier              *string `json:"tier" binding:"omitempty,oneof=basic premium family"`
	CancelAtPeriodEnd *bool   `json:"cancel_at_period_end"`
}

// SubscriptionResponse is the subscription representation
type SubscriptionResponse struct {
	ID                 string   `json:"id"`
	Tier               string   `json:"tier"`
	Status             string   `json:"status"`
	Interval           string   `json:"interval"`
	Amount             string   `json:"amount"`
	TaxRateGST         string   `json:"tax_rate_gst"`
	TaxRatePST         string   `json:"tax_rate_pst"`
	Province           string   `json:"province"`
	Features           []string `json:"features"`
	CurrentPeriodStart string   `json:"current_period_start"`
	CurrentPeriodEnd   string   `json:"current_period_end"`
	CancelAtPeriodEnd  bool     `json:"cancel_at_period_end"`
	CancelledAt        string   `json:"cancelled_at,omitempty"`
}

func toSubscriptionResponse(sub *billing.Subscription) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:                 sub.ID.String(),
		Tier:               sub.Tier.String(),
		Status:             string(sub.Status),
		Interval:           string(sub.Interval),
		Amount:             sub.Amount.StringFixed(2),
		TaxRateGST:         sub.TaxRateGST.String(),
		TaxRatePST:         sub.TaxRatePST.String(),
		Province:           sub.Province,
		Features:           sub.Features,
		CurrentPeriodStart: sub.CurrentPeriodStart.Format(time.RFC3339),
		CurrentPeriodEnd:   sub.CurrentPeriodEnd.Format(time.RFC3339),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.CancelledAt != nil {
		resp.CancelledAt = sub.CancelledAt.Format(time.RFC3339)
	}
	return resp
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// Create starts a recurring plan for the scoped household
func (h *SubscriptionHandler) Create(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	sub, err := h.subscriptions.CreateSubscription(c.Request.Context(), billingapp.CreateSubscriptionInput{
		HouseholdID:     householdID,
		Tier:            billing.Tier(req.Tier),
		PaymentMethodID: req.PaymentMethodID,
		Province:        req.Province,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toSubscriptionResponse(sub))
}

// Get returns the household's subscription
func (h *SubscriptionHandler) Get(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), householdID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponse(sub))
}

// Update changes the tier or schedules cancellation at period end
func (h *SubscriptionHandler) Update(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	var req UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	input := billingapp.UpdateSubscriptionInput{
		HouseholdID:       householdID,
		CancelAtPeriodEnd: req.CancelAtPeriodEnd,
	}
	if req.Tier != nil {
		tier := billing.Tier(*req.Tier)
		input.NewTier = &tier
	}

	sub, err := h.subscriptions.UpdateSubscription(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponse(sub))
}

// Cancel cancels the subscription immediately
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	sub, err := h.subscriptions.CancelSubscription(c.Request.Context(), householdID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSubscriptionResponse(sub))
}
