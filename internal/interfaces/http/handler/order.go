package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	reorderapp "github.com/littleloop/backend/internal/application/reorder"
	"github.com/littleloop/backend/internal/domain/order"
	"github.com/littleloop/backend/internal/domain/retailer"
)

// defaultOrderListLimit bounds the order history page
const defaultOrderListLimit = 20

// OrderHandler handles reorder transaction endpoints
type OrderHandler struct {
	BaseHandler
	orchestrator *reorderapp.OrchestratorService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orchestrator *reorderapp.OrchestratorService) *OrderHandler {
	return &OrderHandler{orchestrator: orchestrator}
}

// RegisterRoutes registers order routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	{
		orders.POST("", h.Create)
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.POST("/:id/cancel", h.Cancel)
	}
}

// ---------------------------------------------------------------------------
// Request/Response DTOs
// ---------------------------------------------------------------------------

// OrderLineRequest is one line of a manual order
type OrderLineRequest struct {
	RetailerProductID string  `json:"retailer_product_id" binding:"required"`
	Title             string  `json:"title" binding:"required"`
	Quantity          int     `json:"quantity" binding:"required,min=1,max=20"`
	UnitPrice         float64 `json:"unit_price" binding:"required,gt=0"`
}

// CreateOrderRequest places a manual order through a connected retailer
type CreateOrderRequest struct {
	ChildID  string             `json:"child_id" binding:"required,uuid"`
	Retailer string             `json:"retailer" binding:"required,oneof=AMAZON WALMART"`
	Lines    []OrderLineRequest `json:"lines" binding:"required,min=1,max=10,dive"`
}

// CancelOrderRequest carries the optional cancellation note
type CancelOrderRequest struct {
	Note string `json:"note" binding:"omitempty,max=500"`
}

// OrderLineResponse is one transaction line
type OrderLineResponse struct {
	RetailerProductID string `json:"retailer_product_id"`
	Title             string `json:"title"`
	Quantity          int    `json:"quantity"`
	UnitPrice         string `json:"unit_price"`
	LineTotal         string `json:"line_total"`
}

// OrderStatusUpdate is one entry of the transaction audit trail
type OrderStatusUpdate struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Source string `json:"source"`
	Note   string `json:"note,omitempty"`
	At     string `json:"at"`
}

// OrderResponse is the transaction representation
type OrderResponse struct {
	ID                string              `json:"id"`
	OrderRef          string              `json:"order_ref"`
	ChildID           string              `json:"child_id"`
	Retailer          string              `json:"retailer"`
	Status            string              `json:"status"`
	Items             []OrderLineResponse `json:"items"`
	Subtotal          string              `json:"subtotal"`
	Shipping          string              `json:"shipping"`
	Tax               string              `json:"tax"`
	Total             string              `json:"total"`
	RetailerOrderID   string              `json:"retailer_order_id,omitempty"`
	TrackingRef       string              `json:"tracking_ref,omitempty"`
	EstimatedDelivery string              `json:"estimated_delivery,omitempty"`
	FailureReason     string              `json:"failure_reason,omitempty"`
	Updates           []OrderStatusUpdate `json:"updates"`
	CreatedAt         string              `json:"created_at"`
}

func toOrderResponse(tx *order.Transaction) OrderResponse {
	items := make([]OrderLineResponse, 0, len(tx.Items))
	for _, item := range tx.Items {
		items = append(items, OrderLineResponse{
			RetailerProductID: item.RetailerProductID,
			Title:             item.Title,
			Quantity:          item.Quantity,
			UnitPrice:         item.UnitPrice.StringFixed(2),
			LineTotal:         item.Amount.StringFixed(2),
		})
	}
	updates := make([]OrderStatusUpdate, 0, len(tx.Updates))
	for _, u := range tx.Updates {
		updates = append(updates, OrderStatusUpdate{
			From:   string(u.FromStatus),
			To:     string(u.ToStatus),
			Source: string(u.Source),
			Note:   u.Note,
			At:     u.CreatedAt.Format(time.RFC3339),
		})
	}

	resp := OrderResponse{
		ID:            tx.ID.String(),
		OrderRef:      tx.OrderRef,
		ChildID:       tx.ChildID.String(),
		Retailer:      tx.Retailer.String(),
		Status:        string(tx.Status),
		Items:         items,
		Subtotal:      tx.Subtotal.StringFixed(2),
		Shipping:      tx.Shipping.StringFixed(2),
		Tax:           tx.Tax.StringFixed(2),
		Total:         tx.Total.StringFixed(2),
		RetailerOrderID: tx.RetailerOrderID,
		TrackingRef:   tx.TrackingRef,
		FailureReason: tx.FailureReason,
		Updates:       updates,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.EstimatedDelivery != nil {
		resp.EstimatedDelivery = tx.EstimatedDelivery.Format("2006-01-02")
	}
	return resp
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// Create places a manual order
func (h *OrderHandler) Create(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	childID, ok := parseUUID(req.ChildID)
	if !ok {
		h.BadRequest(c, "Invalid child ID")
		return
	}

	lines := make([]reorderapp.OrderLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, reorderapp.OrderLineInput{
			RetailerProductID: line.RetailerProductID,
			Title:             line.Title,
			Quantity:          line.Quantity,
			UnitPrice:         decimal.NewFromFloat(line.UnitPrice),
		})
	}

	tx, err := h.orchestrator.CreateManualOrder(c.Request.Context(), reorderapp.ManualOrderInput{
		HouseholdID: householdID,
		ChildID:     childID,
		Retailer:    retailer.Code(req.Retailer),
		Lines:       lines,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toOrderResponse(tx))
}

// List returns the household's recent orders
func (h *OrderHandler) List(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	transactions, err := h.orchestrator.ListOrders(c.Request.Context(), householdID, defaultOrderListLimit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]OrderResponse, 0, len(transactions))
	for _, tx := range transactions {
		out = append(out, toOrderResponse(tx))
	}
	h.Success(c, out)
}

// Get returns one order by ID
func (h *OrderHandler) Get(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	orderID, ok := parseUUIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid order ID")
		return
	}

	tx, err := h.orchestrator.GetOrder(c.Request.Context(), householdID, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(tx))
}

// Cancel cancels an order that has not shipped
func (h *OrderHandler) Cancel(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	orderID, ok := parseUUIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid order ID")
		return
	}
	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.BindError(c, err)
		return
	}

	tx, err := h.orchestrator.CancelOrder(c.Request.Context(), householdID, orderID, req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(tx))
}
