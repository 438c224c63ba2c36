package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	householdapp "github.com/littleloop/backend/internal/application/household"
	"github.com/littleloop/backend/internal/domain/household"
)

// HouseholdHandler handles account, child and usage endpoints
type HouseholdHandler struct {
	BaseHandler
	service *householdapp.HouseholdService
}

// NewHouseholdHandler creates a new HouseholdHandler
func NewHouseholdHandler(service *householdapp.HouseholdService) *HouseholdHandler {
	return &HouseholdHandler{service: service}
}

// RegisterRoutes registers household routes
func (h *HouseholdHandler) RegisterRoutes(rg *gin.RouterGroup) {
	households := rg.Group("/households")
	{
		households.POST("", h.Register)
		households.GET("/me", h.GetCurrent)
		households.PUT("/me/auto-reorder", h.SetAutoReorder)
		households.POST("/me/children", h.AddChild)
		households.GET("/me/children", h.ListChildren)
		households.PUT("/me/children/:id/size", h.UpdateChildSize)
		households.POST("/me/children/:id/usage", h.LogUsage)
		households.PUT("/me/children/:id/inventory", h.SetInventory)
	}
}

// ---------------------------------------------------------------------------
// Request/Response DTOs
// ---------------------------------------------------------------------------

// RegisterHouseholdRequest is a new account registration
type RegisterHouseholdRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Name       string `json:"name" binding:"required,max=120"`
	Line1      string `json:"line1" binding:"required"`
	City       string `json:"city" binding:"required"`
	Province   string `json:"province" binding:"required,len=2"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"omitempty,len=2"`
}

// HouseholdResponse is the household account representation
type HouseholdResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	AutoReorder bool   `json:"auto_reorder"`
	HasPayment  bool   `json:"has_payment_method"`
	CreatedAt   string `json:"created_at"`
}

func toHouseholdResponse(h *household.Household) HouseholdResponse {
	return HouseholdResponse{
		ID:          h.ID.String(),
		Email:       h.Email,
		Name:        h.Name,
		Address:     h.DeliveryAddress.String(),
		AutoReorder: h.AutoReorder,
		HasPayment:  h.PaymentMethodID != "",
		CreatedAt:   h.CreatedAt.Format(time.RFC3339),
	}
}

// AddChildRequest registers a tracked child
type AddChildRequest struct {
	Name        string `json:"name" binding:"required,max=120"`
	BirthDate   string `json:"birth_date" binding:"required"`
	CurrentSize string `json:"current_size" binding:"required"`
}

// ChildResponse is the tracked-child representation
type ChildResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	BirthDate   string `json:"birth_date"`
	AgeMonths   int    `json:"age_months"`
	CurrentSize string `json:"current_size"`
}

func toChildResponse(c *household.Child) ChildResponse {
	return ChildResponse{
		ID:          c.ID.String(),
		Name:        c.Name,
		BirthDate:   c.BirthDate.Format("2006-01-02"),
		AgeMonths:   c.AgeInMonths(time.Now()),
		CurrentSize: c.CurrentSize,
	}
}

// SetAutoReorderRequest toggles the automatic reorder loop
type SetAutoReorderRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// UpdateChildSizeRequest confirms a size change
type UpdateChildSizeRequest struct {
	Size string `json:"size" binding:"required"`
}

// LogUsageRequest records diaper changes
type LogUsageRequest struct {
	Count    int    `json:"count" binding:"required,min=1,max=50"`
	LoggedAt string `json:"logged_at" binding:"omitempty"`
}

// SetInventoryRequest sets the on-hand count
type SetInventoryRequest struct {
	OnHand *float64 `json:"on_hand" binding:"required,gte=0"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// Register creates a new household account
func (h *HouseholdHandler) Register(c *gin.Context) {
	var req RegisterHouseholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	created, err := h.service.RegisterHousehold(c.Request.Context(), householdapp.RegisterHouseholdInput{
		Email:      req.Email,
		Name:       req.Name,
		Line1:      req.Line1,
		City:       req.City,
		Province:   req.Province,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toHouseholdResponse(created))
}

// GetCurrent returns the scoped household
func (h *HouseholdHandler) GetCurrent(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	found, err := h.service.GetHousehold(c.Request.Context(), householdID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toHouseholdResponse(found))
}

// SetAutoReorder toggles the scheduled reorder loop
func (h *HouseholdHandler) SetAutoReorder(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	var req SetAutoReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	updated, err := h.service.SetAutoReorder(c.Request.Context(), householdID, *req.Enabled)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toHouseholdResponse(updated))
}

// AddChild registers a child under the scoped household
func (h *HouseholdHandler) AddChild(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	var req AddChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		h.BadRequest(c, "birth_date must be YYYY-MM-DD")
		return
	}

	child, err := h.service.AddChild(c.Request.Context(), householdID, householdapp.AddChildInput{
		Name:        req.Name,
		BirthDate:   birthDate,
		CurrentSize: req.CurrentSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toChildResponse(child))
}

// ListChildren returns the household's tracked children
func (h *HouseholdHandler) ListChildren(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	children, err := h.service.ListChildren(c.Request.Context(), householdID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ChildResponse, 0, len(children))
	for _, child := range children {
		out = append(out, toChildResponse(child))
	}
	h.Success(c, out)
}

// UpdateChildSize confirms a diaper size change
func (h *HouseholdHandler) UpdateChildSize(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	childID, ok := parseUUIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid child ID")
		return
	}
	var req UpdateChildSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	child, err := h.service.UpdateChildSize(c.Request.Context(), householdID, childID, req.Size)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toChildResponse(child))
}

// LogUsage appends diaper-change events for a child
func (h *HouseholdHandler) LogUsage(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	childID, ok := parseUUIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid child ID")
		return
	}
	var req LogUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	var loggedAt time.Time
	if req.LoggedAt != "" {
		loggedAt, err = time.Parse(time.RFC3339, req.LoggedAt)
		if err != nil {
			h.BadRequest(c, "logged_at must be RFC3339")
			return
		}
	}

	if err := h.service.LogUsage(c.Request.Context(), householdID, childID, householdapp.LogUsageInput{
		Count:    req.Count,
		LoggedAt: loggedAt,
	}); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// SetInventory sets the on-hand diaper count for a child
func (h *HouseholdHandler) SetInventory(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	childID, ok := parseUUIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid child ID")
		return
	}
	var req SetInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	if err := h.service.SetInventory(c.Request.Context(), householdID, childID, *req.OnHand); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
