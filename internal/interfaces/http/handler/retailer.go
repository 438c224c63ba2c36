package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	retailapp "github.com/littleloop/backend/internal/application/retail"
	"github.com/littleloop/backend/internal/domain/retailer"
)

// RetailerHandler handles retailer connection endpoints
type RetailerHandler struct {
	BaseHandler
	configurations *retailapp.ConfigurationService
}

// NewRetailerHandler creates a new RetailerHandler
func NewRetailerHandler(configurations *retailapp.ConfigurationService) *RetailerHandler {
	return &RetailerHandler{configurations: configurations}
}

// RegisterRoutes registers retailer routes
func (h *RetailerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	retailers := rg.Group("/retailers")
	{
		retailers.POST("/connect", h.Connect)
		retailers.GET("", h.List)
		retailers.POST("/:id/test", h.Test)
		retailers.DELETE("/:id", h.Disconnect)
	}
}

// ---------------------------------------------------------------------------
// Request/Response DTOs
// ---------------------------------------------------------------------------

// ConnectRetailerRequest carries credentials for one retailer.
// Amazon uses access/secret/partner tag; Walmart uses client ID/secret.
type ConnectRetailerRequest struct {
	Retailer     string `json:"retailer" binding:"required,oneof=AMAZON WALMART"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	PartnerTag   string `json:"partner_tag"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ConfigurationResponse is the stored retailer connection state.
// Credentials are never echoed back.
type ConfigurationResponse struct {
	ID                  string `json:"id"`
	Retailer            string `json:"retailer"`
	IsActive            bool   `json:"is_active"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
	LastSuccessAt       string `json:"last_success_at,omitempty"`
	LastFailureAt       string `json:"last_failure_at,omitempty"`
}

func toConfigurationResponse(cfg *retailer.Configuration) ConfigurationResponse {
	resp := ConfigurationResponse{
		ID:                  cfg.ID.String(),
		Retailer:            cfg.Retailer.String(),
		IsActive:            cfg.IsActive,
		ConsecutiveFailures: cfg.ConsecutiveFailures,
		LastError:           cfg.LastError,
	}
	if cfg.LastSuccessAt != nil {
		resp.LastSuccessAt = cfg.LastSuccessAt.Format(time.RFC3339)
	}
	if cfg.LastFailureAt != nil {
		resp.LastFailureAt = cfg.LastFailureAt.Format(time.RFC3339)
	}
	return resp
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// Connect verifies and stores retailer credentials
func (h *RetailerHandler) Connect(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	var req ConnectRetailerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	cfg, err := h.configurations.ConnectRetailer(c.Request.Context(), retailapp.ConnectRetailerInput{
		HouseholdID: householdID,
		Retailer:    retailer.Code(req.Retailer),
		Credentials: retailer.Credentials{
			AccessKey:    req.AccessKey,
			SecretKey:    req.SecretKey,
			PartnerTag:   req.PartnerTag,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
		},
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toConfigurationResponse(cfg))
}

// List returns the household's retailer connections
func (h *RetailerHandler) List(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	configs, err := h.configurations.ListConfigurations(c.Request.Context(), householdID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ConfigurationResponse, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, toConfigurationResponse(cfg))
	}
	h.Success(c, out)
}

// Test re-verifies a stored connection against the retailer API
func (h *RetailerHandler) Test(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	configID, ok := parseUUIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid configuration ID")
		return
	}

	cfg, err := h.configurations.TestConfiguration(c.Request.Context(), householdID, configID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConfigurationResponse(cfg))
}

// Disconnect deactivates a retailer connection
func (h *RetailerHandler) Disconnect(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	configID, ok := parseUUIDParam(c, "id")
	if !ok {
		h.BadRequest(c, "Invalid configuration ID")
		return
	}

	if err := h.configurations.DisconnectRetailer(c.Request.Context(), householdID, configID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
