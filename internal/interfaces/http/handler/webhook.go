package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	billingapp "github.com/littleloop/backend/internal/application/billing"
	"github.com/littleloop/backend/internal/domain/shared"
)

// maxWebhookPayloadSize bounds the gateway webhook body (64KB)
const maxWebhookPayloadSize = 65536

// WebhookHandler receives payment gateway events. Endpoints are called by
// the gateway and carry their own signature auth instead of a household scope.
type WebhookHandler struct {
	BaseHandler
	webhooks *billingapp.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhooks *billingapp.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/stripe", h.HandleStripeWebhook)
}

// WebhookResponse acknowledges a gateway event
type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HandleStripeWebhook verifies and processes one gateway event. The raw
// body is read unparsed because signature verification covers its bytes.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, WebhookResponse{
			Received: false,
			Message:  "Failed to read request body",
		})
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, WebhookResponse{
			Received: false,
			Message:  "Payload too large",
		})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusUnauthorized, WebhookResponse{
			Received: false,
			Message:  "Missing Stripe-Signature header",
		})
		return
	}

	result, err := h.webhooks.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidSignature) {
			c.JSON(http.StatusUnauthorized, WebhookResponse{
				Received: false,
				Message:  "Webhook signature verification failed",
			})
			return
		}

		// Processing faults still acknowledge with 200 so the gateway
		// does not keep redelivering an event we cannot handle. Internal
		// details never leak into the response.
		resp := WebhookResponse{
			Received: true,
			Message:  "Webhook received but processing encountered an issue",
		}
		if result != nil {
			resp.EventID = result.EventID
			resp.EventType = result.EventType
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusOK, WebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Message:   result.Message,
	})
}
