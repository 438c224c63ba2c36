// Package handler exposes the engine over HTTP: household accounts, usage
// logging, forecasts, retailer connections, orders, subscriptions and the
// payment gateway webhook.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/littleloop/backend/internal/application/reorder"
	"github.com/littleloop/backend/internal/domain/billing"
	"github.com/littleloop/backend/internal/domain/forecast"
	"github.com/littleloop/backend/internal/domain/retailer"
	"github.com/littleloop/backend/internal/domain/shared"
	"github.com/littleloop/backend/internal/interfaces/http/dto"
	"github.com/littleloop/backend/internal/interfaces/http/middleware"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// HouseholdIDHeader scopes a request to one account. The gateway in front
// of this service resolves the session to a household and injects it.
const HouseholdIDHeader = "X-Household-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// getHouseholdID extracts the household scope from the request
func getHouseholdID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader(HouseholdIDHeader)
	if raw == "" {
		return uuid.Nil, errors.New("household ID not found in request")
	}
	return uuid.Parse(raw)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// BindError formats a request binding failure. Validator failures carry
// per-field details; malformed JSON stays a plain bad request.
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		middleware.HandleValidationError(c, err)
		return
	}
	h.BadRequest(c, err.Error())
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// sentinelCodes maps expected domain sentinels onto the error taxonomy.
// A wrapped DomainError takes precedence; anything unmatched is a 500.
var sentinelCodes = []struct {
	target error
	code   string
}{
	{billing.ErrActiveSubscriptionExists, dto.ErrCodeAlreadyExists},
	{billing.ErrSubscriptionNotActive, dto.ErrCodeInvalidState},
	{billing.ErrUnknownTier, dto.ErrCodeInvalidInput},
	{retailer.ErrRetailerNotConfigured, dto.ErrCodeNotFound},
	{retailer.ErrRetailerDeactivated, dto.ErrCodeInvalidState},
	{retailer.ErrUnknownRetailer, dto.ErrCodeInvalidInput},
	{retailer.ErrRetailerAuthFailed, dto.ErrCodeExternalService},
	{retailer.ErrRetailerUnavailable, dto.ErrCodeExternalService},
	{retailer.ErrRetailerRequestFailed, dto.ErrCodeExternalService},
	{retailer.ErrRetailerInvalidResponse, dto.ErrCodeExternalService},
	{reorder.ErrNoOfferAvailable, dto.ErrCodeBusinessRule},
	{forecast.ErrInsufficientHistory, dto.ErrCodeInsufficientHistory},
}

// HandleError converts domain errors to HTTP responses. Wrapped errors are
// unwrapped to the innermost DomainError, then matched against the known
// sentinels; anything else becomes a 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		statusCode := dto.GetHTTPStatus(code)
		c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	for _, m := range sentinelCodes {
		if errors.Is(err, m.target) {
			c.JSON(dto.GetHTTPStatus(m.code), dto.NewErrorResponseWithRequestID(m.code, m.target.Error(), requestID))
			return
		}
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}

// parseUUIDParam parses a UUID path parameter
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	return parseUUID(c.Param(name))
}

func parseUUID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
