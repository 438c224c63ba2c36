package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	forecastapp "github.com/littleloop/backend/internal/application/forecast"
	"github.com/littleloop/backend/internal/domain/forecast"
	"github.com/littleloop/backend/internal/interfaces/http/dto"
)

// ForecastHandler handles consumption forecast endpoints
type ForecastHandler struct {
	BaseHandler
	forecaster *forecastapp.ForecasterService
}

// NewForecastHandler creates a new ForecastHandler
func NewForecastHandler(forecaster *forecastapp.ForecasterService) *ForecastHandler {
	return &ForecastHandler{forecaster: forecaster}
}

// RegisterRoutes registers forecast routes
func (h *ForecastHandler) RegisterRoutes(rg *gin.RouterGroup) {
	forecasts := rg.Group("/forecast")
	{
		forecasts.POST("/predict", h.Predict)
		forecasts.GET("/children/:id/latest", h.Latest)
	}
}

// PredictRequest asks for a fresh forecast
type PredictRequest struct {
	ChildID string `json:"child_id" binding:"required,uuid"`
	// HorizonDays defaults to the configured horizon when omitted
	HorizonDays int `json:"horizon_days" binding:"omitempty,min=1,max=90"`
}

// SizeChangeResponse is the optional size transition estimate
type SizeChangeResponse struct {
	Probability   float64 `json:"probability"`
	EstimatedDate string  `json:"estimated_date"`
}

// PredictionResponse is one forecasting run's output
type PredictionResponse struct {
	ID                  string              `json:"id"`
	ChildID             string              `json:"child_id"`
	ModelVersion        string              `json:"model_version"`
	HorizonDays         int                 `json:"horizon_days"`
	Confidence          string              `json:"confidence"`
	DailyRate           float64             `json:"daily_rate"`
	HorizonQuantity     int                 `json:"horizon_quantity"`
	PredictedRunoutDate string              `json:"predicted_runout_date"`
	RecommendedReorder  string              `json:"recommended_reorder_date"`
	MAE                 float64             `json:"mae"`
	RSquared            float64             `json:"r_squared"`
	SizeChange          *SizeChangeResponse `json:"size_change,omitempty"`
	TrainingSamples     int                 `json:"training_samples"`
	PredictionDate      string              `json:"prediction_date"`
}

func toPredictionResponse(p *forecast.ConsumptionPrediction) PredictionResponse {
	resp := PredictionResponse{
		ID:                  p.ID.String(),
		ChildID:             p.ChildID.String(),
		ModelVersion:        p.ModelVersion,
		HorizonDays:         p.HorizonDays,
		Confidence:          p.Confidence.String(),
		DailyRate:           p.DailyRate,
		HorizonQuantity:     p.HorizonQuantity,
		PredictedRunoutDate: p.PredictedRunoutDate.Format("2006-01-02"),
		RecommendedReorder:  p.RecommendedReorder.Format("2006-01-02"),
		MAE:                 p.MAE,
		RSquared:            p.RSquared,
		TrainingSamples:     p.TrainingSamples,
		PredictionDate:      p.PredictionDate.Format(time.RFC3339),
	}
	if p.SizeChange != nil {
		resp.SizeChange = &SizeChangeResponse{
			Probability:   p.SizeChange.Probability,
			EstimatedDate: p.SizeChange.EstimatedDate.Format("2006-01-02"),
		}
	}
	return resp
}

// Predict runs a fresh forecast for one child
func (h *ForecastHandler) Predict(c *gin.Context) {
	householdID, err := getHouseholdID(c)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	childID, ok := parseUUID(req.ChildID)
	if !ok {
		h.BadRequest(c, "Invalid child ID")
		return
	}

	prediction, err := h.forecaster.GenerateForecast(c.Request.Context(), householdID, childID, req.HorizonDays)
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientHistory) {
			h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeInsufficientHistory,
				"Not enough usage history to forecast; keep logging for a couple of weeks")
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPredictionResponse(prediction))
}

// Latest returns the most recent stored forecast for a child
func (h *ForecastHandler) Latest(c *gin.Context) {
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

	prediction, err := h.forecaster.LatestForecast(c.Request.Context(), householdID, childID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toPredictionResponse(prediction))
}
