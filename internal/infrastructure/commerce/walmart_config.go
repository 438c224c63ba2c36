package commerce

import "errors"

// WalmartConfig holds configuration for the Walmart commerce API
type WalmartConfig struct {
	// BaseURL is the API root (e.g. https://developer.api.walmart.com)
	BaseURL string
	// ServiceName is sent as WM_SVC.NAME on every request
	ServiceName string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// Errors for Walmart configuration
var (
	ErrWalmartConfigMissingBaseURL = errors.New("walmart: base URL is required")
)

// NewWalmartConfig creates a config with production defaults
func NewWalmartConfig() *WalmartConfig {
	return &WalmartConfig{
		BaseURL:        "https://developer.api.walmart.com",
		ServiceName:    "littleloop",
		TimeoutSeconds: 15,
	}
}

// Validate validates the Walmart configuration
func (c *WalmartConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrWalmartConfigMissingBaseURL
	}
	if c.ServiceName == "" {
		c.ServiceName = "littleloop"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
	return nil
}
