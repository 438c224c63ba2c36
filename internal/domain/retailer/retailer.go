// Package retailer defines the uniform port over external retailer backends
// and the per-household retailer configuration with its health accounting.
package retailer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/littleloop/backend/internal/domain/shared/valueobject"
)

// Retailer errors
var (
	ErrRetailerNotConfigured   = errors.New("retailer: retailer not configured")
	ErrRetailerDeactivated     = errors.New("retailer: configuration deactivated after repeated failures")
	ErrRetailerUnavailable     = errors.New("retailer: retailer temporarily unavailable")
	ErrRetailerRequestFailed   = errors.New("retailer: retailer request failed")
	ErrRetailerInvalidResponse = errors.New("retailer: invalid retailer response")
	ErrRetailerAuthFailed      = errors.New("retailer: retailer authentication failed")
	ErrUnknownRetailer         = errors.New("retailer: unknown retailer code")
)

// Code identifies a supported retailer
type Code string

const (
	// CodeAmazon is the affiliate-style retailer (Product Advertising API)
	CodeAmazon Code = "AMAZON"
	// CodeWalmart is the first-party commerce retailer
	CodeWalmart Code = "WALMART"
)

// IsValid returns true if the code is a supported retailer
func (c Code) IsValid() bool {
	switch c {
	case CodeAmazon, CodeWalmart:
		return true
	}
	return false
}

// String returns the string representation of Code
func (c Code) String() string {
	return string(c)
}

// ProductOffer is a normalized product listing from a retailer search
type ProductOffer struct {
	RetailerProductID string
	Retailer          Code
	Title             string
	Brand             string
	Size              string
	PackCount         int
	Price             decimal.Decimal
	PricePerUnit      decimal.Decimal
	Currency          string
	ImageURL          string
	DetailURL         string
	InStock           bool
}

// SearchQuery filters a retailer catalogue search
type SearchQuery struct {
	Keywords   string
	Size       string
	Brand      string
	MaxResults int
}

// OrderLine is one product plus quantity in an order submission
type OrderLine struct {
	RetailerProductID string
	Title             string
	Quantity          int
	UnitPrice         decimal.Decimal
}

// OrderSubmission is the order handed to a retailer backend
type OrderSubmission struct {
	OrderRef string
	Lines    []OrderLine
	Address  valueobject.Address
}

// OrderReceipt is the retailer's acknowledgement of a submitted order
type OrderReceipt struct {
	RetailerOrderID   string
	TrackingRef       string
	EstimatedDelivery *time.Time
	// Affiliate indicates fulfilment is attributed rather than placed
	// through a native ordering endpoint.
	Affiliate bool
}

// PriceUpdate is a refreshed price for one retailer product
type PriceUpdate struct {
	RetailerProductID string
	Price             decimal.Decimal
	PricePerUnit      decimal.Decimal
	InStock           bool
}

// Backend is the closed capability set every retailer adapter implements.
// New retailers add an implementation and a Code; callers never branch on
// retailer-specific behaviour outside an adapter.
type Backend interface {
	// Code returns the retailer this adapter talks to
	Code() Code

	// Search queries the retailer catalogue
	Search(ctx context.Context, creds Credentials, query SearchQuery) ([]ProductOffer, error)

	// SubmitOrder places (or attributes) an order with the retailer
	SubmitOrder(ctx context.Context, creds Credentials, order OrderSubmission) (*OrderReceipt, error)

	// TestConnection verifies the credentials against the retailer API
	TestConnection(ctx context.Context, creds Credentials) error

	// UpdatePricing refreshes prices for the given retailer product IDs
	UpdatePricing(ctx context.Context, creds Credentials, productIDs []string) ([]PriceUpdate, error)
}

// Registry resolves retailer adapters by code
type Registry interface {
	Backend(code Code) (Backend, error)
	Backends() []Backend
}

// Credentials are the per-household secrets for one retailer
type Credentials struct {
	AccessKey    string
	SecretKey    string
	PartnerTag   string
	ClientID     string
	ClientSecret string
}

// ConfigurationRepository persists retailer configurations and applies
// health-counter updates atomically.
type ConfigurationRepository interface {
	Save(ctx context.Context, cfg *Configuration) error
	FindByID(ctx context.Context, id uuid.UUID) (*Configuration, error)
	// FindActive returns the household's active configuration for a
	// retailer or shared.ErrNotFound
	FindActive(ctx context.Context, householdID uuid.UUID, code Code) (*Configuration, error)
	FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*Configuration, error)

	// RecordSuccess resets consecutive_failures and stamps last_success in
	// one atomic update
	RecordSuccess(ctx context.Context, id uuid.UUID) error
	// RecordFailure increments consecutive_failures, records the error and
	// deactivates the configuration once the threshold is crossed, all in
	// one atomic update. It returns the counter value after the update.
	RecordFailure(ctx context.Context, id uuid.UUID, cause string) (int, error)
}
