package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/littleloop/backend/internal/domain/retailer"
)

// Constants for the Product Advertising API
const (
	// maxAmazonResponseSize limits the response body size to prevent memory exhaustion
	maxAmazonResponseSize = 10 * 1024 * 1024 // 10MB max response

	amazonTargetPrefix = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1."
	amazonSearchIndex  = "Baby"
	amazonPartnerType  = "Associates"

	defaultMaxResults = 10
)

// amazonResources are the response groups requested on every item call
var amazonResources = []string{
	"ItemInfo.Title",
	"ItemInfo.ByLineInfo",
	"Images.Primary.Medium",
	"Offers.Listings.Price",
	"Offers.Listings.Availability.Type",
}

// AmazonAdapter implements retailer.Backend via the Product Advertising API.
// The API has no ordering endpoint, so SubmitOrder returns an attributed
// receipt rather than a placed order.
type AmazonAdapter struct {
	config     *AmazonConfig
	httpClient *http.Client
	// now is injectable for deterministic signing in tests
	now func() time.Time
}

var _ retailer.Backend = (*AmazonAdapter)(nil)

// NewAmazonAdapter creates a new Amazon adapter with the given configuration
func NewAmazonAdapter(config *AmazonConfig) (*AmazonAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AmazonAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		now: time.Now,
	}, nil
}

// Code returns the retailer this adapter talks to
func (a *AmazonAdapter) Code() retailer.Code {
	return retailer.CodeAmazon
}

// Search queries the catalogue via SearchItems
func (a *AmazonAdapter) Search(ctx context.Context, creds retailer.Credentials, query retailer.SearchQuery) ([]retailer.ProductOffer, error) {
	if err := validateAmazonCredentials(creds); err != nil {
		return nil, err
	}

	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	keywords := query.Keywords
	if query.Size != "" {
		keywords = strings.TrimSpace(keywords + " size " + query.Size)
	}

	payload := amazonSearchRequest{
		Keywords:    keywords,
		Brand:       query.Brand,
		SearchIndex: amazonSearchIndex,
		ItemCount:   maxResults,
		PartnerTag:  creds.PartnerTag,
		PartnerType: amazonPartnerType,
		Marketplace: a.config.Marketplace,
		Resources:   amazonResources,
	}

	respBody, err := a.doRequest(ctx, creds, "/paapi5/searchitems", "SearchItems", payload)
	if err != nil {
		return nil, err
	}

	items, err := decodeAmazonItems(respBody)
	if err != nil {
		return nil, err
	}

	offers := make([]retailer.ProductOffer, 0, len(items))
	for _, item := range items {
		offers = append(offers, a.toOffer(item))
	}
	return offers, nil
}

// SubmitOrder attributes the order to the affiliate programme. There is no
// native ordering endpoint; the receipt carries a synthesized tracking
// reference derived from the order reference.
func (a *AmazonAdapter) SubmitOrder(ctx context.Context, creds retailer.Credentials, order retailer.OrderSubmission) (*retailer.OrderReceipt, error) {
	if err := validateAmazonCredentials(creds); err != nil {
		return nil, err
	}
	if len(order.Lines) == 0 {
		return nil, fmt.Errorf("%w: order has no lines", retailer.ErrRetailerRequestFailed)
	}

	// Verify the items are still purchasable before attributing the order.
	ids := make([]string, 0, len(order.Lines))
	for _, line := range order.Lines {
		ids = append(ids, line.RetailerProductID)
	}
	updates, err := a.UpdatePricing(ctx, creds, ids)
	if err != nil {
		return nil, err
	}
	available := make(map[string]bool, len(updates))
	for _, u := range updates {
		available[u.RetailerProductID] = u.InStock
	}
	for _, line := range order.Lines {
		if !available[line.RetailerProductID] {
			return nil, fmt.Errorf("%w: item %s unavailable", retailer.ErrRetailerRequestFailed, line.RetailerProductID)
		}
	}

	return &retailer.OrderReceipt{
		RetailerOrderID: fmt.Sprintf("AMZN-%s", order.OrderRef),
		TrackingRef:     fmt.Sprintf("%s?tag=%s", order.OrderRef, creds.PartnerTag),
		Affiliate:       true,
	}, nil
}

// TestConnection verifies the credentials with a minimal search
func (a *AmazonAdapter) TestConnection(ctx context.Context, creds retailer.Credentials) error {
	_, err := a.Search(ctx, creds, retailer.SearchQuery{Keywords: "diapers", MaxResults: 1})
	return err
}

// UpdatePricing refreshes prices for the given ASINs via GetItems
func (a *AmazonAdapter) UpdatePricing(ctx context.Context, creds retailer.Credentials, productIDs []string) ([]retailer.PriceUpdate, error) {
	if err := validateAmazonCredentials(creds); err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return nil, nil
	}

	payload := amazonGetItemsRequest{
		ItemIds:     productIDs,
		PartnerTag:  creds.PartnerTag,
		PartnerType: amazonPartnerType,
		Marketplace: a.config.Marketplace,
		Resources:   amazonResources,
	}

	respBody, err := a.doRequest(ctx, creds, "/paapi5/getitems", "GetItems", payload)
	if err != nil {
		return nil, err
	}

	items, err := decodeAmazonItems(respBody)
	if err != nil {
		return nil, err
	}

	updates := make([]retailer.PriceUpdate, 0, len(items))
	for _, item := range items {
		offer := a.toOffer(item)
		updates = append(updates, retailer.PriceUpdate{
			RetailerProductID: offer.RetailerProductID,
			Price:             offer.Price,
			PricePerUnit:      offer.PricePerUnit,
			InStock:           offer.InStock,
		})
	}
	return updates, nil
}

// toOffer normalizes an API item into a domain offer
func (a *AmazonAdapter) toOffer(item amazonItem) retailer.ProductOffer {
	offer := retailer.ProductOffer{
		RetailerProductID: item.ASIN,
		Retailer:          retailer.CodeAmazon,
		DetailURL:         item.DetailPageURL,
		Currency:          "CAD",
	}
	var apiBrand string
	if item.ItemInfo != nil {
		if item.ItemInfo.Title != nil {
			offer.Title = item.ItemInfo.Title.DisplayValue
		}
		if item.ItemInfo.ByLineInfo != nil && item.ItemInfo.ByLineInfo.Brand != nil {
			apiBrand = item.ItemInfo.ByLineInfo.Brand.DisplayValue
		}
	}
	if item.Images != nil && item.Images.Primary != nil && item.Images.Primary.Medium != nil {
		offer.ImageURL = item.Images.Primary.Medium.URL
	}
	if item.Offers != nil && len(item.Offers.Listings) > 0 {
		listing := item.Offers.Listings[0]
		if listing.Price != nil {
			offer.Price = decimal.NewFromFloat(listing.Price.Amount)
			if listing.Price.Currency != "" {
				offer.Currency = listing.Price.Currency
			}
		}
		if listing.Availability != nil {
			offer.InStock = listing.Availability.Type == "Now"
		}
	}
	retailer.ParseOffer(&offer)
	// Prefer the retailer-supplied brand over the title heuristic
	if apiBrand != "" {
		offer.Brand = apiBrand
	}
	return offer
}

// doRequest signs and performs one PA-API call
func (a *AmazonAdapter) doRequest(ctx context.Context, creds retailer.Credentials, path, operation string, payload any) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to marshal request: %w", err)
	}

	url := "https://" + a.config.Host + path
	if a.config.BaseURL != "" {
		url = a.config.BaseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to create request: %w", err)
	}

	a.config.SignRequest(req, creds.AccessKey, creds.SecretKey, amazonTargetPrefix+operation, bodyBytes, a.now())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", retailer.ErrRetailerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAmazonResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", retailer.ErrRetailerInvalidResponse, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", retailer.ErrRetailerAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", retailer.ErrRetailerUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", retailer.ErrRetailerRequestFailed, resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// decodeAmazonItems parses a response and surfaces API-level errors
func decodeAmazonItems(body []byte) ([]amazonItem, error) {
	var resp amazonSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", retailer.ErrRetailerInvalidResponse, err)
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		if first.Code == "InvalidSignature" || first.Code == "UnrecognizedClient" {
			return nil, fmt.Errorf("%w: %s - %s", retailer.ErrRetailerAuthFailed, first.Code, first.Message)
		}
		return nil, fmt.Errorf("%w: %s - %s", retailer.ErrRetailerRequestFailed, first.Code, first.Message)
	}
	return resp.items(), nil
}

func validateAmazonCredentials(creds retailer.Credentials) error {
	if creds.AccessKey == "" || creds.SecretKey == "" || creds.PartnerTag == "" {
		return retailer.ErrRetailerNotConfigured
	}
	return nil
}

// truncateBody keeps error messages bounded
func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
