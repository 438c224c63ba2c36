package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/littleloop/backend/internal/domain/retailer"
)

// maxWalmartResponseSize limits the response body size to prevent memory exhaustion
const maxWalmartResponseSize = 10 * 1024 * 1024 // 10MB max response

// tokenExpiryMargin renews tokens slightly before the server-side expiry
const tokenExpiryMargin = 60 * time.Second

// cachedToken is a bearer token plus its local expiry
type cachedToken struct {
	value     string
	expiresAt time.Time
}

// WalmartAdapter implements retailer.Backend for the first-party Walmart
// commerce API. Authentication exchanges client credentials for a bearer
// token which is cached per client ID until shortly before expiry.
type WalmartAdapter struct {
	config     *WalmartConfig
	httpClient *http.Client

	tokens map[string]cachedToken
	mu     sync.Mutex // protects tokens
}

var _ retailer.Backend = (*WalmartAdapter)(nil)

// NewWalmartAdapter creates a new Walmart adapter with the given configuration
func NewWalmartAdapter(config *WalmartConfig) (*WalmartAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &WalmartAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		tokens: make(map[string]cachedToken),
	}, nil
}

// Code returns the retailer this adapter talks to
func (a *WalmartAdapter) Code() retailer.Code {
	return retailer.CodeWalmart
}

// Search queries the Walmart catalogue
func (a *WalmartAdapter) Search(ctx context.Context, creds retailer.Credentials, query retailer.SearchQuery) ([]retailer.ProductOffer, error) {
	if err := validateWalmartCredentials(creds); err != nil {
		return nil, err
	}

	keywords := query.Keywords
	if query.Brand != "" {
		keywords = strings.TrimSpace(query.Brand + " " + keywords)
	}
	if query.Size != "" {
		keywords = strings.TrimSpace(keywords + " size " + query.Size)
	}
	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	params := url.Values{}
	params.Set("query", keywords)
	params.Set("limit", strconv.Itoa(maxResults))

	respBody, err := a.doRequest(ctx, creds, http.MethodGet, "/v3/items/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp walmartSearchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", retailer.ErrRetailerInvalidResponse, err)
	}

	offers := make([]retailer.ProductOffer, 0, len(resp.Items))
	for _, item := range resp.Items {
		offers = append(offers, toWalmartOffer(item))
	}
	return offers, nil
}

// SubmitOrder places a real order through the commerce API
func (a *WalmartAdapter) SubmitOrder(ctx context.Context, creds retailer.Credentials, order retailer.OrderSubmission) (*retailer.OrderReceipt, error) {
	if err := validateWalmartCredentials(creds); err != nil {
		return nil, err
	}
	if len(order.Lines) == 0 {
		return nil, fmt.Errorf("%w: order has no lines", retailer.ErrRetailerRequestFailed)
	}

	lines := make([]walmartOrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		price, _ := line.UnitPrice.Float64()
		lines = append(lines, walmartOrderLine{
			ItemID:    line.RetailerProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
		})
	}
	payload := walmartOrderRequest{
		ClientOrderRef: order.OrderRef,
		Lines:          lines,
		ShippingAddress: walmartShippingAddress{
			AddressLine1: order.Address.Line1(),
			City:         order.Address.City(),
			State:        order.Address.Province(),
			PostalCode:   order.Address.PostalCode(),
			Country:      order.Address.Country(),
		},
	}

	respBody, err := a.doRequest(ctx, creds, http.MethodPost, "/v3/orders", payload)
	if err != nil {
		return nil, err
	}

	var resp walmartOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", retailer.ErrRetailerInvalidResponse, err)
	}
	if resp.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order ID", retailer.ErrRetailerInvalidResponse)
	}

	return &retailer.OrderReceipt{
		RetailerOrderID:   resp.OrderID,
		TrackingRef:       resp.TrackingNumber,
		EstimatedDelivery: resp.EstimatedDelivery,
		Affiliate:         false,
	}, nil
}

// TestConnection verifies the credentials by acquiring a token
func (a *WalmartAdapter) TestConnection(ctx context.Context, creds retailer.Credentials) error {
	if err := validateWalmartCredentials(creds); err != nil {
		return err
	}
	_, err := a.token(ctx, creds, true)
	return err
}

// UpdatePricing refreshes prices for the given item IDs
func (a *WalmartAdapter) UpdatePricing(ctx context.Context, creds retailer.Credentials, productIDs []string) ([]retailer.PriceUpdate, error) {
	if err := validateWalmartCredentials(creds); err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(productIDs, ","))

	respBody, err := a.doRequest(ctx, creds, http.MethodGet, "/v3/items?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp walmartSearchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", retailer.ErrRetailerInvalidResponse, err)
	}

	updates := make([]retailer.PriceUpdate, 0, len(resp.Items))
	for _, item := range resp.Items {
		offer := toWalmartOffer(item)
		updates = append(updates, retailer.PriceUpdate{
			RetailerProductID: offer.RetailerProductID,
			Price:             offer.Price,
			PricePerUnit:      offer.PricePerUnit,
			InStock:           offer.InStock,
		})
	}
	return updates, nil
}

// toWalmartOffer normalizes an API item into a domain offer
func toWalmartOffer(item walmartItem) retailer.ProductOffer {
	offer := retailer.ProductOffer{
		RetailerProductID: item.ItemID,
		Retailer:          retailer.CodeWalmart,
		Title:             item.Name,
		Price:             decimal.NewFromFloat(item.Price),
		Currency:          item.Currency,
		ImageURL:          item.ThumbnailImage,
		DetailURL:         item.ProductURL,
		InStock:           strings.EqualFold(item.Availability, "IN_STOCK"),
	}
	if offer.Currency == "" {
		offer.Currency = "CAD"
	}
	retailer.ParseOffer(&offer)
	if item.Brand != "" {
		offer.Brand = item.Brand
	}
	return offer
}

// token returns a cached bearer token for the client, refreshing it when
// missing or near expiry. force always fetches a fresh token.
func (a *WalmartAdapter) token(ctx context.Context, creds retailer.Credentials, force bool) (string, error) {
	a.mu.Lock()
	cached, ok := a.tokens[creds.ClientID]
	a.mu.Unlock()
	if ok && !force && time.Now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v3/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("walmart: failed to create token request: %w", err)
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	a.setServiceHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", retailer.ErrRetailerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWalmartResponseSize))
	if err != nil {
		return "", fmt.Errorf("%w: %v", retailer.ErrRetailerInvalidResponse, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: status %d", retailer.ErrRetailerAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token status %d", retailer.ErrRetailerRequestFailed, resp.StatusCode)
	}

	var tok walmartTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("%w: %v", retailer.ErrRetailerInvalidResponse, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", retailer.ErrRetailerInvalidResponse)
	}

	expiry := time.Duration(tok.ExpiresIn) * time.Second
	if expiry <= tokenExpiryMargin {
		expiry = 2 * tokenExpiryMargin
	}
	a.mu.Lock()
	a.tokens[creds.ClientID] = cachedToken{
		value:     tok.AccessToken,
		expiresAt: time.Now().Add(expiry - tokenExpiryMargin),
	}
	a.mu.Unlock()

	return tok.AccessToken, nil
}

// doRequest performs one authenticated API call, retrying once with a fresh
// token when the cached one has been revoked server-side.
func (a *WalmartAdapter) doRequest(ctx context.Context, creds retailer.Credentials, method, path string, payload any) ([]byte, error) {
	body, status, err := a.doRequestOnce(ctx, creds, method, path, payload, false)
	if err != nil && status == http.StatusUnauthorized {
		body, _, err = a.doRequestOnce(ctx, creds, method, path, payload, true)
	}
	return body, err
}

func (a *WalmartAdapter) doRequestOnce(ctx context.Context, creds retailer.Credentials, method, path string, payload any, freshToken bool) ([]byte, int, error) {
	bearer, err := a.token(ctx, creds, freshToken)
	if err != nil {
		return nil, 0, err
	}

	var reqBody io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("walmart: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("walmart: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	a.setServiceHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", retailer.ErrRetailerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWalmartResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %v", retailer.ErrRetailerInvalidResponse, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", retailer.ErrRetailerAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", retailer.ErrRetailerUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d: %s", retailer.ErrRetailerRequestFailed, resp.StatusCode, walmartErrorDetail(body))
	}
	return body, resp.StatusCode, nil
}

// setServiceHeaders attaches the Walmart service identification headers
func (a *WalmartAdapter) setServiceHeaders(req *http.Request) {
	req.Header.Set("WM_SVC.NAME", a.config.ServiceName)
	req.Header.Set("WM_QOS.CORRELATION_ID", uuid.NewString())
}

// walmartErrorDetail extracts a readable message from an error body
func walmartErrorDetail(body []byte) string {
	var resp walmartErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && len(resp.Error) > 0 {
		return fmt.Sprintf("%s - %s", resp.Error[0].Code, resp.Error[0].Description)
	}
	return truncateBody(body)
}

func validateWalmartCredentials(creds retailer.Credentials) error {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return retailer.ErrRetailerNotConfigured
	}
	return nil
}
