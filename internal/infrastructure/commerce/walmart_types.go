package commerce

import "time"

type walmartTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type walmartErrorResponse struct {
	Error []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

type walmartItem struct {
	ItemID         string  `json:"itemId"`
	Name           string  `json:"name"`
	Brand          string  `json:"brand"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	ThumbnailImage string  `json:"thumbnailImage"`
	ProductURL     string  `json:"productUrl"`
	Availability   string  `json:"availability"`
}

type walmartSearchResponse struct {
	Items      []walmartItem `json:"items"`
	TotalCount int           `json:"totalResults"`
}

type walmartOrderLine struct {
	ItemID    string  `json:"itemId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type walmartShippingAddress struct {
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

type walmartOrderRequest struct {
	ClientOrderRef  string                 `json:"clientOrderRef"`
	Lines           []walmartOrderLine     `json:"lines"`
	ShippingAddress walmartShippingAddress `json:"shippingAddress"`
}

type walmartOrderResponse struct {
	OrderID           string     `json:"orderId"`
	TrackingNumber    string     `json:"trackingNumber"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
	Status            string     `json:"status"`
}
