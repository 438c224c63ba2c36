package commerce

// amazonSearchRequest is the SearchItems request payload
type amazonSearchRequest struct {
	Keywords    string   `json:"Keywords"`
	Brand       string   `json:"Brand,omitempty"`
	SearchIndex string   `json:"SearchIndex"`
	ItemCount   int      `json:"ItemCount"`
	PartnerTag  string   `json:"PartnerTag"`
	PartnerType string   `json:"PartnerType"`
	Marketplace string   `json:"Marketplace"`
	Resources   []string `json:"Resources"`
}

// amazonGetItemsRequest is the GetItems request payload
type amazonGetItemsRequest struct {
	ItemIds     []string `json:"ItemIds"`
	PartnerTag  string   `json:"PartnerTag"`
	PartnerType string   `json:"PartnerType"`
	Marketplace string   `json:"Marketplace"`
	Resources   []string `json:"Resources"`
}

type amazonError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type amazonPrice struct {
	Amount   float64 `json:"Amount"`
	Currency string  `json:"Currency"`
}

type amazonListing struct {
	Price        *amazonPrice `json:"Price"`
	Availability *struct {
		Type string `json:"Type"`
	} `json:"Availability"`
}

type amazonItem struct {
	ASIN          string `json:"ASIN"`
	DetailPageURL string `json:"DetailPageURL"`
	ItemInfo      *struct {
		Title *struct {
			DisplayValue string `json:"DisplayValue"`
		} `json:"Title"`
		ByLineInfo *struct {
			Brand *struct {
				DisplayValue string `json:"DisplayValue"`
			} `json:"Brand"`
		} `json:"ByLineInfo"`
	} `json:"ItemInfo"`
	Images *struct {
		Primary *struct {
			Medium *struct {
				URL string `json:"URL"`
			} `json:"Medium"`
		} `json:"Primary"`
	} `json:"Images"`
	Offers *struct {
		Listings []amazonListing `json:"Listings"`
	} `json:"Offers"`
}

// amazonSearchResponse covers both SearchItems and GetItems responses
type amazonSearchResponse struct {
	Errors        []amazonError `json:"Errors"`
	SearchResult  *amazonResult `json:"SearchResult"`
	ItemsResult   *amazonResult `json:"ItemsResult"`
}

type amazonResult struct {
	Items []amazonItem `json:"Items"`
}

// items returns whichever result block the response carries
func (r *amazonSearchResponse) items() []amazonItem {
	if r.SearchResult != nil {
		return r.SearchResult.Items
	}
	if r.ItemsResult != nil {
		return r.ItemsResult.Items
	}
	return nil
}
