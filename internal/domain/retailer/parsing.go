package retailer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// knownBrands are matched case-insensitively anywhere in a listing title.
// Unknown titles fall back to the first token.
var knownBrands = []string{
	"Pampers",
	"Huggies",
	"Kirkland",
	"Honest",
	"Seventh Generation",
	"Hello Bello",
	"Luvs",
	"Parent's Choice",
	"Rascal + Friends",
	"Coterie",
}

// sizePattern matches diaper size vocabulary: "Size 4", "SZ 5", newborn and
// preemie markers.
var sizePattern = regexp.MustCompile(`(?i)\b(?:size|sz)\s*([0-7])\b|\b(newborn|preemie)\b`)

// packPatterns match common pack-count vocabulary in listing titles, in
// priority order.
var packPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(\d{1,4})\s*(?:count|ct)\b`),
	regexp.MustCompile(`(?i)\bpack\s*of\s*(\d{1,4})\b`),
	regexp.MustCompile(`(?i)\b(\d{1,4})\s*(?:pack|pk|diapers|wipes)\b`),
}

// ParseBrand extracts the brand from a listing title via known-brand lookup,
// falling back to the first title token.
func ParseBrand(title string) string {
	lower := strings.ToLower(title)
	for _, brand := range knownBrands {
		if strings.Contains(lower, strings.ToLower(brand)) {
			return brand
		}
	}
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ParseSize extracts the diaper size from a listing title, empty when absent
func ParseSize(title string) string {
	m := sizePattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return strings.ToLower(m[2])
}

// ParsePackCount extracts the pack count from a listing title, 0 when absent
func ParsePackCount(title string) int {
	for _, p := range packPatterns {
		if m := p.FindStringSubmatch(title); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// PricePerUnit divides price by the pack count, treating unknown counts as 1
func PricePerUnit(price decimal.Decimal, packCount int) decimal.Decimal {
	if packCount < 1 {
		packCount = 1
	}
	return price.Div(decimal.NewFromInt(int64(packCount))).Round(4)
}

// ParseOffer fills the derived fields of an offer from its title and price
func ParseOffer(offer *ProductOffer) {
	offer.Brand = ParseBrand(offer.Title)
	offer.Size = ParseSize(offer.Title)
	offer.PackCount = ParsePackCount(offer.Title)
	offer.PricePerUnit = PricePerUnit(offer.Price, offer.PackCount)
}
