// Package tax computes Canadian sales tax (GST plus PST or HST) by province.
package tax

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rate holds the tax components for one province. PST carries either the
// provincial sales tax or the provincial portion of HST.
type Rate struct {
	GST decimal.Decimal
	PST decimal.Decimal
}

// Combined returns the total tax rate (GST + PST/HST portion)
func (r Rate) Combined() decimal.Decimal {
	return r.GST.Add(r.PST)
}

// DefaultProvince is used when a province code is not recognized.
// Falling back instead of failing matches the billing behaviour the rest of
// the system was built against; callers should log when the fallback fires.
const DefaultProvince = "ON"

// rates is the fixed per-province tax table (13 provinces and territories)
var rates = map[string]Rate{
	"AB": {GST: decimal.NewFromFloat(0.05), PST: decimal.Zero},
	"BC": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.07)},
	"MB": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.07)},
	"NB": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.10)},
	"NL": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.10)},
	"NS": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.10)},
	"NT": {GST: decimal.NewFromFloat(0.05), PST: decimal.Zero},
	"NU": {GST: decimal.NewFromFloat(0.05), PST: decimal.Zero},
	"ON": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.08)},
	"PE": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.10)},
	"QC": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.09975)},
	"SK": {GST: decimal.NewFromFloat(0.05), PST: decimal.NewFromFloat(0.06)},
	"YT": {GST: decimal.NewFromFloat(0.05), PST: decimal.Zero},
}

// Calculator performs province-keyed tax lookups and tax computation
type Calculator struct{}

// NewCalculator creates a new tax Calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// RateFor returns the tax rate for a province code. Unrecognized codes fall
// back to DefaultProvince; the second return reports whether the code was
// recognized.
func (c *Calculator) RateFor(province string) (Rate, bool) {
	code := strings.ToUpper(strings.TrimSpace(province))
	if r, ok := rates[code]; ok {
		return r, true
	}
	return rates[DefaultProvince], false
}

// Tax computes round(subtotal * (gst + pst), 2) half-up for the province
func (c *Calculator) Tax(subtotal decimal.Decimal, province string) decimal.Decimal {
	r, _ := c.RateFor(province)
	return subtotal.Mul(r.Combined()).Round(2)
}
