package forecasting

import "time"

// growthRatePerMonth is the deterministic consumption growth: +0.2% per
// month of age.
const growthRatePerMonth = 0.002

// monthlyFactors is the calendar-month seasonal multiplier table. Winter
// months run slightly hotter (more indoor time, more changes), summer
// slightly cooler.
var monthlyFactors = [13]float64{
	0,    // unused, months are 1-indexed
	1.04, // January
	1.03, // February
	1.01, // March
	1.00, // April
	0.98, // May
	0.96, // June
	0.95, // July
	0.95, // August
	0.98, // September
	1.00, // October
	1.02, // November
	1.05, // December
}

// GrowthFactor returns the age-driven multiplicative regressor
func GrowthFactor(ageMonths int) float64 {
	if ageMonths < 0 {
		ageMonths = 0
	}
	return 1 + growthRatePerMonth*float64(ageMonths)
}

// SeasonalFactor returns the calendar-month multiplicative regressor
func SeasonalFactor(month time.Month) float64 {
	return monthlyFactors[int(month)]
}

// RegressorsFor computes both regressors for a date given the child's birth
// date, for history and pre-computed future days alike.
func RegressorsFor(birthDate, date time.Time) (growth, seasonal float64) {
	months := (date.Year()-birthDate.Year())*12 + int(date.Month()) - int(birthDate.Month())
	if date.Day() < birthDate.Day() {
		months--
	}
	return GrowthFactor(months), SeasonalFactor(date.Month())
}
