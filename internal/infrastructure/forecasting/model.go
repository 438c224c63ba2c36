// Package forecasting implements the additive consumption model: a linear
// trend plus weekly and yearly Fourier seasonality, fitted by regularized
// least squares, with deterministic growth/seasonal regressors applied
// multiplicatively. The fit runs on aggregated daily counts; callers own
// aggregation and the regressor tables.
package forecasting

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

const (
	weeklyPeriod  = 7.0
	yearlyPeriod  = 365.25
	weeklyOrder   = 2
	yearlyOrder   = 2
	// ridge keeps the normal equations solvable on short histories
	ridge = 1e-4
)

// Observation is one daily training point with its deterministic regressors
type Observation struct {
	Date     time.Time
	Count    float64
	// Growth is the age-driven multiplicative regressor
	Growth float64
	// Seasonal is the calendar-month multiplicative regressor
	Seasonal float64
}

// Model is a fitted additive model. It is immutable after Fit.
type Model struct {
	origin time.Time
	coef   []float64
}

// featureCount is intercept + trend + weekly and yearly Fourier pairs
const featureCount = 2 + 2*weeklyOrder + 2*yearlyOrder

// features builds the design row for a day offset from the training origin
func features(dayOffset float64) []float64 {
	row := make([]float64, 0, featureCount)
	row = append(row, 1, dayOffset)
	for k := 1; k <= weeklyOrder; k++ {
		angle := 2 * math.Pi * float64(k) * dayOffset / weeklyPeriod
		row = append(row, math.Sin(angle), math.Cos(angle))
	}
	for k := 1; k <= yearlyOrder; k++ {
		angle := 2 * math.Pi * float64(k) * dayOffset / yearlyPeriod
		row = append(row, math.Sin(angle), math.Cos(angle))
	}
	return row
}

// Fit trains the model on daily observations. Counts are divided by their
// multiplicative regressors before the additive fit, so seasonality scales
// with the deterministic effects rather than adding to them.
func Fit(obs []Observation) (*Model, error) {
	n := len(obs)
	if n < featureCount {
		return nil, fmt.Errorf("forecasting: need at least %d observations, got %d", featureCount, n)
	}

	origin := obs[0].Date
	x := mat.NewDense(n, featureCount, nil)
	y := mat.NewVecDense(n, nil)
	for i, o := range obs {
		offset := o.Date.Sub(origin).Hours() / 24
		x.SetRow(i, features(offset))
		scale := o.Growth * o.Seasonal
		if scale <= 0 {
			scale = 1
		}
		y.SetVec(i, o.Count/scale)
	}

	// Normal equations with a ridge term on the diagonal
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 0; i < featureCount; i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridge)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("forecasting: least squares solve: %w", err)
	}

	coef := make([]float64, featureCount)
	copy(coef, beta.RawVector().Data)
	return &Model{origin: origin, coef: coef}, nil
}

// Predict returns the expected daily count for a date given its regressors.
// Predictions are clamped at zero; consumption is never negative.
func (m *Model) Predict(date time.Time, growth, seasonal float64) float64 {
	offset := date.Sub(m.origin).Hours() / 24
	row := features(offset)
	var v float64
	for i, c := range m.coef {
		v += c * row[i]
	}
	scale := growth * seasonal
	if scale <= 0 {
		scale = 1
	}
	v *= scale
	if v < 0 {
		return 0
	}
	return v
}

// Forecast predicts the next horizon days starting the day after `from`,
// using regressors pre-computed for every future day.
func (m *Model) Forecast(from time.Time, horizonDays int, regressors func(time.Time) (growth, seasonal float64)) []float64 {
	out := make([]float64, horizonDays)
	for i := 0; i < horizonDays; i++ {
		d := from.AddDate(0, 0, i+1)
		g, s := regressors(d)
		out[i] = m.Predict(d, g, s)
	}
	return out
}

// Evaluate scores the model against held-out observations, returning MAE and
// R-squared clamped at zero.
func Evaluate(m *Model, holdout []Observation) (mae, r2 float64) {
	if len(holdout) == 0 {
		return 0, 0
	}

	var absErr, mean float64
	for _, o := range holdout {
		mean += o.Count
	}
	mean /= float64(len(holdout))

	var ssRes, ssTot float64
	for _, o := range holdout {
		pred := m.Predict(o.Date, o.Growth, o.Seasonal)
		diff := o.Count - pred
		absErr += math.Abs(diff)
		ssRes += diff * diff
		ssTot += (o.Count - mean) * (o.Count - mean)
	}

	mae = absErr / float64(len(holdout))
	if ssTot == 0 {
		return mae, 0
	}
	r2 = 1 - ssRes/ssTot
	if r2 < 0 {
		r2 = 0
	}
	return mae, r2
}
