package forecasting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var trainStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

func flatObservations(days int, count float64) []Observation {
	obs := make([]Observation, days)
	for i := range obs {
		obs[i] = Observation{
			Date:     trainStart.AddDate(0, 0, i),
			Count:    count,
			Growth:   1,
			Seasonal: 1,
		}
	}
	return obs
}

// weekdays at 8 changes/day, weekends at 11
func weeklyObservations(days int) []Observation {
	obs := make([]Observation, days)
	for i := range obs {
		d := trainStart.AddDate(0, 0, i)
		count := 8.0
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			count = 11.0
		}
		obs[i] = Observation{Date: d, Count: count, Growth: 1, Seasonal: 1}
	}
	return obs
}

func TestFitRejectsShortHistory(t *testing.T) {
	_, err := Fit(flatObservations(featureCount-1, 8))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "observations")
}

func TestFitFlatSeries(t *testing.T) {
	m, err := Fit(flatObservations(28, 8))
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		d := trainStart.AddDate(0, 0, 27+i)
		assert.InDelta(t, 8.0, m.Predict(d, 1, 1), 0.5, "day %s", d.Format("2006-01-02"))
	}
}

func TestFitCapturesWeeklyPattern(t *testing.T) {
	m, err := Fit(weeklyObservations(56))
	require.NoError(t, err)

	// week 9: Saturday should forecast above the preceding Wednesday
	wednesday := trainStart.AddDate(0, 0, 58)
	saturday := trainStart.AddDate(0, 0, 61)
	require.Equal(t, time.Wednesday, wednesday.Weekday())
	require.Equal(t, time.Saturday, saturday.Weekday())

	assert.Greater(t, m.Predict(saturday, 1, 1), m.Predict(wednesday, 1, 1))
}

func TestMultiplicativeRegressors(t *testing.T) {
	obs := flatObservations(28, 10)
	for i := range obs {
		obs[i].Growth = 2 // counts were produced under doubled growth
	}
	m, err := Fit(obs)
	require.NoError(t, err)

	d := trainStart.AddDate(0, 0, 30)
	assert.InDelta(t, 10.0, m.Predict(d, 2, 1), 0.8)
	assert.InDelta(t, 5.0, m.Predict(d, 1, 1), 0.4)
}

func TestPredictTreatsNonPositiveScaleAsNeutral(t *testing.T) {
	m, err := Fit(flatObservations(28, 8))
	require.NoError(t, err)

	d := trainStart.AddDate(0, 0, 30)
	assert.Equal(t, m.Predict(d, 1, 1), m.Predict(d, 0, 1))
	assert.Equal(t, m.Predict(d, 1, 1), m.Predict(d, -1, 1))
}

func TestPredictClampsAtZero(t *testing.T) {
	obs := make([]Observation, 30)
	for i := range obs {
		obs[i] = Observation{
			Date:     trainStart.AddDate(0, 0, i),
			Count:    float64(30 - i), // steady decline toward zero
			Growth:   1,
			Seasonal: 1,
		}
	}
	m, err := Fit(obs)
	require.NoError(t, err)

	farOut := trainStart.AddDate(0, 0, 200)
	assert.Equal(t, 0.0, m.Predict(farOut, 1, 1))
}

func TestForecastHorizon(t *testing.T) {
	m, err := Fit(flatObservations(28, 8))
	require.NoError(t, err)

	from := trainStart.AddDate(0, 0, 27)
	neutral := func(time.Time) (float64, float64) { return 1, 1 }

	out := m.Forecast(from, 14, neutral)
	require.Len(t, out, 14)
	assert.InDelta(t, m.Predict(from.AddDate(0, 0, 1), 1, 1), out[0], 1e-9)
	assert.InDelta(t, m.Predict(from.AddDate(0, 0, 14), 1, 1), out[13], 1e-9)
}

func TestEvaluate(t *testing.T) {
	m, err := Fit(weeklyObservations(56))
	require.NoError(t, err)

	t.Run("empty holdout", func(t *testing.T) {
		mae, r2 := Evaluate(m, nil)
		assert.Zero(t, mae)
		assert.Zero(t, r2)
	})

	t.Run("perfect predictions score r2 of one", func(t *testing.T) {
		holdout := make([]Observation, 14)
		for i := range holdout {
			d := trainStart.AddDate(0, 0, 56+i)
			holdout[i] = Observation{
				Date:     d,
				Count:    m.Predict(d, 1, 1),
				Growth:   1,
				Seasonal: 1,
			}
		}

		mae, r2 := Evaluate(m, holdout)
		assert.InDelta(t, 0, mae, 1e-9)
		assert.InDelta(t, 1, r2, 1e-9)
	})

	t.Run("constant holdout reports zero r2", func(t *testing.T) {
		mae, r2 := Evaluate(m, flatObservations(7, 9))
		assert.Greater(t, mae, 0.0)
		assert.Zero(t, r2)
	})
}
