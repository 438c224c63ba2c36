package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradeConfidence(t *testing.T) {
	tests := []struct {
		name    string
		samples int
		mae     float64
		r2      float64
		want    ConfidenceGrade
	}{
		{"below minimum history", 10, 0.5, 0.9, ConfidenceVeryLow},
		{"long history, tight fit", 40, 1.0, 0.85, ConfidenceVeryHigh},
		{"long history, poor fit", 40, 4.0, 0.3, ConfidenceLow},
		{"long history, decent fit", 35, 2.0, 0.7, ConfidenceHigh},
		{"short history, decent fit", 20, 2.0, 0.7, ConfidenceMedium},
		{"conservative defaults", 14, 0.5, 0.5, ConfidenceMedium},
		{"mae boundary is exclusive", 40, 1.5, 0.9, ConfidenceHigh},
		{"r2 boundary is exclusive", 40, 1.0, 0.8, ConfidenceHigh},
		{"good r2 cannot rescue bad mae", 25, 5.0, 0.9, ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GradeConfidence(tt.samples, tt.mae, tt.r2)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.IsValid())
		})
	}
}

func TestConfidenceGradeIsValid(t *testing.T) {
	for _, g := range []ConfidenceGrade{ConfidenceVeryLow, ConfidenceLow, ConfidenceMedium, ConfidenceHigh, ConfidenceVeryHigh} {
		assert.True(t, g.IsValid(), g)
	}
	assert.False(t, ConfidenceGrade("EXTREME").IsValid())
	assert.False(t, ConfidenceGrade("").IsValid())
}
