package forecast

import "time"

// sizeChangeBucket maps an age range in months to a base size-change
// probability and expected lead time.
type sizeChangeBucket struct {
	minAgeMonths  int
	maxAgeMonths  int
	probability   float64
	leadTimeDays  int
}

// sizeChangeBuckets reflects typical diaper size transition ages. Buckets
// are checked in order; the first match wins.
var sizeChangeBuckets = []sizeChangeBucket{
	{minAgeMonths: 0, maxAgeMonths: 3, probability: 0.35, leadTimeDays: 21},
	{minAgeMonths: 3, maxAgeMonths: 6, probability: 0.30, leadTimeDays: 30},
	{minAgeMonths: 6, maxAgeMonths: 12, probability: 0.20, leadTimeDays: 45},
	{minAgeMonths: 12, maxAgeMonths: 24, probability: 0.12, leadTimeDays: 60},
	{minAgeMonths: 24, maxAgeMonths: 1<<31 - 1, probability: 0.05, leadTimeDays: 90},
}

// HighUsageRateThreshold is the trailing daily rate above which a size
// change becomes more likely and nearer.
const HighUsageRateThreshold = 8.0

// sizeChangeProbabilityFloor hides estimates that are effectively noise
const sizeChangeProbabilityFloor = 0.1

// EstimateSizeChange derives the optional size-change estimate from the
// child's age bucket, boosted 1.5x and shortened 30% under heavy usage.
// It returns nil when the probability does not clear the floor.
func EstimateSizeChange(ageMonths int, trailingDailyRate float64, asOf time.Time) *SizeChangeEstimate {
	var bucket *sizeChangeBucket
	for i := range sizeChangeBuckets {
		b := &sizeChangeBuckets[i]
		if ageMonths >= b.minAgeMonths && ageMonths < b.maxAgeMonths {
			bucket = b
			break
		}
	}
	if bucket == nil {
		return nil
	}

	probability := bucket.probability
	leadDays := float64(bucket.leadTimeDays)
	if trailingDailyRate > HighUsageRateThreshold {
		probability *= 1.5
		leadDays *= 0.7
	}
	if probability > 1 {
		probability = 1
	}
	if probability <= sizeChangeProbabilityFloor {
		return nil
	}

	return &SizeChangeEstimate{
		Probability:   probability,
		EstimatedDate: asOf.AddDate(0, 0, int(leadDays)),
	}
}
