package analytics

import "math"

// Growth is the percent change from previous to current, one decimal.
// A zero baseline yields 0, not an infinite rate; callers rely on that.
func Growth(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return round(((current-previous)/previous)*100, 1)
}

// RateDelta compares two values that are already percentages.
func RateDelta(current, previous float64) float64 {
	return round(current-previous, 1)
}

// Percentage of part over total with two decimals. An empty total counts as 1.
func Percentage(part, total int64) float64 {
	if total == 0 {
		total = 1
	}
	return round(float64(part)/float64(total)*100, 2)
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
