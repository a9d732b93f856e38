package anomaly

import "math"

// mean returns the arithmetic mean of values, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev returns the population standard deviation of values.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// zScore returns how many standard deviations value sits from the mean of
// the prior values. The caller must ensure sd > 0.
func zScore(value, m, sd float64) float64 {
	return (value - m) / sd
}

// slope returns the least-squares slope of values against their index
// (0..n-1). Values must be in chronological order.
func slope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// normalizedSlope returns the least-squares slope divided by the segment
// mean, making trend magnitudes comparable across metrics of different
// scales. A zero mean yields 0; direction is meaningless against it.
func normalizedSlope(values []float64) float64 {
	m := mean(values)
	if m == 0 {
		return 0
	}
	return slope(values) / m
}
