package marketdata

import (
	"math"

	"github.com/quantinsight/quantinsight/internal/models"
)

// ComputeStats derives the 30-day analytics used by the assistant's analysis
// tool. closes must be ordered oldest first. A zero current uses the last close.
func ComputeStats(closes []float64, current float64) (models.PriceStats, bool) {
	if len(closes) == 0 {
		return models.PriceStats{}, false
	}
	if current <= 0 {
		current = closes[len(closes)-1]
	}

	minP, maxP, sum := closes[0], closes[0], 0.0
	for _, c := range closes {
		minP = math.Min(minP, c)
		maxP = math.Max(maxP, c)
		sum += c
	}
	avg := sum / float64(len(closes))

	var variance float64
	for _, c := range closes {
		variance += (c - avg) * (c - avg)
	}
	volatility := math.Sqrt(variance / float64(len(closes)))

	stats := models.PriceStats{
		Current:    current,
		Min:        minP,
		Max:        maxP,
		Average:    avg,
		Volatility: volatility,
		DataPoints: len(closes),
		Trend:      shortTermTrend(closes),
	}
	if avg > 0 {
		stats.VolatilityPercent = volatility / avg * 100
		stats.FromAverage = (current - avg) / avg * 100
	}
	switch {
	case stats.VolatilityPercent < 2:
		stats.VolatilityLevel = "Low"
	case stats.VolatilityPercent < 4:
		stats.VolatilityLevel = "Moderate"
	default:
		stats.VolatilityLevel = "High"
	}

	if first := closes[0]; first > 0 {
		stats.Return = (current - first) / first * 100
	}
	if maxP > 0 {
		stats.FromHigh = (current - maxP) / maxP * 100
	}
	if minP > 0 {
		stats.FromLow = (current - minP) / minP * 100
	}

	stats.RangePosition = 50
	if maxP > minP {
		stats.RangePosition = (current - minP) / (maxP - minP) * 100
	}
	stats.RangeDescription = rangeDescription(stats.RangePosition)
	return stats, true
}

// shortTermTrend compares the mean of the last three of the final five closes
// with the mean of the first three.
func shortTermTrend(closes []float64) string {
	if len(closes) < 5 {
		return "Sideways"
	}
	recent := closes[len(closes)-5:]
	older := mean(recent[:3])
	newer := mean(recent[2:])
	switch {
	case newer > older*1.01:
		return "Upward"
	case newer < older*0.99:
		return "Downward"
	default:
		return "Sideways"
	}
}

func rangeDescription(pos float64) string {
	switch {
	case pos < 25:
		return "Near Lows"
	case pos < 45:
		return "Lower Half"
	case pos < 65:
		return "Middle Range"
	case pos < 85:
		return "Upper Half"
	default:
		return "Near Highs"
	}
}

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
