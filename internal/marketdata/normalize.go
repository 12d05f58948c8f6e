package marketdata

import (
	"math"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/models"
)

// NormalizeQuote brings a provider quote into the shape every caller expects:
// uppercase symbol, two-decimal prices and a populated timestamp and provider.
func NormalizeQuote(q models.Quote) models.Quote {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))

	if q.Change == 0 && q.ChangePercent == 0 && q.Open > 0 && q.Price != q.Open {
		q.Change = q.Price - q.Open
		q.ChangePercent = q.Change / q.Open * 100
	}

	q.Price = round2(q.Price)
	q.Open = round2(q.Open)
	q.High = round2(q.High)
	q.Low = round2(q.Low)
	q.Change = round2(q.Change)
	q.ChangePercent = round2(q.ChangePercent)
	q.PreviousClose = round2(q.PreviousClose)

	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}
	if q.Provider == "" {
		q.Provider = "unknown"
	}
	return q
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
