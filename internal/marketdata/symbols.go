package marketdata

import (
	"regexp"
	"strings"
)

var symbolCorrections = map[string]string{
	"TESLA":      "TSLA",
	"APPLE":      "AAPL",
	"GOOGLE":     "GOOGL",
	"ALPHABET":   "GOOGL",
	"MICROSOFT":  "MSFT",
	"AMAZON":     "AMZN",
	"FACEBOOK":   "META",
	"NETFLIX":    "NFLX",
	"NVIDIA":     "NVDA",
	"ADOBE":      "ADBE",
	"SALESFORCE": "CRM",
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-^=]{0,14}$`)

// CorrectSymbol maps common company names to their tickers and uppercases
// everything else.
func CorrectSymbol(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if sym, ok := symbolCorrections[upper]; ok {
		return sym
	}
	return upper
}

// NormalizeSymbol corrects s and rejects strings that cannot be tickers.
func NormalizeSymbol(s string) (string, error) {
	sym := CorrectSymbol(s)
	if !symbolPattern.MatchString(sym) {
		return "", ErrInvalidSymbol
	}
	return sym, nil
}

// NormalizeSymbols normalizes and dedupes symbols, keeping the first
// occurrence order. Invalid entries are dropped.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym, err := NormalizeSymbol(s)
		if err != nil {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
