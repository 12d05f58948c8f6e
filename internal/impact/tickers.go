package impact

import (
	"regexp"
	"strings"
)

const maxTickers = 5

// Company is a stock mentioned in an article.
type Company struct {
	Ticker string
	Name   string
}

// companyNames is checked in order; longer names precede their prefixes.
var companyNames = []struct {
	match string
	Company
}{
	{"apple", Company{"AAPL", "Apple Inc."}},
	{"alphabet", Company{"GOOGL", "Alphabet Inc."}},
	{"google", Company{"GOOGL", "Alphabet Inc."}},
	{"microsoft", Company{"MSFT", "Microsoft Corporation"}},
	{"amazon", Company{"AMZN", "Amazon.com Inc."}},
	{"tesla", Company{"TSLA", "Tesla Inc."}},
	{"facebook", Company{"META", "Meta Platforms Inc."}},
	{"meta", Company{"META", "Meta Platforms Inc."}},
	{"netflix", Company{"NFLX", "Netflix Inc."}},
	{"nvidia", Company{"NVDA", "NVIDIA Corporation"}},
	{"intel", Company{"INTC", "Intel Corporation"}},
	{"amd", Company{"AMD", "Advanced Micro Devices Inc."}},
	{"jp morgan", Company{"JPM", "JPMorgan Chase & Co."}},
	{"jpmorgan", Company{"JPM", "JPMorgan Chase & Co."}},
	{"goldman sachs", Company{"GS", "Goldman Sachs Group Inc."}},
	{"goldman", Company{"GS", "Goldman Sachs Group Inc."}},
	{"berkshire", Company{"BRK.B", "Berkshire Hathaway Inc."}},
	{"walmart", Company{"WMT", "Walmart Inc."}},
	{"disney", Company{"DIS", "Walt Disney Company"}},
	{"coca-cola", Company{"KO", "Coca-Cola Company"}},
	{"pepsi", Company{"PEP", "PepsiCo Inc."}},
	{"johnson & johnson", Company{"JNJ", "Johnson & Johnson"}},
	{"pfizer", Company{"PFE", "Pfizer Inc."}},
	{"moderna", Company{"MRNA", "Moderna Inc."}},
	{"visa", Company{"V", "Visa Inc."}},
	{"mastercard", Company{"MA", "Mastercard Inc."}},
	{"paypal", Company{"PYPL", "PayPal Holdings Inc."}},
	{"square", Company{"SQ", "Block Inc."}},
	{"spotify", Company{"SPOT", "Spotify Technology"}},
	{"uber", Company{"UBER", "Uber Technologies Inc."}},
	{"lyft", Company{"LYFT", "Lyft Inc."}},
	{"airbnb", Company{"ABNB", "Airbnb Inc."}},
	{"boeing", Company{"BA", "Boeing Company"}},
	{"lockheed", Company{"LMT", "Lockheed Martin"}},
	{"general motors", Company{"GM", "General Motors"}},
	{"ford", Company{"F", "Ford Motor Company"}},
	{"exxon", Company{"XOM", "Exxon Mobil Corporation"}},
	{"chevron", Company{"CVX", "Chevron Corporation"}},
	{"shell", Company{"SHEL", "Shell plc"}},
	{"bp", Company{"BP", "BP plc"}},
}

var tickerCandidate = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

// wordBoundaryNames holds whole-word matchers for names short enough to occur
// inside other words ("bp", "amd", "meta", "ford").
var wordBoundaryNames = map[string]*regexp.Regexp{}

func init() {
	for _, c := range companyNames {
		if len(c.match) <= 5 {
			wordBoundaryNames[c.match] = regexp.MustCompile(`\b` + regexp.QuoteMeta(c.match) + `\b`)
		}
	}
}

var stopWords = map[string]bool{
	"I": true, "A": true, "AN": true, "THE": true, "FOR": true, "AND": true, "OR": true, "BUT": true,
	"CEO": true, "CFO": true, "CTO": true, "US": true, "USA": true, "UK": true, "EU": true,
	"SEC": true, "FDA": true, "FTC": true, "DOJ": true, "IPO": true, "ETF": true, "EPS": true,
	"GDP": true, "CPI": true, "AI": true, "NYSE": true, "ET": true, "EST": true, "PM": true, "AM": true,
	"Q": true, "TV": true, "IT": true, "OK": true, "NEW": true, "INC": true, "LLC": true, "CORP": true,
}

// ExtractTickers finds up to five stocks in text: known company names first,
// then the first capitalized ticker-like words that are not stop words.
func ExtractTickers(text string) []Company {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var found []Company

	for _, c := range companyNames {
		if seen[c.Ticker] {
			continue
		}
		matched := strings.Contains(lower, c.match)
		if re, ok := wordBoundaryNames[c.match]; ok {
			matched = re.MatchString(lower)
		}
		if !matched {
			continue
		}
		seen[c.Ticker] = true
		found = append(found, c.Company)
		if len(found) >= maxTickers {
			return found
		}
	}

	for _, t := range tickerCandidate.FindAllString(text, -1) {
		if stopWords[t] || seen[t] {
			continue
		}
		seen[t] = true
		found = append(found, Company{Ticker: t, Name: t})
		if len(found) >= maxTickers {
			break
		}
	}
	return found
}
