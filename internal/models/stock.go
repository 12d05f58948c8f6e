package models

// Stock is a tradable symbol users can follow.
type Stock struct {
	ID     int    `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// PopularStocks seeds the catalogue and the cache prefetch list.
var PopularStocks = []Stock{
	{Symbol: "AAPL", Name: "Apple Inc."},
	{Symbol: "MSFT", Name: "Microsoft Corporation"},
	{Symbol: "AMZN", Name: "Amazon.com Inc."},
	{Symbol: "GOOGL", Name: "Alphabet Inc."},
	{Symbol: "TSLA", Name: "Tesla Inc."},
	{Symbol: "META", Name: "Meta Platforms Inc."},
	{Symbol: "NVDA", Name: "NVIDIA Corporation"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co."},
	{Symbol: "BRK.B", Name: "Berkshire Hathaway Inc."},
	{Symbol: "NFLX", Name: "Netflix Inc."},
}

// PopularSymbols returns the symbols of PopularStocks.
func PopularSymbols() []string {
	out := make([]string, len(PopularStocks))
	for i, s := range PopularStocks {
		out[i] = s.Symbol
	}
	return out
}
