package news

import (
	"net/http"

	"github.com/quantinsight/quantinsight/internal/config"
	"github.com/quantinsight/quantinsight/internal/marketdata"
)

// BuildSources returns Yahoo plus every keyed source that has a key.
func BuildSources(cfg config.ProviderConfig, client *http.Client) []Source {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	sources := []Source{NewYahooSource(marketdata.NewYahoo(client, ""))}
	if cfg.FinnhubKey != "" {
		sources = append(sources, NewFinnhubSource(marketdata.NewFinnhub(cfg.FinnhubKey, client, "").API()))
	}
	if cfg.AlphaVantageKey != "" {
		sources = append(sources, NewAlphaVantageSource(cfg.AlphaVantageKey, client, ""))
	}
	if cfg.PolygonKey != "" {
		sources = append(sources, NewPolygonSource(cfg.PolygonKey, client, ""))
	}
	if cfg.NewsAPIKey != "" {
		sources = append(sources, NewNewsAPISource(cfg.NewsAPIKey, client, ""))
	}
	return sources
}
