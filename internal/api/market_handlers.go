package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
)

const (
	maxBatchSymbols    = 50
	maxFollowedQuotes  = 30
	maxPrefetchSymbols = 100
	defaultNewsLimit   = 10
	maxNewsLimit       = 50
	prefetchTimeout    = 2 * time.Minute
)

// MarketHandler serves quotes, history, company data and news.
type MarketHandler struct {
	market MarketService
	news   NewsService
	stocks StockStore
	logger *slog.Logger
}

func NewMarketHandler(market MarketService, news NewsService, stocks StockStore, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{market: market, news: news, stocks: stocks, logger: logger}
}

// Quote handles GET /api/market/quote/{symbol}
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	quote, err := h.market.Quote(r.Context(), symbol)
	if err != nil {
		h.marketError(w, symbol, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, quote)
}

// Quotes handles POST /api/market/quotes
func (h *MarketHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	var req SymbolsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if len(req.Symbols) > maxBatchSymbols {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Maximum %d symbols per request", maxBatchSymbols))
		return
	}
	if !validRequest(w, &req) {
		return
	}
	h.batch(w, r, normalizeSymbols(req.Symbols))
}

// Followed handles GET /api/market/followed
func (h *MarketHandler) Followed(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	symbols, err := h.stocks.FollowedSymbols(r.Context(), claims.UserID)
	if err != nil {
		serverError(w, h.logger, "failed to load followed symbols", err)
		return
	}
	if len(symbols) == 0 {
		writeJSON(w, h.logger, http.StatusOK, map[string]models.Quote{})
		return
	}
	if len(symbols) > maxFollowedQuotes {
		symbols = symbols[:maxFollowedQuotes]
	}
	h.batch(w, r, symbols)
}

func (h *MarketHandler) batch(w http.ResponseWriter, r *http.Request, symbols []string) {
	quotes, err := h.market.BatchQuotes(r.Context(), symbols)
	if err != nil {
		serverError(w, h.logger, "batch quote failed", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, quotes)
}

// History handles GET /api/market/history/{symbol}?period=1d|1mo
func (h *MarketHandler) History(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	window := marketdata.Intraday
	switch period := r.URL.Query().Get("period"); period {
	case "", "1d":
	case "1mo", "30d":
		window = marketdata.Month
	default:
		writeError(w, http.StatusBadRequest, "Invalid period: "+period)
		return
	}

	points, err := h.market.History(r.Context(), symbol, window)
	if err != nil {
		h.marketError(w, symbol, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"symbol": symbol,
		"period": window.String(),
		"data":   points,
	})
}

// Search handles GET /api/market/search?q=
func (h *MarketHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	results, err := h.market.Search(r.Context(), q)
	if err != nil {
		serverError(w, h.logger, "symbol search failed", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"query": q, "results": results})
}

// Summary handles GET /api/market/summary
func (h *MarketHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.market.MarketSummary(r.Context())
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) || errors.Is(err, marketdata.ErrRateLimited) {
			writeError(w, http.StatusServiceUnavailable, "Market data unavailable")
			return
		}
		serverError(w, h.logger, "market summary failed", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, summary)
}

// Company handles GET /api/market/company/{symbol}
func (h *MarketHandler) Company(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	profile, err := h.market.Profile(r.Context(), symbol)
	if err != nil {
		h.marketError(w, symbol, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, profile)
}

// CacheStats handles GET /api/market/cache-stats
func (h *MarketHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.market.CacheStats(r.Context()))
}

// Prefetch handles POST /api/market/prefetch. An empty body warms the
// caller's followed stocks. Warming runs after the response is sent.
func (h *MarketHandler) Prefetch(w http.ResponseWriter, r *http.Request) {
	var req PrefetchRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	if len(req.Symbols) > maxPrefetchSymbols {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Maximum %d symbols per request", maxPrefetchSymbols))
		return
	}
	if !validRequest(w, &req) {
		return
	}

	symbols := normalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		claims, _ := auth.UserFromContext(r.Context())
		followed, err := h.stocks.FollowedSymbols(r.Context(), claims.UserID)
		if err != nil {
			serverError(w, h.logger, "failed to load followed symbols", err)
			return
		}
		symbols = followed
	}
	if len(symbols) == 0 {
		symbols = models.PopularSymbols()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), prefetchTimeout)
	go func() {
		defer cancel()
		n, err := h.market.Prefetch(ctx, symbols)
		if err != nil {
			h.logger.Warn("cache warming incomplete", "error", err, "warmed", n)
			return
		}
		h.logger.Info("cache warmed", "symbols", n)
	}()

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"status":  "Cache warming initiated",
		"symbols": len(symbols),
	})
}

// News handles GET /api/news/{symbol}?limit=
func (h *MarketHandler) News(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	limit := defaultNewsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxNewsLimit)
	}

	articles, err := h.news.Fetch(r.Context(), symbol, limit)
	if err != nil {
		serverError(w, h.logger, "news fetch failed", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"symbol":   symbol,
		"count":    len(articles),
		"articles": articles,
	})
}

// marketError maps service errors to responses. A chain that failed for
// mixed reasons carries ErrNoData and answers 404 even if one provider was
// rate limited.
func (h *MarketHandler) marketError(w http.ResponseWriter, symbol string, err error) {
	switch {
	case errors.Is(err, marketdata.ErrNoData):
		writeError(w, http.StatusNotFound, "No data found for symbol "+symbol)
	case errors.Is(err, marketdata.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Market data providers are rate limited, try again shortly")
	default:
		serverError(w, h.logger, "market data request failed", err)
	}
}

func normalizeSymbols(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
