package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/database"
)

// StockHandler manages the stocks a user follows.
type StockHandler struct {
	stocks StockStore
	logger *slog.Logger
}

func NewStockHandler(stocks StockStore, logger *slog.Logger) *StockHandler {
	return &StockHandler{stocks: stocks, logger: logger}
}

// List handles GET /user/stocks
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	stocks, err := h.stocks.Followed(r.Context(), claims.UserID)
	if err != nil {
		serverError(w, h.logger, "failed to list followed stocks", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stocks)
}

// Follow handles POST /user/stocks. The symbol comes from the query
// string or a {"symbol": ...} body.
func (h *StockHandler) Follow(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		var req FollowRequest
		if !bind(w, r, &req) {
			return
		}
		symbol = req.Symbol
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	claims, _ := auth.UserFromContext(r.Context())
	_, err := h.stocks.Follow(r.Context(), claims.UserID, symbol)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "Stock not found")
	case errors.Is(err, database.ErrAlreadyFollowed):
		writeError(w, http.StatusBadRequest, "Stock already followed")
	case err != nil:
		serverError(w, h.logger, "failed to follow stock", err)
	default:
		h.logger.Info("stock followed", "user_id", claims.UserID, "symbol", symbol)
		writeJSON(w, h.logger, http.StatusOK, message(fmt.Sprintf("Stock %s added.", symbol)))
	}
}

// Unfollow handles DELETE /user/stocks/{symbol}
func (h *StockHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	claims, _ := auth.UserFromContext(r.Context())
	err := h.stocks.Unfollow(r.Context(), claims.UserID, symbol)
	switch {
	case errors.Is(err, database.ErrNotFollowed):
		writeError(w, http.StatusNotFound, "Stock not followed")
	case err != nil:
		serverError(w, h.logger, "failed to unfollow stock", err)
	default:
		writeJSON(w, h.logger, http.StatusOK, message(fmt.Sprintf("Stock %s removed.", symbol)))
	}
}

// Search handles GET /user/stocks/search?q=
func (h *StockHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	stocks, err := h.stocks.Search(r.Context(), q)
	if err != nil {
		serverError(w, h.logger, "failed to search stocks", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stocks)
}

// InitializePopular handles POST /user/stocks/initialize-popular
func (h *StockHandler) InitializePopular(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.stocks.SeedPopular(r.Context())
	if err != nil {
		serverError(w, h.logger, "failed to seed popular stocks", err)
		return
	}
	h.logger.Info("popular stocks seeded", "count", len(stocks))
	writeJSON(w, h.logger, http.StatusOK, message("Popular stocks initialized/updated successfully."))
}
