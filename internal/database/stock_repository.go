package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/quantinsight/quantinsight/internal/models"
)

const searchLimit = 20

// StockRepository manages the stock catalogue and user follows.
type StockRepository struct {
	db *sql.DB
}

func NewStockRepository(db *sql.DB) *StockRepository {
	return &StockRepository{db: db}
}

// Upsert inserts the stock or refreshes its name, returning the stored row.
func (r *StockRepository) Upsert(ctx context.Context, symbol, name string) (*models.Stock, error) {
	query := `
		INSERT INTO stocks (symbol, name) VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET name = CASE WHEN EXCLUDED.name = '' THEN stocks.name ELSE EXCLUDED.name END
		RETURNING id, symbol, name
	`
	var s models.Stock
	if err := r.db.QueryRowContext(ctx, query, strings.ToUpper(symbol), name).Scan(&s.ID, &s.Symbol, &s.Name); err != nil {
		return nil, fmt.Errorf("failed to upsert stock: %w", err)
	}
	return &s, nil
}

func (r *StockRepository) GetBySymbol(ctx context.Context, symbol string) (*models.Stock, error) {
	var s models.Stock
	err := r.db.QueryRowContext(ctx, `SELECT id, symbol, name FROM stocks WHERE symbol = $1`, strings.ToUpper(symbol)).
		Scan(&s.ID, &s.Symbol, &s.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return &s, nil
}

// Search matches the query against symbol or name, case-insensitively.
func (r *StockRepository) Search(ctx context.Context, q string) ([]models.Stock, error) {
	pattern := "%" + likeEscape(q) + "%"
	return r.list(ctx, `
		SELECT id, symbol, name FROM stocks
		WHERE symbol ILIKE $1 OR name ILIKE $1
		ORDER BY symbol
		LIMIT $2
	`, pattern, searchLimit)
}

// FindSymbolByName returns the first stock whose name contains name, or ""
// when none does.
func (r *StockRepository) FindSymbolByName(ctx context.Context, name string) (string, error) {
	var symbol string
	err := r.db.QueryRowContext(ctx,
		`SELECT symbol FROM stocks WHERE name ILIKE $1 ORDER BY LENGTH(name), symbol LIMIT 1`,
		"%"+likeEscape(name)+"%",
	).Scan(&symbol)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find symbol: %w", err)
	}
	return symbol, nil
}

// Follow links the stock to the user. Unknown symbols return ErrNotFound and
// repeated follows return ErrAlreadyFollowed.
func (r *StockRepository) Follow(ctx context.Context, userID, symbol string) (*models.Stock, error) {
	stock, err := r.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO user_stocks (user_id, stock_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, stock.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to follow stock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrAlreadyFollowed
	}
	return stock, nil
}

// Unfollow removes the link, returning ErrNotFollowed when there was none.
func (r *StockRepository) Unfollow(ctx context.Context, userID, symbol string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM user_stocks us
		USING stocks s
		WHERE us.stock_id = s.id AND us.user_id = $1 AND s.symbol = $2
	`, userID, strings.ToUpper(symbol))
	if err != nil {
		return fmt.Errorf("failed to unfollow stock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFollowed
	}
	return nil
}

// Followed lists the user's stocks in the order they were followed.
func (r *StockRepository) Followed(ctx context.Context, userID string) ([]models.Stock, error) {
	return r.list(ctx, `
		SELECT s.id, s.symbol, s.name
		FROM stocks s JOIN user_stocks us ON us.stock_id = s.id
		WHERE us.user_id = $1
		ORDER BY us.created_at, s.symbol
	`, userID)
}

// FollowedSymbols is Followed reduced to symbols.
func (r *StockRepository) FollowedSymbols(ctx context.Context, userID string) ([]string, error) {
	stocks, err := r.Followed(ctx, userID)
	if err != nil {
		return nil, err
	}
	return symbols(stocks), nil
}

// AllFollowedSymbols returns up to limit symbols followed by any user, most
// followed first.
func (r *StockRepository) AllFollowedSymbols(ctx context.Context, limit int) ([]string, error) {
	stocks, err := r.list(ctx, `
		SELECT s.id, s.symbol, s.name
		FROM stocks s JOIN user_stocks us ON us.stock_id = s.id
		GROUP BY s.id, s.symbol, s.name
		ORDER BY COUNT(*) DESC, s.symbol
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return symbols(stocks), nil
}

// SeedPopular makes sure every popular stock exists in the catalogue.
func (r *StockRepository) SeedPopular(ctx context.Context) ([]models.Stock, error) {
	out := make([]models.Stock, 0, len(models.PopularStocks))
	for _, p := range models.PopularStocks {
		s, err := r.Upsert(ctx, p.Symbol, p.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *StockRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Stock, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	stocks := []models.Stock{}
	for rows.Next() {
		var s models.Stock
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

func symbols(stocks []models.Stock) []string {
	out := make([]string, len(stocks))
	for i, s := range stocks {
		out[i] = s.Symbol
	}
	return out
}

func likeEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
