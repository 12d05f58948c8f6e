package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quantinsight/quantinsight/internal/agents"
	"github.com/quantinsight/quantinsight/internal/assistant"
	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/database"
	"github.com/quantinsight/quantinsight/internal/impact"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
	"github.com/quantinsight/quantinsight/internal/verification"
)

const testSecret = "test-secret"

var testAuth = auth.Config{JWTSecret: testSecret, TokenDuration: time.Hour}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tokenFor(userID, email string) string {
	token, err := auth.GenerateToken(userID, email, testSecret, time.Hour)
	if err != nil {
		panic(err)
	}
	return token
}

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	nextID int
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[string]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return database.ErrAlreadyExists
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt = time.Now()
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) update(id string, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return database.ErrNotFound
	}
	fn(u)
	return nil
}

func (f *fakeUsers) CompleteSetup(_ context.Context, id string) error {
	return f.update(id, func(u *models.User) { u.HasCompletedSetup = true })
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id, first, last string) error {
	return f.update(id, func(u *models.User) { u.FirstName, u.LastName = first, last })
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, hash string) error {
	return f.update(id, func(u *models.User) { u.HashedPassword = hash })
}

type issuedCode struct {
	userID  string
	email   string
	purpose models.VerificationPurpose
}

// fakeVerifier accepts "123456" and rejects everything else.
type fakeVerifier struct {
	mu      sync.Mutex
	issued  []issuedCode
	welcome []string
	users   *fakeUsers
}

func (f *fakeVerifier) CreateCode(_ context.Context, userID, email string, purpose models.VerificationPurpose) (*models.VerificationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, issuedCode{userID, email, purpose})
	return &models.VerificationCode{UserID: userID, Email: email, Code: "123456", Purpose: purpose}, nil
}

func (f *fakeVerifier) Verify(ctx context.Context, email, code string, purpose models.VerificationPurpose) error {
	if code != "123456" {
		return verification.ErrInvalidCode
	}
	if purpose == models.PurposeRegistration && f.users != nil {
		u, err := f.users.GetByEmail(ctx, email)
		if err == nil {
			_ = f.users.update(u.ID, func(u *models.User) { u.IsVerified = true })
		}
	}
	return nil
}

func (f *fakeVerifier) SendWelcome(_ context.Context, email, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcome = append(f.welcome, email)
}

type fakeStocks struct {
	mu       sync.Mutex
	catalog  map[string]string
	followed map[string][]string
}

func newFakeStocks() *fakeStocks {
	catalog := map[string]string{}
	for _, s := range models.PopularStocks {
		catalog[s.Symbol] = s.Name
	}
	return &fakeStocks{catalog: catalog, followed: map[string][]string{}}
}

func (f *fakeStocks) Search(_ context.Context, q string) ([]models.Stock, error) {
	var out []models.Stock
	for sym, name := range f.catalog {
		if strings.Contains(sym, strings.ToUpper(q)) {
			out = append(out, models.Stock{Symbol: sym, Name: name})
		}
	}
	return out, nil
}

func (f *fakeStocks) Follow(_ context.Context, userID, symbol string) (*models.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.catalog[symbol]
	if !ok {
		return nil, database.ErrNotFound
	}
	for _, s := range f.followed[userID] {
		if s == symbol {
			return nil, database.ErrAlreadyFollowed
		}
	}
	f.followed[userID] = append(f.followed[userID], symbol)
	return &models.Stock{Symbol: symbol, Name: name}, nil
}

func (f *fakeStocks) Unfollow(_ context.Context, userID, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.followed[userID]
	for i, s := range list {
		if s == symbol {
			f.followed[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return database.ErrNotFollowed
}

func (f *fakeStocks) Followed(ctx context.Context, userID string) ([]models.Stock, error) {
	syms, _ := f.FollowedSymbols(ctx, userID)
	out := make([]models.Stock, 0, len(syms))
	for _, s := range syms {
		out = append(out, models.Stock{Symbol: s, Name: f.catalog[s]})
	}
	return out, nil
}

func (f *fakeStocks) FollowedSymbols(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.followed[userID]...), nil
}

func (f *fakeStocks) SeedPopular(context.Context) ([]models.Stock, error) {
	return models.PopularStocks, nil
}

type fakeMarket struct {
	quotes   map[string]models.Quote
	mu       sync.Mutex
	prefetch [][]string
}

func (f *fakeMarket) Quote(_ context.Context, symbol string) (models.Quote, error) {
	q, ok := f.quotes[symbol]
	if !ok {
		return models.Quote{}, fmt.Errorf("quote %s: %w", symbol, marketdata.ErrNoData)
	}
	return q, nil
}

func (f *fakeMarket) BatchQuotes(_ context.Context, symbols []string) (map[string]models.Quote, error) {
	out := map[string]models.Quote{}
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (f *fakeMarket) History(_ context.Context, symbol string, _ marketdata.Window) ([]models.PricePoint, error) {
	if _, ok := f.quotes[symbol]; !ok {
		return nil, marketdata.ErrNoData
	}
	return []models.PricePoint{{Timestamp: 1, Price: 10}, {Timestamp: 2, Price: 11}}, nil
}

func (f *fakeMarket) Search(context.Context, string) ([]models.SearchResult, error) {
	return []models.SearchResult{{Symbol: "AAPL", Name: "Apple Inc."}}, nil
}

func (f *fakeMarket) Profile(_ context.Context, symbol string) (models.CompanyProfile, error) {
	return models.CompanyProfile{Symbol: symbol, Name: symbol + " Corp"}, nil
}

func (f *fakeMarket) MarketSummary(context.Context) (models.MarketSummary, error) {
	return models.MarketSummary{Indices: map[string]models.Quote{"S&P 500": f.quotes["AAPL"]}}, nil
}

func (f *fakeMarket) Prefetch(_ context.Context, symbols []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = append(f.prefetch, symbols)
	return len(symbols), nil
}

func (f *fakeMarket) CacheStats(context.Context) cache.Stats {
	return cache.Stats{Type: "memory", Connected: true}
}

type fakePipeline struct {
	events  []agents.Event
	cleared []string
}

func (f *fakePipeline) Model() string { return "fake-model" }

func (f *fakePipeline) Run(_ context.Context, _ string, tickers []string, t models.AnalysisType) models.Report {
	reports := map[string]models.TickerReport{}
	for _, tk := range tickers {
		reports[tk] = models.TickerReport{Status: models.StatusSuccess, Ticker: tk}
	}
	return models.Report{
		Reports: reports,
		Summary: models.ReportSummary{TotalTickers: len(tickers), AnalysisType: string(t)},
		Status:  "completed",
	}
}

func (f *fakePipeline) Stream(_ context.Context, _, _ string, _ models.AnalysisType, emitFn func(agents.Event)) error {
	for _, ev := range f.events {
		emitFn(ev)
	}
	return nil
}

func (f *fakePipeline) ClearCache(_ context.Context, _, ticker string) (int, error) {
	f.cleared = append(f.cleared, ticker)
	return 3, nil
}

func (f *fakePipeline) Compare(_ context.Context, _ string, tickers []string) (*models.Comparison, error) {
	if len(tickers) < 2 {
		return nil, agents.ErrTooFewTickers
	}
	return &models.Comparison{Tickers: tickers, Recommendation: tickers[0]}, nil
}

func (f *fakePipeline) ProfessionalReport(context.Context, string) (agents.ProfessionalReport, error) {
	return agents.ProfessionalReport{}, errors.New("not implemented")
}

type fakeHistory struct {
	entries []models.AnalysisHistory
}

func (f *fakeHistory) Save(_ context.Context, h *models.AnalysisHistory) error {
	h.ID = fmt.Sprintf("h-%d", len(f.entries)+1)
	h.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f.entries = append(f.entries, *h)
	return nil
}

func (f *fakeHistory) List(_ context.Context, userID string) ([]models.AnalysisHistory, error) {
	var out []models.AnalysisHistory
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistory) Get(_ context.Context, userID, id string) (*models.AnalysisHistory, error) {
	for _, e := range f.entries {
		if e.UserID == userID && e.AnalysisID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeHistory) Delete(_ context.Context, userID, id string) error {
	for i, e := range f.entries {
		if e.UserID == userID && e.AnalysisID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return database.ErrNotFound
}

type fakeAssistant struct{}

func (fakeAssistant) Answer(_ context.Context, q string) assistant.Answer {
	return assistant.Answer{Response: "echo: " + q, Success: true}
}

type fakeImpact struct{}

func (fakeImpact) Analyze(_ context.Context, in impact.Input) (*models.MarketImpact, error) {
	if in.Text == "" && in.URL == "" {
		return nil, impact.ErrNoInput
	}
	return &models.MarketImpact{Summary: "ok", MarketSentiment: "Neutral", SourceType: "text"}, nil
}
