package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/quantinsight/quantinsight/internal/agents"
	"github.com/quantinsight/quantinsight/internal/assistant"
	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/cache"
	"github.com/quantinsight/quantinsight/internal/impact"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/metrics"
	"github.com/quantinsight/quantinsight/internal/models"
)

// MarketService is the market data surface the handlers use.
type MarketService interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	BatchQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
	History(ctx context.Context, symbol string, window marketdata.Window) ([]models.PricePoint, error)
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	Profile(ctx context.Context, symbol string) (models.CompanyProfile, error)
	MarketSummary(ctx context.Context) (models.MarketSummary, error)
	Prefetch(ctx context.Context, symbols []string) (int, error)
	CacheStats(ctx context.Context) cache.Stats
}

type NewsService interface {
	Fetch(ctx context.Context, symbol string, limit int) ([]models.NewsArticle, error)
}

// AnalysisService runs the agent pipeline.
type AnalysisService interface {
	Model() string
	Run(ctx context.Context, userID string, tickers []string, t models.AnalysisType) models.Report
	Stream(ctx context.Context, userID, ticker string, t models.AnalysisType, emitFn func(agents.Event)) error
	ClearCache(ctx context.Context, userID, ticker string) (int, error)
	Compare(ctx context.Context, userID string, tickers []string) (*models.Comparison, error)
	ProfessionalReport(ctx context.Context, ticker string) (agents.ProfessionalReport, error)
}

type AssistantService interface {
	Answer(ctx context.Context, query string) assistant.Answer
}

type ImpactService interface {
	Analyze(ctx context.Context, in impact.Input) (*models.MarketImpact, error)
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	CompleteSetup(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id, firstName, lastName string) error
	UpdatePassword(ctx context.Context, id, hashedPassword string) error
}

type StockStore interface {
	Search(ctx context.Context, q string) ([]models.Stock, error)
	Follow(ctx context.Context, userID, symbol string) (*models.Stock, error)
	Unfollow(ctx context.Context, userID, symbol string) error
	Followed(ctx context.Context, userID string) ([]models.Stock, error)
	FollowedSymbols(ctx context.Context, userID string) ([]string, error)
	SeedPopular(ctx context.Context) ([]models.Stock, error)
}

type HistoryStore interface {
	Save(ctx context.Context, h *models.AnalysisHistory) error
	List(ctx context.Context, userID string) ([]models.AnalysisHistory, error)
	Get(ctx context.Context, userID, analysisID string) (*models.AnalysisHistory, error)
	Delete(ctx context.Context, userID, analysisID string) error
}

// Verifier issues and checks mailed codes.
type Verifier interface {
	CreateCode(ctx context.Context, userID, email string, purpose models.VerificationPurpose) (*models.VerificationCode, error)
	Verify(ctx context.Context, email, code string, purpose models.VerificationPurpose) error
	SendWelcome(ctx context.Context, email, firstName string)
}

type InferenceLogStore interface {
	List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error)
	Stats(ctx context.Context, startDate, endDate *time.Time) (*models.InferenceLogStats, error)
}

// Deps wires the router. Nil services disable the routes that need them.
type Deps struct {
	Market        MarketService
	News          NewsService
	Analysis      AnalysisService
	Assistant     AssistantService
	Impact        ImpactService
	Users         UserStore
	Stocks        StockStore
	History       HistoryStore
	Verification  Verifier
	InferenceLogs InferenceLogStore
	Metrics       *metrics.Collector
	Auth          auth.Config
	AllowedOrigin string
	Version       string
	CacheBackend  string
	NewsSources   []string
	// Health reports database reachability for /healthz.
	Health func(ctx context.Context) error
	// DBStats, when set, adds connection pool figures to /api/info.
	DBStats func() map[string]interface{}
	// QuotePushInterval is how often the WebSocket stream pushes quotes.
	QuotePushInterval time.Duration
	Logger            *slog.Logger
}
