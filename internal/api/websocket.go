package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/quantinsight/quantinsight/internal/auth"
	"github.com/quantinsight/quantinsight/internal/marketdata"
	"github.com/quantinsight/quantinsight/internal/models"
)

const (
	defaultPushInterval = 5 * time.Second
	maxStreamSymbols    = 30
	wsWriteWait         = 10 * time.Second
	wsPongWait          = 60 * time.Second
	wsPingPeriod        = 50 * time.Second
	wsMaxMessageBytes   = 4096
)

// QuoteTick is one entry of a pushed quote frame.
type QuoteTick struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// clientMessage lets a client refresh now or replace its symbol list.
type clientMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// MarketStream pushes batch quotes to WebSocket clients on a fixed interval.
type MarketStream struct {
	market   MarketService
	stocks   StockStore
	auth     auth.Config
	interval time.Duration
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewMarketStream(market MarketService, stocks StockStore, cfg auth.Config, allowedOrigin string, interval time.Duration, logger *slog.Logger) *MarketStream {
	if interval <= 0 {
		interval = defaultPushInterval
	}
	return &MarketStream{
		market:   market,
		stocks:   stocks,
		auth:     cfg,
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

func originChecker(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return allowed == "" || allowed == "*" || origin == "" || strings.EqualFold(origin, allowed)
	}
}

// ServeHTTP handles GET /ws/market-data?symbols=&token=
func (s *MarketStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	claims, err := auth.ValidateToken(token, s.auth.JWTSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	symbols := s.initialSymbols(r, claims.UserID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket connection", "error", err)
		return
	}
	defer conn.Close()
	clientID := uuid.NewString()
	s.logger.Debug("market stream connected", "client_id", clientID, "user_id", claims.UserID, "symbols", len(symbols))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requests := make(chan clientMessage, 1)
	go s.readLoop(ctx, cancel, conn, requests)
	s.writeLoop(ctx, conn, symbols, requests)
	s.logger.Debug("market stream disconnected", "client_id", clientID, "user_id", claims.UserID)
}

func (s *MarketStream) initialSymbols(r *http.Request, userID string) []string {
	symbols := splitSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		followed, err := s.stocks.FollowedSymbols(r.Context(), userID)
		if err != nil {
			s.logger.Warn("failed to load followed symbols for stream", "error", err)
		}
		symbols = followed
	}
	if len(symbols) == 0 {
		symbols = models.PopularSymbols()
	}
	return capSymbols(symbols)
}

// readLoop owns all reads on conn. It cancels ctx when the client goes away.
// Client requests beyond the limiter's budget are dropped.
func (s *MarketStream) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- clientMessage) {
	defer cancel()
	limiter := rate.NewLimiter(rate.Every(time.Second), 3)

	conn.SetReadLimit(wsMaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		if !limiter.Allow() {
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		default:
		}
	}
}

// writeLoop owns all writes on conn.
func (s *MarketStream) writeLoop(ctx context.Context, conn *websocket.Conn, symbols []string, requests <-chan clientMessage) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	if !s.push(ctx, conn, symbols) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case msg := <-requests:
			if msg.Action == "subscribe" {
				if next := capSymbols(normalizeSymbols(msg.Symbols)); len(next) > 0 {
					symbols = next
				}
			}
			if !s.push(ctx, conn, symbols) {
				return
			}
			ticker.Reset(s.interval)
		case <-ticker.C:
			if !s.push(ctx, conn, symbols) {
				return
			}
		}
	}
}

// push sends one frame of quotes. It returns false once the connection is unusable.
func (s *MarketStream) push(ctx context.Context, conn *websocket.Conn, symbols []string) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, s.interval)
	quotes, err := s.market.BatchQuotes(fetchCtx, symbols)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Warn("stream quote fetch failed", "error", err)
		return true
	}

	ticks := make([]QuoteTick, 0, len(quotes))
	for _, sym := range symbols {
		q, ok := requestedQuote(quotes, sym)
		if !ok {
			continue
		}
		ticks = append(ticks, QuoteTick{
			Symbol:        sym,
			Price:         q.Price,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
			Timestamp:     q.Timestamp,
		})
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(ticks); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return false
	}
	return true
}

// requestedQuote finds the quote for a symbol as the client wrote it. Batch
// results are keyed by the corrected ticker, so TESLA is found under TSLA.
func requestedQuote(quotes map[string]models.Quote, sym string) (models.Quote, bool) {
	if q, ok := quotes[sym]; ok {
		return q, true
	}
	corrected, err := marketdata.NormalizeSymbol(sym)
	if err != nil {
		return models.Quote{}, false
	}
	q, ok := quotes[corrected]
	return q, ok
}

func capSymbols(symbols []string) []string {
	if len(symbols) > maxStreamSymbols {
		return symbols[:maxStreamSymbols]
	}
	return symbols
}
