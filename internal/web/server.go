// Package web exposes the ledger, market catalogue and profiles over HTTP.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/events"
	"github.com/vadiminshakov/coinledger/internal/profile"
	"github.com/vadiminshakov/coinledger/internal/services/market"
)

const (
	requestTimeout      = 15 * time.Second
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
)

// Ledger is the portfolio API the server drives.
type Ledger interface {
	Snapshot() domain.Portfolio
	BalanceText() string
	Key() string
	Stale() bool
	Charge(ctx context.Context, amount decimal.Decimal) error
	Trade(ctx context.Context, coin domain.Coin, tradeType domain.TradeType, amount decimal.Decimal) (domain.TradeRecord, error)
	Reset(ctx context.Context) error
}

// Market serves coin prices.
type Market interface {
	Coin(ctx context.Context, id string) (domain.Coin, error)
	Sorted(ctx context.Context, key market.SortKey, reverse bool) []domain.Coin
	Trending(ctx context.Context) []domain.Coin
	TopGainers(ctx context.Context) []domain.Coin
	TopLosers(ctx context.Context) []domain.Coin
	Search(ctx context.Context, text string) []domain.Coin
	Live() bool
	ClearCache()
}

// Profiles manages user profiles. Calls that change the active profile return after
// the ledger has loaded the portfolio of the new one.
type Profiles interface {
	List() []domain.Profile
	ActiveID() string
	Create(ctx context.Context, name, email, pin string) (domain.Profile, error)
	Login(ctx context.Context, email, pin string) error
	SignOut(ctx context.Context) error
	Delete(ctx context.Context, email string) error
	AddCard(ctx context.Context, email string, card profile.CardInput) (domain.PaymentCard, error)
}

// JournalReader reads ledger events after an index.
type JournalReader interface {
	EventsAfter(index uint64) ([]domain.LedgerEventRecord, error)
}

// Server exposes HTTP endpoints serving the JSON API, a small HTML page and SSE streams.
type Server struct {
	addr     string
	ledger   Ledger
	market   Market
	profiles Profiles
	journal  JournalReader
	changes  *events.Broadcaster[events.PortfolioChanged]
	logger   *zap.Logger

	journalPoll time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithJournal enables /journal/stream.
func WithJournal(j JournalReader) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithChanges enables /portfolio/stream.
func WithChanges(b *events.Broadcaster[events.PortfolioChanged]) Option {
	return func(s *Server) {
		s.changes = b
	}
}

// WithJournalPoll overrides how often the journal stream checks for new events.
func WithJournalPoll(d time.Duration) Option {
	return func(s *Server) {
		s.journalPoll = d
	}
}

// NewServer creates a new web server instance.
func NewServer(addr string, ledger Ledger, market Market, profiles Profiles, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		ledger:      ledger,
		market:      market,
		profiles:    profiles,
		journalPoll: journalPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// streams stay open, so they are kept out of the timeout group
	r.Get("/portfolio/stream", s.handlePortfolioStream)
	r.Get("/journal/stream", s.handleJournalStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/", s.handleIndex)
		r.Get("/health", s.handleHealth)

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handlePortfolio)
			r.Post("/charge", s.handleCharge)
			r.Post("/trade", s.handleTrade)
			r.Post("/reset", s.handleReset)
		})

		r.Route("/coins", func(r chi.Router) {
			r.Get("/", s.handleCoins)
			r.Get("/trending", s.handleTopList(s.market.Trending))
			r.Get("/gainers", s.handleTopList(s.market.TopGainers))
			r.Get("/losers", s.handleTopList(s.market.TopLosers))
			r.Post("/refresh", s.handleRefreshCoins)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", s.handleProfiles)
			r.Post("/", s.handleCreateProfile)
			r.Post("/signout", s.handleSignOut)
			r.Post("/{email}/activate", s.handleActivate)
			r.Post("/{email}/cards", s.handleAddCard)
			r.Delete("/{email}", s.handleDeleteProfile)
		})
	})

	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
