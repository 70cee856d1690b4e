// Package internal wires storage, market data, profiles and the ledger into one application.
package internal

import (
	"context"
	"os"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/coinledger/config"
	"github.com/vadiminshakov/coinledger/internal/events"
	"github.com/vadiminshakov/coinledger/internal/ledger"
	"github.com/vadiminshakov/coinledger/internal/profile"
	"github.com/vadiminshakov/coinledger/internal/services/market"
	"github.com/vadiminshakov/coinledger/internal/session"
	"github.com/vadiminshakov/coinledger/internal/storage/journal"
	"github.com/vadiminshakov/coinledger/internal/storage/portfoliostate"
	"github.com/vadiminshakov/coinledger/internal/storage/postgres"
	"github.com/vadiminshakov/coinledger/internal/storage/profilestate"
	"github.com/vadiminshakov/coinledger/internal/web"
	"github.com/vadiminshakov/coinledger/pkg/retrier"
)

const broadcastBuffer = 32

// App holds the wired components. Build it with New and release it with Close.
type App struct {
	Config   config.Config
	Ledger   *ledger.Ledger
	Profiles *profile.Manager
	Session  *session.Session
	Market   *market.Catalogue
	Journal  *journal.WALStore
	Changes  *events.Broadcaster[events.PortfolioChanged]

	switches *events.Broadcaster[events.ProfileSwitched]
	follow   chan events.ProfileSwitched
	db       *sqlx.DB
	logger   *zap.Logger
}

// New opens storage for cfg and loads the portfolio of the active profile.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:   cfg,
		Changes:  events.NewBroadcaster[events.PortfolioChanged](broadcastBuffer),
		switches: events.NewBroadcaster[events.ProfileSwitched](broadcastBuffer),
		logger:   logger,
	}
	// subscribed up front so switches made before Run are reconciled too
	a.follow = a.switches.Subscribe()
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	portfolios, registry, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	a.Journal, err = journal.NewWALStore(cfg.JournalDir)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger journal")
	}

	a.Ledger, err = ledger.New(portfolios,
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithJournal(a.Journal),
		ledger.WithBroadcaster(a.Changes),
		ledger.WithCurrency(cfg.VsCurrency),
		ledger.WithRetrier(a.saveRetrier()),
	)
	if err != nil {
		return nil, err
	}

	a.Profiles, err = profile.NewManager(ctx, registry,
		profile.WithLogger(logger.Named("profiles")),
		profile.WithSwitches(a.switches),
	)
	if err != nil {
		return nil, err
	}

	if err := a.Ledger.Load(ctx, a.Profiles.ActiveID()); err != nil {
		return nil, err
	}
	a.Session = session.New(a.Profiles, a.Ledger, session.WithLogger(logger.Named("session")))

	a.Market = market.NewCatalogue(a.marketProvider(),
		market.WithLogger(logger.Named("market")),
		market.WithTTL(cfg.MarketRefresh),
	)

	return a, nil
}

func (a *App) openStores(ctx context.Context) (ledger.Store, profile.Registry, error) {
	switch a.Config.Storage {
	case config.StoragePostgres:
		db, err := postgres.Open(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		a.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		a.logger.Info("using postgres storage")
		return postgres.NewPortfolioStore(db), postgres.NewProfileStore(db), nil
	default:
		portfolios, err := portfoliostate.NewStore(a.Config.PortfolioDir())
		if err != nil {
			return nil, nil, errors.Wrap(err, "open portfolio store")
		}
		registry, err := profilestate.NewStore(a.Config.DataDir)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open profile store")
		}
		a.logger.Info("using file storage", zap.String("dir", a.Config.DataDir))
		return portfolios, registry, nil
	}
}

func (a *App) saveRetrier() *retrier.Retrier {
	return retrier.New(
		retrier.WithInitialInterval(a.Config.SaveRetryInterval),
		retrier.WithMaxRetries(a.Config.SaveRetries),
		retrier.WithRetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retrier.WithOnRetry(func(attempt int, err error) {
			a.logger.Warn("retrying portfolio save", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
}

// marketProvider builds the configured price source. Exchange tickers only need
// public endpoints, so API keys are optional.
func (a *App) marketProvider() market.Provider {
	logger := a.logger.Named("market")

	switch a.Config.MarketSource {
	case config.MarketBinance:
		client := binance.NewClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))
		return market.NewBinanceProvider(client, market.StaticCoins(), logger)
	case config.MarketBybit:
		client := bybit.NewClient()
		if key, secret := os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"); key != "" && secret != "" {
			client = client.WithAuth(key, secret)
		}
		return market.NewBybitProvider(client, market.StaticCoins(), logger)
	case config.MarketStatic:
		return market.StaticProvider{}
	default:
		return market.NewCoinGeckoProvider(a.Config.CoinGeckoURL, a.Config.VsCurrency, a.Config.CoinCount)
	}
}

// Run serves HTTP until ctx is cancelled. Profile switches made outside the session
// are followed in the background.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Session.Follow(ctx, a.follow)
	})

	g.Go(func() error {
		server := web.NewServer(a.Config.ListenAddr, a.Ledger, a.Market, a.Session,
			web.WithLogger(a.logger.Named("web")),
			web.WithJournal(a.Journal),
			web.WithChanges(a.Changes),
		)
		return server.Start(ctx)
	})

	// warm the catalogue so the first request does not wait on the provider
	go a.Market.Coins(ctx)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close flushes unsaved ledger state and releases storage.
func (a *App) Close() error {
	var errs []error
	if a.Ledger != nil && a.Ledger.Stale() {
		if err := a.Ledger.Flush(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	a.Changes.Close()
	a.switches.Close()
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
