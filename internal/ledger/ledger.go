// Package ledger owns the balance, holdings and trade history of the active profile.
//
// All mutations go through a single writer lock. Readers load the last committed
// state from an atomic pointer, so they never block on writers and never observe a
// half-applied trade or a half-switched profile.
package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/events"
	"github.com/vadiminshakov/coinledger/pkg/retrier"
)

const (
	// DefaultKey storage key used when no profile is active.
	DefaultKey = "default_portfolio"

	keyPrefix = "portfolio_"
)

// Store persists one portfolio per storage key.
type Store interface {
	// Load returns nil, nil when nothing is stored under key.
	Load(ctx context.Context, key string) (*domain.Portfolio, error)
	Save(ctx context.Context, key string, portfolio domain.Portfolio) error
	Delete(ctx context.Context, key string) error
}

// Journal records committed mutations for audit.
type Journal interface {
	Append(event domain.LedgerEvent) (uint64, error)
}

// StorageKey derives the storage key of a profile.
func StorageKey(profileID string) string {
	if profileID == "" {
		return DefaultKey
	}
	return keyPrefix + profileID
}

// state is never modified after it has been published.
type state struct {
	key       string
	portfolio domain.Portfolio
	// stale is set when the portfolio could not be written to the store.
	stale bool
}

// Ledger portfolio ledger of the active profile.
type Ledger struct {
	mu      sync.Mutex
	current atomic.Pointer[state]

	store    Store
	journal  Journal
	retrier  *retrier.Retrier
	logger   *zap.Logger
	changes  *events.Broadcaster[events.PortfolioChanged]
	now      func() time.Time
	newID    func() string
	currency string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithJournal records every committed mutation in j.
func WithJournal(j Journal) Option {
	return func(l *Ledger) {
		l.journal = j
	}
}

// WithRetrier overrides the retry policy used for store writes.
func WithRetrier(r *retrier.Retrier) Option {
	return func(l *Ledger) {
		l.retrier = r
	}
}

// WithClock overrides the time source used for trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithIDGenerator overrides trade id generation.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) {
		l.newID = newID
	}
}

// WithBroadcaster publishes a PortfolioChanged event after every commit.
func WithBroadcaster(b *events.Broadcaster[events.PortfolioChanged]) Option {
	return func(l *Ledger) {
		l.changes = b
	}
}

// WithCurrency sets the currency used by BalanceText.
func WithCurrency(code string) Option {
	return func(l *Ledger) {
		l.currency = code
	}
}

// New creates a ledger holding an empty portfolio under DefaultKey.
// Call Load to bring in the stored portfolio of a profile.
func New(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("store is required for Ledger")
	}

	l := &Ledger{
		store:    store,
		now:      time.Now,
		newID:    uuid.NewString,
		currency: domain.DefaultCurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.retrier == nil {
		l.retrier = l.defaultRetrier()
	}

	l.current.Store(&state{key: DefaultKey, portfolio: domain.EmptyPortfolio()})

	return l, nil
}

func (l *Ledger) defaultRetrier() *retrier.Retrier {
	return retrier.New(
		retrier.WithInitialInterval(100*time.Millisecond),
		retrier.WithMaxInterval(2*time.Second),
		retrier.WithMaxRetries(3),
		retrier.WithRetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retrier.WithOnRetry(func(attempt int, err error) {
			l.logger.Warn("retrying portfolio save", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
}

// Charge adds amount to the balance.
func (l *Ledger) Charge(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		l.logger.Warn("charge rejected", zap.String("amount", amount.String()))
		return errors.Wrapf(domain.ErrInvalidAmount, "charge %s", amount.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.current.Load()
	next := cur.portfolio.Clone()
	next.Balance = next.Balance.Add(amount)

	event := domain.NewLedgerEvent(l.now(), cur.key, domain.LedgerEventCharge, next.Balance)
	event.Amount = amount

	return l.commit(ctx, cur.key, next, event)
}

// Trade settles a buy or sell of amount coins at coin.CurrentPrice.
//
// Guard failures return the matching domain error and leave the portfolio untouched.
// A trade that was applied but could not be saved returns the record together with an
// error for which IsPersistenceOnly reports true.
func (l *Ledger) Trade(ctx context.Context, coin domain.Coin, tradeType domain.TradeType, amount decimal.Decimal) (domain.TradeRecord, error) {
	if !tradeType.IsValid() {
		return domain.TradeRecord{}, errors.Wrapf(domain.ErrInvalidTradeType, "%q", tradeType)
	}
	if !amount.IsPositive() {
		l.logger.Info("trade rejected: invalid amount",
			zap.String("coin", coin.ID), zap.String("amount", amount.String()))
		return domain.TradeRecord{}, errors.Wrapf(domain.ErrInvalidAmount, "trade %s", amount.String())
	}
	if err := coin.Validate(); err != nil {
		return domain.TradeRecord{}, errors.Wrapf(err, "coin %q price %s", coin.ID, coin.CurrentPrice.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.current.Load()
	next, err := settle(cur.portfolio, coin, tradeType, amount)
	if err != nil {
		l.logger.Info("trade rejected",
			zap.String("key", cur.key),
			zap.String("coin", coin.ID),
			zap.String("type", tradeType.String()),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return domain.TradeRecord{}, err
	}

	record := domain.TradeRecord{
		ID:           l.newID(),
		CoinID:       coin.ID,
		CoinSymbol:   coin.Symbol,
		CoinName:     coin.Name,
		Date:         l.now(),
		Type:         tradeType,
		Amount:       amount,
		CurrentPrice: coin.CurrentPrice,
	}

	history := make([]domain.TradeRecord, len(next.TradeHistory)+1)
	history[0] = record
	copy(history[1:], next.TradeHistory)
	next.TradeHistory = history

	event := domain.NewLedgerEvent(record.Date, cur.key, domain.LedgerEventTrade, next.Balance)
	event.Trade = &record

	l.logger.Info("trade settled",
		zap.String("key", cur.key),
		zap.String("trade", record.String()),
		zap.String("balance", next.Balance.String()))

	return record, l.commit(ctx, cur.key, next, event)
}

// settle applies the trade to a copy of p. p itself is never modified.
func settle(p domain.Portfolio, coin domain.Coin, tradeType domain.TradeType, amount decimal.Decimal) (domain.Portfolio, error) {
	total := coin.CurrentPrice.Mul(amount)
	idx := p.HoldingIndex(coin.ID)

	switch tradeType {
	case domain.TradeTypeBuy:
		if p.Balance.LessThan(total) {
			return domain.Portfolio{}, errors.Wrapf(domain.ErrInsufficientBalance,
				"need %s, have %s", total.String(), p.Balance.String())
		}

		next := p.Clone()
		next.Balance = next.Balance.Sub(total)
		if idx >= 0 {
			next.Holdings[idx].Amount = next.Holdings[idx].Amount.Add(amount)
		} else {
			next.Holdings = append(next.Holdings, domain.Holding{
				CoinID:   coin.ID,
				CoinName: coin.Name,
				Amount:   amount,
			})
		}
		return next, nil

	case domain.TradeTypeSell:
		if idx < 0 {
			return domain.Portfolio{}, errors.Wrapf(domain.ErrNoSuchHolding, "coin %s", coin.ID)
		}
		held := p.Holdings[idx].Amount
		if held.LessThan(amount) {
			return domain.Portfolio{}, errors.Wrapf(domain.ErrInsufficientHoldings,
				"sell %s %s, hold %s", amount.String(), coin.ID, held.String())
		}

		next := p.Clone()
		remaining := held.Sub(amount)
		if remaining.IsZero() {
			next.Holdings = append(next.Holdings[:idx], next.Holdings[idx+1:]...)
		} else {
			next.Holdings[idx].Amount = remaining
		}
		next.Balance = next.Balance.Add(total)
		return next, nil
	}

	return domain.Portfolio{}, errors.Wrapf(domain.ErrInvalidTradeType, "%q", tradeType)
}

// Reset replaces the portfolio of the current key with an empty one.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.current.Load()
	event := domain.NewLedgerEvent(l.now(), cur.key, domain.LedgerEventReset, decimal.Zero)

	return l.commit(ctx, cur.key, domain.EmptyPortfolio(), event)
}

// Load switches to the portfolio of profileID, or of DefaultKey when profileID is empty.
//
// Stale state of the current key is saved first. If that fails the ledger stays on the
// current key and an ErrPersistence error is returned.
func (l *Ledger) Load(ctx context.Context, profileID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(ctx); err != nil {
		return err
	}

	key := StorageKey(profileID)
	if profileID == "" {
		l.logger.Debug("no active profile, using default portfolio", zap.Error(domain.ErrProfileNotActive))
	}

	stored, err := retrier.DoWithData(l.retrier, ctx, func(ctx context.Context) (*domain.Portfolio, error) {
		return l.store.Load(ctx, key)
	})
	if err != nil {
		l.logger.Error("failed to load portfolio", zap.String("key", key), zap.Error(err))
		return errors.Wrapf(err, "load portfolio %s", key)
	}

	portfolio := domain.EmptyPortfolio()
	if stored != nil {
		portfolio = stored.Clone()
	}

	next := &state{key: key, portfolio: portfolio}
	l.current.Store(next)

	l.logger.Info("portfolio loaded",
		zap.String("key", key),
		zap.String("balance", portfolio.Balance.String()),
		zap.Int("holdings", len(portfolio.Holdings)),
		zap.Int("trades", len(portfolio.TradeHistory)))

	l.record(domain.NewLedgerEvent(l.now(), key, domain.LedgerEventLoad, portfolio.Balance))
	l.publish(domain.LedgerEventLoad, next)

	return nil
}

// Discard drops the stored portfolio of profileID. When that portfolio is the loaded one
// it is reset in place instead.
func (l *Ledger) Discard(ctx context.Context, profileID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := StorageKey(profileID)
	event := domain.NewLedgerEvent(l.now(), key, domain.LedgerEventReset, decimal.Zero)

	if l.current.Load().key == key {
		return l.commit(ctx, key, domain.EmptyPortfolio(), event)
	}

	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		return l.store.Delete(ctx, key)
	})
	if err != nil {
		l.logger.Error("failed to discard portfolio", zap.String("key", key), zap.Error(err))
		return errors.Wrapf(err, "discard portfolio %s", key)
	}

	l.record(event)
	l.logger.Info("portfolio discarded", zap.String("key", key))

	return nil
}

// Flush saves the current portfolio again if an earlier save failed.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.flushLocked(ctx)
}

func (l *Ledger) flushLocked(ctx context.Context) error {
	cur := l.current.Load()
	if !cur.stale {
		return nil
	}

	if err := l.persist(ctx, cur.key, cur.portfolio); err != nil {
		return &PersistenceError{Key: cur.key, Err: err}
	}

	next := &state{key: cur.key, portfolio: cur.portfolio}
	l.current.Store(next)
	l.logger.Info("stale portfolio saved", zap.String("key", cur.key))
	l.publish("flush", next)

	return nil
}

// commit publishes next as the current state and saves it. The in-memory state is kept
// even when the save fails; it is then flagged stale and saved again later.
func (l *Ledger) commit(ctx context.Context, key string, next domain.Portfolio, event domain.LedgerEvent) error {
	saveErr := l.persist(ctx, key, next)

	st := &state{key: key, portfolio: next, stale: saveErr != nil}
	l.current.Store(st)

	l.record(event)
	l.publish(event.Kind, st)

	if saveErr != nil {
		return &PersistenceError{Key: key, Err: saveErr, Applied: true}
	}
	return nil
}

func (l *Ledger) persist(ctx context.Context, key string, p domain.Portfolio) error {
	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		return l.store.Save(ctx, key, p)
	})
	if err != nil {
		l.logger.Error("failed to save portfolio", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (l *Ledger) record(event domain.LedgerEvent) {
	if l.journal == nil {
		return
	}
	if _, err := l.journal.Append(event); err != nil {
		l.logger.Warn("failed to journal ledger event",
			zap.String("kind", string(event.Kind)), zap.String("key", event.Key), zap.Error(err))
	}
}

func (l *Ledger) publish(kind domain.LedgerEventKind, st *state) {
	if l.changes == nil {
		return
	}
	l.changes.Publish(events.PortfolioChanged{
		Timestamp:   l.now(),
		Key:         st.key,
		Kind:        string(kind),
		Balance:     st.portfolio.Balance.String(),
		BalanceText: domain.FormatBalance(st.portfolio.Balance, l.currency),
		Holdings:    len(st.portfolio.Holdings),
		Trades:      len(st.portfolio.TradeHistory),
		Stale:       st.stale,
	})
}

// Snapshot returns a copy of the committed portfolio.
func (l *Ledger) Snapshot() domain.Portfolio {
	return l.current.Load().portfolio.Clone()
}

// Balance returns the committed balance.
func (l *Ledger) Balance() decimal.Decimal {
	return l.current.Load().portfolio.Balance
}

// BalanceText returns the balance formatted for display.
func (l *Ledger) BalanceText() string {
	return domain.FormatBalance(l.Balance(), l.currency)
}

// Holdings returns a copy of the committed holdings.
func (l *Ledger) Holdings() []domain.Holding {
	return l.Snapshot().Holdings
}

// TradeHistory returns a copy of the committed trade history, newest first.
func (l *Ledger) TradeHistory() []domain.TradeRecord {
	return l.Snapshot().TradeHistory
}

// Key returns the storage key of the loaded portfolio.
func (l *Ledger) Key() string {
	return l.current.Load().key
}

// Stale reports whether the committed portfolio has not been saved yet.
func (l *Ledger) Stale() bool {
	return l.current.Load().stale
}
