package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/storage/portfoliostate"
)

type portfolioRow struct {
	Key          string          `db:"key"`
	Balance      decimal.Decimal `db:"balance"`
	Holdings     []byte          `db:"holdings"`
	TradeHistory []byte          `db:"trade_history"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// PortfolioStore keeps one row per portfolio storage key.
type PortfolioStore struct {
	q   Executor
	now func() time.Time
}

// NewPortfolioStore creates a PortfolioStore.
func NewPortfolioStore(q Executor) *PortfolioStore {
	return &PortfolioStore{q: q, now: time.Now}
}

// Load returns nil, nil when no row exists for key.
func (s *PortfolioStore) Load(ctx context.Context, key string) (*domain.Portfolio, error) {
	var row portfolioRow
	query := `SELECT key, balance, holdings, trade_history, updated_at FROM portfolios WHERE key = $1`
	if err := s.q.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "select portfolio %s", key)
	}

	state := portfoliostate.State{Balance: row.Balance}
	if err := json.Unmarshal(row.Holdings, &state.Holdings); err != nil {
		return nil, errors.Wrapf(err, "decode holdings of %s", key)
	}
	if err := json.Unmarshal(row.TradeHistory, &state.TradeHistory); err != nil {
		return nil, errors.Wrapf(err, "decode trade history of %s", key)
	}

	p, err := state.ToPortfolio()
	if err != nil {
		return nil, errors.Wrapf(err, "portfolio %s", key)
	}
	return &p, nil
}

// Save upserts the whole portfolio in one statement.
func (s *PortfolioStore) Save(ctx context.Context, key string, p domain.Portfolio) error {
	state := portfoliostate.NewState(p)
	holdings, err := json.Marshal(state.Holdings)
	if err != nil {
		return errors.Wrap(err, "encode holdings")
	}
	history, err := json.Marshal(state.TradeHistory)
	if err != nil {
		return errors.Wrap(err, "encode trade history")
	}

	query := `INSERT INTO portfolios (key, balance, holdings, trade_history, updated_at)
              VALUES ($1, $2, $3, $4, $5)
              ON CONFLICT (key) DO UPDATE
              SET balance = EXCLUDED.balance, holdings = EXCLUDED.holdings,
                  trade_history = EXCLUDED.trade_history, updated_at = EXCLUDED.updated_at`
	if _, err := s.q.ExecContext(ctx, query, key, p.Balance, holdings, history, s.now().UTC()); err != nil {
		return errors.Wrapf(err, "upsert portfolio %s", key)
	}
	return nil
}

// Delete removes the row for key. Missing rows are not an error.
func (s *PortfolioStore) Delete(ctx context.Context, key string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM portfolios WHERE key = $1`, key); err != nil {
		return errors.Wrapf(err, "delete portfolio %s", key)
	}
	return nil
}
