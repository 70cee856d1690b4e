package main

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/ledger"
	"github.com/vadiminshakov/coinledger/internal/services/market"
)

func TestRenderPortfolio(t *testing.T) {
	p := domain.EmptyPortfolio()
	p.Balance = decimal.RequireFromString("1234.5")
	p.Holdings = []domain.Holding{{CoinID: "bitcoin", CoinName: "Bitcoin", Amount: decimal.RequireFromString("0.01")}}
	prices := map[string]decimal.Decimal{"bitcoin": decimal.NewFromInt(100000)}

	out := renderPortfolio("portfolio_a@example.com", "$1,234.50", p, prices, "AUD", true)

	assert.Contains(t, out, "portfolio_a@example.com")
	assert.Contains(t, out, "$1,234.50")
	assert.Contains(t, out, "Bitcoin")
	assert.Contains(t, out, "$1,000.00")
	assert.Contains(t, out, "$2,234.50")
	assert.Contains(t, out, "not been saved")
}

func TestRenderPortfolio_Empty(t *testing.T) {
	out := renderPortfolio(ledger.DefaultKey, "$0.00", domain.EmptyPortfolio(), nil, "AUD", false)
	assert.Contains(t, out, "No holdings")
	assert.NotContains(t, out, "Total")
}

func TestRenderHistory_Limit(t *testing.T) {
	ts := time.Date(2025, 6, 4, 9, 30, 0, 0, time.UTC)
	trades := []domain.TradeRecord{
		{ID: "2", CoinSymbol: "eth", Date: ts.Add(time.Hour), Type: domain.TradeTypeSell, Amount: decimal.NewFromInt(1), CurrentPrice: decimal.NewFromInt(3900)},
		{ID: "1", CoinSymbol: "btc", Date: ts, Type: domain.TradeTypeBuy, Amount: decimal.RequireFromString("0.5"), CurrentPrice: decimal.NewFromInt(98500)},
	}

	out := renderHistory(trades, "AUD", 1)
	assert.Contains(t, out, "ETH")
	assert.Contains(t, out, "sell")
	assert.NotContains(t, out, "BTC")

	out = renderHistory(trades, "AUD", 0)
	assert.Contains(t, out, "BTC")
	assert.Contains(t, out, "$49,250.00")

	assert.Contains(t, renderHistory(nil, "AUD", 0), "No trades yet")
}

func TestRenderCoins(t *testing.T) {
	out := renderCoins(market.StaticCoins()[:2], "AUD")
	assert.Contains(t, out, "Bitcoin")
	assert.Contains(t, out, "ETH")
	assert.Contains(t, out, "-0.92%")
	assert.Equal(t, 1, strings.Count(out, "Ethereum"))

	assert.Contains(t, renderCoins(nil, "AUD"), "No coins match")
}

func TestRenderProfiles(t *testing.T) {
	profiles := []domain.Profile{
		{Email: "a@example.com", Name: "A", Cards: []domain.PaymentCard{{Last4: "4242"}}},
		{Email: "b@example.com", Name: "B"},
	}
	out := renderProfiles(profiles, "a@example.com")
	assert.Contains(t, out, "*")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "b@example.com")
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount("12.5")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))

	_, err = parseAmount("lots")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestApplied(t *testing.T) {
	assert.NoError(t, applied(nil))
	assert.NoError(t, applied(&ledger.PersistenceError{Key: "k", Err: errors.New("disk full"), Applied: true}))

	rejected := errors.Wrap(domain.ErrInsufficientBalance, "need more")
	assert.Equal(t, rejected, applied(rejected))
	assert.Error(t, applied(&ledger.PersistenceError{Key: "k", Err: errors.New("disk full")}))
}

func TestEnvFrom(t *testing.T) {
	e := &env{configPath: "x.yaml"}
	assert.Same(t, e, envFrom([]interface{}{e}))
	assert.NotNil(t, envFrom(nil))
}
