//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

func TestPostgres_PortfolioRoundTrip(t *testing.T) {
	dsn := os.Getenv("COINLEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("COINLEDGER_TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db))

	store := NewPortfolioStore(db)
	key := "portfolio_it_" + time.Now().Format("150405.000000")
	defer store.Delete(ctx, key)

	want := domain.EmptyPortfolio()
	want.Balance = decimal.RequireFromString("1000.125")
	want.Holdings = []domain.Holding{{CoinID: "bitcoin", CoinName: "Bitcoin", Amount: decimal.RequireFromString("0.01")}}
	want.TradeHistory = []domain.TradeRecord{{
		ID: "t1", CoinID: "bitcoin", CoinSymbol: "btc", CoinName: "Bitcoin",
		Date: time.Date(2025, 6, 4, 9, 30, 0, 0, time.UTC), Type: domain.TradeTypeBuy,
		Amount: decimal.RequireFromString("0.01"), CurrentPrice: decimal.NewFromInt(50000),
	}}
	require.NoError(t, store.Save(ctx, key, want))

	got, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got))
}

func TestPostgres_ProfileRegistry(t *testing.T) {
	dsn := os.Getenv("COINLEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("COINLEDGER_TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db))

	store := NewProfileStore(db)
	reg := domain.NewRegistry()
	reg.Profiles["it@example.com"] = domain.Profile{
		Email: "it@example.com", Name: "IT", PinHash: "hash",
		Cards:     []domain.PaymentCard{{Last4: "4242", ExpiryMonth: 1, ExpiryYear: 2030, HolderName: "IT"}},
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	reg.Active = "it@example.com"
	require.NoError(t, store.Save(ctx, reg))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "it@example.com", got.Active)
	assert.Equal(t, reg.Profiles["it@example.com"].Cards, got.Profiles["it@example.com"].Cards)

	require.NoError(t, store.Save(ctx, domain.NewRegistry()))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Profiles)
	assert.Empty(t, got.Active)
}
