package market

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

func TestExchangeProvider_PricesCatalogue(t *testing.T) {
	var asked []string
	p := newExchangeProvider("test", nil, nil, func(_ context.Context, symbol string) (decimal.Decimal, error) {
		asked = append(asked, symbol)
		if symbol == "TRXUSDT" {
			return decimal.Zero, errors.New("symbol halted")
		}
		return decimal.RequireFromString("42.5"), nil
	})
	p.now = func() time.Time { return time.Date(2025, 6, 4, 9, 30, 0, 0, time.UTC) }

	coins, err := p.FetchCoins(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, asked, "USDTUSDT")
	assert.NotContains(t, asked, "USDCUSDT")
	assert.Contains(t, asked, "BTCUSDT")

	byID := map[string]domain.Coin{}
	for _, c := range coins {
		byID[c.ID] = c
	}
	assert.NotContains(t, byID, "tron", "unpriced coins are skipped")
	assert.True(t, byID["bitcoin"].CurrentPrice.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, "2025-06-04T09:30:00Z", byID["bitcoin"].LastUpdated)
	assert.True(t, byID["tether"].CurrentPrice.Equal(decimal.RequireFromString("1.52")), "stablecoins keep catalogue price")
}

func TestExchangeProvider_FailsWhenNothingPriced(t *testing.T) {
	p := newExchangeProvider("test", nil, nil, func(context.Context, string) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("exchange down")
	})

	_, err := p.FetchCoins(context.Background())
	assert.ErrorIs(t, err, domain.ErrMarketUnavailable)
}

func TestExchangeProvider_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newExchangeProvider("test", nil, nil, func(ctx context.Context, _ string) (decimal.Decimal, error) {
		return decimal.Zero, ctx.Err()
	})

	_, err := p.FetchCoins(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
