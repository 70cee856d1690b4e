//go:build integration

package market

import (
	"context"
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -tags=integration -v ./internal/services/market/...
func TestExchangeProviders_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	providers := map[string]Provider{
		"binance":   NewBinanceProvider(binance.NewClient("", ""), nil, nil),
		"bybit":     NewBybitProvider(bybit.NewClient(), nil, nil),
		"coingecko": NewCoinGeckoProvider("", "aud", 10),
	}

	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			coins, err := p.FetchCoins(context.Background())
			require.NoError(t, err)
			require.NotEmpty(t, coins)
			for _, c := range coins {
				assert.True(t, c.CurrentPrice.IsPositive(), "%s priced at %s", c.ID, c.CurrentPrice)
			}
		})
	}
}
