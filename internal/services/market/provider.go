// Package market supplies coin market data to the ledger and the UI layer.
package market

import (
	"context"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

// Provider fetches a fresh list of coins with current prices.
type Provider interface {
	FetchCoins(ctx context.Context) ([]domain.Coin, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) ([]domain.Coin, error)

// FetchCoins calls f.
func (f ProviderFunc) FetchCoins(ctx context.Context) ([]domain.Coin, error) {
	return f(ctx)
}
