// Package domain defines core data structures shared by the ledger, the market
// catalogue and the profile registry.
package domain

import (
	"github.com/shopspring/decimal"
)

// Coin market snapshot for a single cryptocurrency.
// JSON tags follow the CoinGecko /coins/markets schema so live responses decode directly.
type Coin struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	Image                    string          `json:"image,omitempty"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	MarketCapRank            int             `json:"market_cap_rank"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	High24h                  decimal.Decimal `json:"high_24h"`
	Low24h                   decimal.Decimal `json:"low_24h"`
	PriceChange24h           decimal.Decimal `json:"price_change_24h"`
	PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
	CirculatingSupply        decimal.Decimal `json:"circulating_supply"`
	LastUpdated              string          `json:"last_updated,omitempty"`
}

// Validate checks the fields the ledger depends on.
func (c Coin) Validate() error {
	if c.ID == "" {
		return ErrInvalidCoin
	}
	if c.CurrentPrice.IsNegative() {
		return ErrInvalidCoin
	}
	return nil
}
