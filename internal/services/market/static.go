package market

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

type staticCoin struct {
	id, symbol, name                    string
	rank                                int
	price, marketCap, volume, change24h string
	high, low, priceChange, circulating string
}

// AUD figures used whenever live data cannot be fetched.
var staticCoins = []staticCoin{
	{"bitcoin", "btc", "Bitcoin", 1, "98500", "1950000000000", "45000000000", "1.85", "99800", "96100", "1790", "19800000"},
	{"ethereum", "eth", "Ethereum", 2, "3900", "470000000000", "22000000000", "-0.92", "4010", "3850", "-36.2", "120400000"},
	{"tether", "usdt", "Tether", 3, "1.52", "210000000000", "75000000000", "0.01", "1.53", "1.51", "0.0002", "138000000000"},
	{"ripple", "xrp", "XRP", 4, "3.35", "192000000000", "6100000000", "4.21", "3.41", "3.18", "0.135", "57300000000"},
	{"binancecoin", "bnb", "BNB", 5, "1010", "147000000000", "2600000000", "0.64", "1025", "995", "6.4", "145900000"},
	{"solana", "sol", "Solana", 6, "235", "112000000000", "5400000000", "-2.37", "244", "229", "-5.7", "476000000"},
	{"usd-coin", "usdc", "USDC", 7, "1.52", "88000000000", "11000000000", "0.00", "1.52", "1.51", "0", "57800000000"},
	{"dogecoin", "doge", "Dogecoin", 8, "0.36", "53000000000", "2100000000", "3.05", "0.37", "0.34", "0.0107", "148000000000"},
	{"cardano", "ada", "Cardano", 9, "1.12", "40000000000", "1100000000", "-1.44", "1.15", "1.09", "-0.0164", "35700000000"},
	{"tron", "trx", "TRON", 10, "0.38", "36000000000", "800000000", "0.42", "0.385", "0.377", "0.0016", "94800000000"},
}

// StaticCoins returns the built-in fallback coin list.
func StaticCoins() []domain.Coin {
	coins := make([]domain.Coin, 0, len(staticCoins))
	for _, c := range staticCoins {
		coins = append(coins, domain.Coin{
			ID:                       c.id,
			Symbol:                   c.symbol,
			Name:                     c.name,
			MarketCapRank:            c.rank,
			CurrentPrice:             decimal.RequireFromString(c.price),
			MarketCap:                decimal.RequireFromString(c.marketCap),
			TotalVolume:              decimal.RequireFromString(c.volume),
			PriceChangePercentage24h: decimal.RequireFromString(c.change24h),
			High24h:                  decimal.RequireFromString(c.high),
			Low24h:                   decimal.RequireFromString(c.low),
			PriceChange24h:           decimal.RequireFromString(c.priceChange),
			CirculatingSupply:        decimal.RequireFromString(c.circulating),
		})
	}
	return coins
}

// StaticProvider serves StaticCoins.
type StaticProvider struct{}

// FetchCoins returns the static list.
func (StaticProvider) FetchCoins(context.Context) ([]domain.Coin, error) {
	return StaticCoins(), nil
}
