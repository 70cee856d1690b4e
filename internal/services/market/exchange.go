package market

import (
	"context"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

// QuoteAsset exchange quote asset used to price catalogue coins.
const QuoteAsset = "USDT"

// priceFunc returns the last traded price of an exchange symbol such as BTCUSDT.
type priceFunc func(ctx context.Context, symbol string) (decimal.Decimal, error)

// ExchangeProvider prices a fixed catalogue of coins from exchange tickers.
// Coins without a USDT market (the stablecoins) keep their catalogue price.
type ExchangeProvider struct {
	name      string
	catalogue []domain.Coin
	price     priceFunc
	logger    *zap.Logger
	now       func() time.Time
}

// NewBinanceProvider prices catalogue coins from Binance spot tickers.
func NewBinanceProvider(client *binance.Client, catalogue []domain.Coin, logger *zap.Logger) *ExchangeProvider {
	return newExchangeProvider("binance", catalogue, logger, func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		prices, err := client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		if len(prices) == 0 {
			return decimal.Zero, errors.Errorf("binance API returned empty prices for %s", symbol)
		}
		return decimal.NewFromString(prices[0].Price)
	})
}

// NewBybitProvider prices catalogue coins from Bybit spot tickers.
func NewBybitProvider(client *bybit.Client, catalogue []domain.Coin, logger *zap.Logger) *ExchangeProvider {
	return newExchangeProvider("bybit", catalogue, logger, func(_ context.Context, symbol string) (decimal.Decimal, error) {
		sym := bybit.SymbolV5(symbol)
		result, err := client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: "spot",
			Symbol:   &sym,
		})
		if err != nil {
			return decimal.Zero, err
		}
		if len(result.Result.Spot.List) == 0 {
			return decimal.Zero, errors.Errorf("bybit API returned empty prices for %s", symbol)
		}
		return decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
	})
}

func newExchangeProvider(name string, catalogue []domain.Coin, logger *zap.Logger, price priceFunc) *ExchangeProvider {
	if len(catalogue) == 0 {
		catalogue = StaticCoins()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExchangeProvider{
		name:      name,
		catalogue: catalogue,
		price:     price,
		logger:    logger,
		now:       time.Now,
	}
}

// FetchCoins returns the catalogue with live prices. It fails only when no coin could be priced.
func (p *ExchangeProvider) FetchCoins(ctx context.Context) ([]domain.Coin, error) {
	coins := make([]domain.Coin, 0, len(p.catalogue))
	priced := 0
	stamp := p.now().UTC().Format(time.RFC3339)

	for _, c := range p.catalogue {
		symbol, ok := exchangeSymbol(c)
		if !ok {
			coins = append(coins, c)
			continue
		}

		price, err := p.price(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("failed to price coin",
				zap.String("exchange", p.name), zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		c.CurrentPrice = price
		c.LastUpdated = stamp
		coins = append(coins, c)
		priced++
	}

	if priced == 0 {
		return nil, errors.Wrapf(domain.ErrMarketUnavailable, "%s returned no prices", p.name)
	}
	return coins, nil
}

func exchangeSymbol(c domain.Coin) (string, bool) {
	base := strings.ToUpper(c.Symbol)
	switch base {
	case "", QuoteAsset, "USDC":
		return "", false
	}
	return base + QuoteAsset, true
}
