package market

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/pkg/retrier"
)

const topListSize = 10

// SortKey column a coin list can be ordered by.
type SortKey string

const (
	SortByMarketCap SortKey = "marketCap"
	SortByPrice     SortKey = "price"
	SortByVolume    SortKey = "volume"
	SortByChange24h SortKey = "change24h"
)

// ParseSortKey maps s to a SortKey. Unknown keys sort by market cap.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortByPrice, SortByVolume, SortByChange24h:
		return SortKey(s)
	default:
		return SortByMarketCap
	}
}

func (k SortKey) value(c domain.Coin) decimal.Decimal {
	switch k {
	case SortByPrice:
		return c.CurrentPrice
	case SortByVolume:
		return c.TotalVolume
	case SortByChange24h:
		return c.PriceChangePercentage24h
	default:
		return c.MarketCap
	}
}

// Catalogue caches the coin list of a provider and falls back to StaticCoins
// when the provider fails.
type Catalogue struct {
	provider Provider
	retrier  *retrier.Retrier
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	coins    []domain.Coin
	loaded   bool
	live     bool
	loadedAt time.Time
}

// CatalogueOption configures a Catalogue.
type CatalogueOption func(*Catalogue)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) CatalogueOption {
	return func(c *Catalogue) {
		c.logger = logger
	}
}

// WithRetrier overrides the retry policy of provider fetches.
func WithRetrier(r *retrier.Retrier) CatalogueOption {
	return func(c *Catalogue) {
		c.retrier = r
	}
}

// WithTTL expires the cached list after ttl. Zero keeps it until ClearCache.
func WithTTL(ttl time.Duration) CatalogueOption {
	return func(c *Catalogue) {
		c.ttl = ttl
	}
}

// NewCatalogue creates a catalogue over provider. A nil provider serves the static list.
func NewCatalogue(provider Provider, opts ...CatalogueOption) *Catalogue {
	if provider == nil {
		provider = StaticProvider{}
	}
	c := &Catalogue{
		provider: provider,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.retrier == nil {
		c.retrier = retrier.New(
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithMaxRetries(2),
			retrier.WithRetryIf(func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}),
		)
	}
	return c
}

// Coins returns the cached list, fetching it on first use.
func (c *Catalogue) Coins(ctx context.Context) []domain.Coin {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && (c.ttl == 0 || c.now().Sub(c.loadedAt) < c.ttl) {
		return cloneCoins(c.coins)
	}

	coins, err := retrier.DoWithData(c.retrier, ctx, c.provider.FetchCoins)
	if err != nil {
		c.logger.Warn("market data unavailable, using static coins", zap.Error(err))
		coins = StaticCoins()
		c.live = false
	} else {
		c.logger.Info("market data loaded", zap.Int("coins", len(coins)))
		c.live = true
	}

	c.coins = coins
	c.loaded = true
	c.loadedAt = c.now()

	return cloneCoins(c.coins)
}

// Live reports whether the cached list came from the provider rather than the fallback.
func (c *Catalogue) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loaded && c.live
}

// ClearCache forces the next call to fetch again.
func (c *Catalogue) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.coins = nil
	c.loaded = false
	c.live = false
	c.logger.Debug("market cache cleared")
}

// Coin looks up a coin by id.
func (c *Catalogue) Coin(ctx context.Context, id string) (domain.Coin, error) {
	for _, coin := range c.Coins(ctx) {
		if coin.ID == id {
			return coin, nil
		}
	}
	return domain.Coin{}, errors.Wrapf(domain.ErrInvalidCoin, "%q is not listed", id)
}

// Sorted returns all coins ordered by key, descending unless reverse is set.
func (c *Catalogue) Sorted(ctx context.Context, key SortKey, reverse bool) []domain.Coin {
	return SortCoins(c.Coins(ctx), key, reverse)
}

// Trending returns the top coins by market cap.
func (c *Catalogue) Trending(ctx context.Context) []domain.Coin {
	return top(SortCoins(c.Coins(ctx), SortByMarketCap, false))
}

// TopGainers returns the coins with the largest 24h change.
func (c *Catalogue) TopGainers(ctx context.Context) []domain.Coin {
	return top(SortCoins(c.Coins(ctx), SortByChange24h, false))
}

// TopLosers returns the coins with the smallest 24h change.
func (c *Catalogue) TopLosers(ctx context.Context) []domain.Coin {
	return top(SortCoins(c.Coins(ctx), SortByChange24h, true))
}

// Search returns coins whose name or symbol contains text, ignoring case.
// Empty text matches everything.
func (c *Catalogue) Search(ctx context.Context, text string) []domain.Coin {
	return filterCoins(c.Coins(ctx), text)
}

// SortCoins returns a sorted copy of coins. Ties keep their input order.
func SortCoins(coins []domain.Coin, key SortKey, reverse bool) []domain.Coin {
	out := cloneCoins(coins)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := key.value(out[i]), key.value(out[j])
		if reverse {
			return a.LessThan(b)
		}
		return a.GreaterThan(b)
	})
	return out
}

func filterCoins(coins []domain.Coin, text string) []domain.Coin {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return cloneCoins(coins)
	}
	out := make([]domain.Coin, 0, len(coins))
	for _, c := range coins {
		if strings.Contains(strings.ToLower(c.Name), text) || strings.Contains(strings.ToLower(c.Symbol), text) {
			out = append(out, c)
		}
	}
	return out
}

func top(coins []domain.Coin) []domain.Coin {
	if len(coins) > topListSize {
		return coins[:topListSize]
	}
	return coins
}

func cloneCoins(coins []domain.Coin) []domain.Coin {
	out := make([]domain.Coin, len(coins))
	copy(out, coins)
	return out
}
