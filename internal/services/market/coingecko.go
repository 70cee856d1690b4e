package market

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

const (
	// DefaultCoinGeckoURL public CoinGecko API root.
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	defaultPerPage      = 10
)

// CoinGeckoProvider fetches the top coins by market cap from /coins/markets.
type CoinGeckoProvider struct {
	client     *http.Client
	baseURL    string
	vsCurrency string
	perPage    int
}

// NewCoinGeckoProvider creates a provider quoting prices in vsCurrency.
// An empty baseURL selects the public API.
func NewCoinGeckoProvider(baseURL, vsCurrency string, perPage int) *CoinGeckoProvider {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	if vsCurrency == "" {
		vsCurrency = domain.DefaultCurrency
	}
	if perPage <= 0 || perPage > 250 {
		perPage = defaultPerPage
	}
	return &CoinGeckoProvider{
		client:     &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		vsCurrency: strings.ToLower(vsCurrency),
		perPage:    perPage,
	}
}

// FetchCoins calls /coins/markets ordered by market cap.
func (p *CoinGeckoProvider) FetchCoins(ctx context.Context) ([]domain.Coin, error) {
	query := url.Values{}
	query.Set("vs_currency", p.vsCurrency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(p.perPage))
	query.Set("page", "1")
	query.Set("sparkline", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/coins/markets?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build coingecko request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(domain.ErrMarketUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Wrapf(domain.ErrMarketUnavailable, "coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var coins []domain.Coin
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		return nil, errors.Wrap(err, "decode coingecko markets")
	}

	valid := coins[:0]
	for _, c := range coins {
		if c.Validate() == nil {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return nil, errors.Wrap(domain.ErrMarketUnavailable, "coingecko returned no coins")
	}

	return valid, nil
}
