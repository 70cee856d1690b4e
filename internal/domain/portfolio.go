package domain

import (
	"github.com/shopspring/decimal"
)

// Holding quantity of one coin currently owned.
type Holding struct {
	CoinID   string          `json:"coinID"`
	CoinName string          `json:"coinName"`
	Amount   decimal.Decimal `json:"amount"`
}

// Portfolio balance, holdings and trade history of one profile.
// TradeHistory is ordered newest first.
type Portfolio struct {
	Balance      decimal.Decimal `json:"balance"`
	Holdings     []Holding       `json:"holdings"`
	TradeHistory []TradeRecord   `json:"tradeHistory"`
}

// EmptyPortfolio returns a portfolio with zero balance and no holdings or history.
func EmptyPortfolio() Portfolio {
	return Portfolio{
		Balance:      decimal.Zero,
		Holdings:     []Holding{},
		TradeHistory: []TradeRecord{},
	}
}

// Clone returns a deep copy that shares no slices with p.
func (p Portfolio) Clone() Portfolio {
	holdings := make([]Holding, len(p.Holdings))
	copy(holdings, p.Holdings)
	history := make([]TradeRecord, len(p.TradeHistory))
	copy(history, p.TradeHistory)

	return Portfolio{
		Balance:      p.Balance,
		Holdings:     holdings,
		TradeHistory: history,
	}
}

// HoldingIndex returns the index of the holding for coinID, or -1.
func (p Portfolio) HoldingIndex(coinID string) int {
	for i, h := range p.Holdings {
		if h.CoinID == coinID {
			return i
		}
	}
	return -1
}

// Holding returns the holding for coinID if present.
func (p Portfolio) Holding(coinID string) (Holding, bool) {
	idx := p.HoldingIndex(coinID)
	if idx < 0 {
		return Holding{}, false
	}
	return p.Holdings[idx], true
}

// Equal reports whether both portfolios hold the same balance, holdings and history, in order.
func (p Portfolio) Equal(o Portfolio) bool {
	if !p.Balance.Equal(o.Balance) || len(p.Holdings) != len(o.Holdings) || len(p.TradeHistory) != len(o.TradeHistory) {
		return false
	}
	for i := range p.Holdings {
		a, b := p.Holdings[i], o.Holdings[i]
		if a.CoinID != b.CoinID || a.CoinName != b.CoinName || !a.Amount.Equal(b.Amount) {
			return false
		}
	}
	for i := range p.TradeHistory {
		a, b := p.TradeHistory[i], o.TradeHistory[i]
		if a.ID != b.ID || a.CoinID != b.CoinID || a.CoinSymbol != b.CoinSymbol || a.CoinName != b.CoinName ||
			!a.Date.Equal(b.Date) || a.Type != b.Type || !a.Amount.Equal(b.Amount) || !a.CurrentPrice.Equal(b.CurrentPrice) {
			return false
		}
	}
	return true
}

// Valuation values every holding with the given prices (keyed by coin id).
// Holdings without a price contribute zero.
func (p Portfolio) Valuation(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, h := range p.Holdings {
		if price, ok := prices[h.CoinID]; ok {
			total = total.Add(price.Mul(h.Amount))
		}
	}
	return total
}
