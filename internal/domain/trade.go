package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TradeType direction of a trade.
type TradeType string

const (
	// TradeTypeBuy converts balance into a holding.
	TradeTypeBuy TradeType = "buy"
	// TradeTypeSell converts a holding back into balance.
	TradeTypeSell TradeType = "sell"
)

// String returns the string representation.
func (t TradeType) String() string {
	return string(t)
}

// IsValid checks if the TradeType value is valid.
func (t TradeType) IsValid() bool {
	return t == TradeTypeBuy || t == TradeTypeSell
}

// ParseTradeType parses "buy" or "sell" case-insensitively.
func ParseTradeType(s string) (TradeType, error) {
	t := TradeType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", errors.Wrapf(ErrInvalidTradeType, "%q", s)
	}
	return t, nil
}

// TradeRecord immutable entry of the trade history.
type TradeRecord struct {
	ID         string    `json:"id"`
	CoinID     string    `json:"coinID"`
	CoinSymbol string    `json:"coinSymbol"`
	CoinName   string    `json:"coinName"`
	Date       time.Time `json:"date"`
	Type       TradeType `json:"type"`
	// Amount quantity of the coin traded.
	Amount decimal.Decimal `json:"amount"`
	// CurrentPrice unit price at execution time.
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

// Total returns the cash value of the trade.
func (r TradeRecord) Total() decimal.Decimal {
	return r.CurrentPrice.Mul(r.Amount)
}

// String returns a human-readable string representation.
func (r TradeRecord) String() string {
	return fmt.Sprintf("%s %s %s @ %s", r.Type, r.Amount.String(), strings.ToUpper(r.CoinSymbol), r.CurrentPrice.String())
}
