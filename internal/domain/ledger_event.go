package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEventKind what happened to a portfolio.
type LedgerEventKind string

const (
	LedgerEventCharge LedgerEventKind = "charge"
	LedgerEventTrade  LedgerEventKind = "trade"
	LedgerEventReset  LedgerEventKind = "reset"
	LedgerEventLoad   LedgerEventKind = "load"
)

// LedgerEvent append-only audit entry for one committed ledger mutation.
type LedgerEvent struct {
	Timestamp time.Time       `json:"ts"`
	Key       string          `json:"key"`
	Kind      LedgerEventKind `json:"kind"`
	// Amount charged amount for charge events.
	Amount decimal.Decimal `json:"amount,omitempty"`
	// Balance balance after the mutation.
	Balance decimal.Decimal `json:"balance"`
	Trade   *TradeRecord    `json:"trade,omitempty"`
}

// NewLedgerEvent creates a new LedgerEvent.
func NewLedgerEvent(ts time.Time, key string, kind LedgerEventKind, balance decimal.Decimal) LedgerEvent {
	return LedgerEvent{
		Timestamp: ts,
		Key:       key,
		Kind:      kind,
		Balance:   balance,
	}
}

// LedgerEventRecord bundles an event with its journal index.
type LedgerEventRecord struct {
	Index uint64
	Event LedgerEvent
}
