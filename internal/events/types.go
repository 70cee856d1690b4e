package events

import (
	"time"
)

// ProfileSwitched signals that the active profile changed.
// ProfileID is empty when nobody is signed in any more.
type ProfileSwitched struct {
	ProfileID string    `json:"profile_id"`
	Timestamp time.Time `json:"ts"`
}

// PortfolioChanged is published after every committed ledger mutation.
// Uses string fields to avoid float precision issues when consumed by web/UI layers.
type PortfolioChanged struct {
	Timestamp   time.Time `json:"ts"`
	Key         string    `json:"key"`
	Kind        string    `json:"kind"`
	Balance     string    `json:"balance"`
	BalanceText string    `json:"balance_text"`
	Holdings    int       `json:"holdings"`
	Trades      int       `json:"trades"`
	Stale       bool      `json:"stale,omitempty"`
}
