package portfoliostate

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

// referenceDate epoch of dates written as bare numbers by the mobile app (seconds since 2001-01-01 UTC).
var referenceDate = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// State persisted layout of a portfolio.
// Decimal fields are written as strings; bare JSON numbers are accepted on read.
type State struct {
	Balance      decimal.Decimal `json:"balance"`
	Holdings     []StoredHolding `json:"holdings"`
	TradeHistory []StoredTrade   `json:"tradeHistory"`
}

// StoredHolding is a serializable snapshot of domain.Holding.
type StoredHolding struct {
	CoinID   string          `json:"coinID"`
	CoinName string          `json:"coinName,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// StoredTrade is a serializable snapshot of domain.TradeRecord.
type StoredTrade struct {
	ID           string           `json:"id"`
	CoinID       string           `json:"coinID"`
	CoinSymbol   string           `json:"coinSymbol"`
	CoinName     string           `json:"coinName"`
	Date         storedDate       `json:"date"`
	Type         domain.TradeType `json:"type"`
	Amount       decimal.Decimal  `json:"amount"`
	CurrentPrice decimal.Decimal  `json:"currentPrice"`
}

// storedDate writes RFC 3339 and reads either RFC 3339 or reference-date seconds.
type storedDate time.Time

func (d storedDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).UTC().Format(time.RFC3339Nano))
}

func (d *storedDate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = storedDate(time.Time{})
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return errors.Wrap(err, "parse trade date")
		}
		*d = storedDate(t)
		return nil
	}

	seconds, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.Wrap(err, "parse numeric trade date")
	}
	*d = storedDate(referenceDate.Add(time.Duration(seconds * float64(time.Second))))
	return nil
}

// NewState converts a portfolio into its stored representation.
func NewState(p domain.Portfolio) State {
	state := State{
		Balance:      p.Balance,
		Holdings:     make([]StoredHolding, 0, len(p.Holdings)),
		TradeHistory: make([]StoredTrade, 0, len(p.TradeHistory)),
	}
	for _, h := range p.Holdings {
		state.Holdings = append(state.Holdings, StoredHolding{
			CoinID:   h.CoinID,
			CoinName: h.CoinName,
			Amount:   h.Amount,
		})
	}
	for _, r := range p.TradeHistory {
		state.TradeHistory = append(state.TradeHistory, StoredTrade{
			ID:           r.ID,
			CoinID:       r.CoinID,
			CoinSymbol:   r.CoinSymbol,
			CoinName:     r.CoinName,
			Date:         storedDate(r.Date),
			Type:         r.Type,
			Amount:       r.Amount,
			CurrentPrice: r.CurrentPrice,
		})
	}
	return state
}

// ToPortfolio reconstructs domain.Portfolio from stored data.
// Holdings with a non-positive amount are dropped since the ledger never stores zero entries.
func (s State) ToPortfolio() (domain.Portfolio, error) {
	if s.Balance.IsNegative() {
		return domain.Portfolio{}, errors.Errorf("stored balance is negative: %s", s.Balance.String())
	}

	p := domain.EmptyPortfolio()
	p.Balance = s.Balance

	seen := make(map[string]struct{}, len(s.Holdings))
	for _, h := range s.Holdings {
		if h.CoinID == "" {
			return domain.Portfolio{}, errors.New("stored holding without coin id")
		}
		if _, dup := seen[h.CoinID]; dup {
			return domain.Portfolio{}, errors.Errorf("duplicate stored holding for %s", h.CoinID)
		}
		seen[h.CoinID] = struct{}{}
		if h.Amount.IsNegative() {
			return domain.Portfolio{}, errors.Errorf("stored holding %s is negative", h.CoinID)
		}
		if h.Amount.IsZero() {
			continue
		}
		p.Holdings = append(p.Holdings, domain.Holding{CoinID: h.CoinID, CoinName: h.CoinName, Amount: h.Amount})
	}

	for _, r := range s.TradeHistory {
		if !r.Type.IsValid() {
			return domain.Portfolio{}, errors.Errorf("stored trade %s has unknown type %q", r.ID, r.Type)
		}
		p.TradeHistory = append(p.TradeHistory, domain.TradeRecord{
			ID:           r.ID,
			CoinID:       r.CoinID,
			CoinSymbol:   r.CoinSymbol,
			CoinName:     r.CoinName,
			Date:         time.Time(r.Date),
			Type:         r.Type,
			Amount:       r.Amount,
			CurrentPrice: r.CurrentPrice,
		})
	}
	return p, nil
}

// Encode serializes a portfolio in the stored layout.
func Encode(p domain.Portfolio) ([]byte, error) {
	return json.MarshalIndent(NewState(p), "", "  ")
}

// Decode parses the stored layout, including files written by the mobile app.
func Decode(payload []byte) (domain.Portfolio, error) {
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return domain.Portfolio{}, err
	}
	return state.ToPortfolio()
}
