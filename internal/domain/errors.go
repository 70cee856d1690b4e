package domain

import "github.com/pkg/errors"

// Ledger errors. Guard failures are returned wrapped with detail; match them with errors.Is.
var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCoin          = errors.New("invalid coin")
	ErrInvalidTradeType     = errors.New("invalid trade type")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrNoSuchHolding        = errors.New("no such holding")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrPersistence          = errors.New("portfolio persistence failed")
	ErrProfileNotActive     = errors.New("no active profile")
)

// Profile errors.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidPin      = errors.New("invalid pin")
	ErrIncorrectPin    = errors.New("incorrect pin")
	ErrInvalidCard     = errors.New("invalid card")
)

// ErrMarketUnavailable is returned by market providers when live data cannot be fetched.
var ErrMarketUnavailable = errors.New("market data unavailable")

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidAmount, "Invalid transaction amount"},
	{ErrInvalidCoin, "Unknown coin"},
	{ErrInvalidTradeType, "Unknown trade type"},
	{ErrInsufficientBalance, "Insufficient balance"},
	{ErrNoSuchHolding, "No holdings to sell"},
	{ErrInsufficientHoldings, "Insufficient holdings"},
	{ErrPersistence, "Portfolio could not be saved"},
	{ErrProfileNotActive, "No active profile"},
	{ErrProfileNotFound, "User not found"},
	{ErrProfileExists, "Email is already registered"},
	{ErrInvalidEmail, "Invalid email format"},
	{ErrInvalidPin, "PIN must be 4 to 6 digits"},
	{ErrIncorrectPin, "Incorrect PIN"},
	{ErrInvalidCard, "Invalid card details"},
	{ErrMarketUnavailable, "Can't connect to service"},
}

// Reason returns a short human-readable message for err suitable for the UI layer.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "Unknown error"
}
