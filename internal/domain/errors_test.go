package domain

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInsufficientBalance, "Insufficient balance"},
		{errors.Wrapf(ErrInvalidAmount, "amount %s", "-1"), "Invalid transaction amount"},
		{fmt.Errorf("trade: %w", ErrNoSuchHolding), "No holdings to sell"},
		{errors.Wrap(ErrMarketUnavailable, "coingecko"), "Can't connect to service"},
		{ErrIncorrectPin, "Incorrect PIN"},
		{errors.New("boom"), "Unknown error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err))
	}
}
