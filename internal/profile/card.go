package profile

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/coinledger/internal/domain"
)

// CardInput raw card details as entered. Only the masked form is ever stored.
type CardInput struct {
	Number      string
	ExpiryMonth int
	// ExpiryYear accepts two or four digits.
	ExpiryYear int
	CVV        string
	HolderName string
}

func (c CardInput) toPaymentCard(now time.Time) (domain.PaymentCard, error) {
	digits := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, c.Number)

	if len(digits) < 13 || len(digits) > 19 || !allDigits(digits) || !luhn(digits) {
		return domain.PaymentCard{}, errors.Wrap(domain.ErrInvalidCard, "card number")
	}
	if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
		return domain.PaymentCard{}, errors.Wrap(domain.ErrInvalidCard, "expiry month")
	}
	year := c.ExpiryYear
	if year >= 0 && year < 100 {
		year += 2000
	}
	// valid through the last day of the expiry month
	expires := time.Date(year, time.Month(c.ExpiryMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.Before(expires) {
		return domain.PaymentCard{}, errors.Wrap(domain.ErrInvalidCard, "card expired")
	}
	if (len(c.CVV) != 3 && len(c.CVV) != 4) || !allDigits(c.CVV) {
		return domain.PaymentCard{}, errors.Wrap(domain.ErrInvalidCard, "cvv")
	}
	holder := strings.TrimSpace(c.HolderName)
	if holder == "" {
		return domain.PaymentCard{}, errors.Wrap(domain.ErrInvalidCard, "holder name")
	}

	return domain.PaymentCard{
		Last4:       digits[len(digits)-4:],
		ExpiryMonth: c.ExpiryMonth,
		ExpiryYear:  year,
		HolderName:  holder,
	}, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}
