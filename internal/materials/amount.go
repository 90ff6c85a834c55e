package materials

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxScale is the number of decimal places an amount may carry.
const MaxScale = 4

// ParseAmount reads user input as a positive decimal quantity.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	return ValidateAmount(amount)
}

// ValidateAmount checks sign and precision of an already decoded amount.
func ValidateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(MaxScale)) {
		return decimal.Zero, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, MaxScale)
	}
	return amount, nil
}
