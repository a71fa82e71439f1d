package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount is a currency-tagged decimal value. The numeric part is carried as a
// decimal string so no precision is lost crossing JSON or database boundaries;
// arithmetic and comparison go through math/big.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// NewAmount validates and builds an Amount. The value must parse as a decimal
// number and the currency must be a non-empty ticker.
func NewAmount(value, currency string) (Amount, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return Amount{}, Validation("currency", "must not be empty")
	}
	if _, ok := new(big.Rat).SetString(value); !ok {
		return Amount{}, Validation("amount", "%q is not a decimal number", value)
	}
	return Amount{Value: value, Currency: currency}, nil
}

// MustAmount builds an Amount and panics on invalid input. For constants and
// tests only.
func MustAmount(value, currency string) Amount {
	a, err := NewAmount(value, currency)
	if err != nil {
		panic(err)
	}
	return a
}

// Rat returns the numeric value as a big.Rat. A zero Amount yields zero.
func (a Amount) Rat() *big.Rat {
	if a.Value == "" {
		return new(big.Rat)
	}
	r, ok := new(big.Rat).SetString(a.Value)
	if !ok {
		return new(big.Rat)
	}
	return r
}

// IsZero reports whether the amount is unset or numerically zero.
func (a Amount) IsZero() bool {
	return a.Value == "" || a.Rat().Sign() == 0
}

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool {
	return a.Rat().Sign() < 0
}

// Cmp compares two amounts of the same currency. It returns -1, 0 or +1, or
// an error when the currencies differ.
func (a Amount) Cmp(b Amount) (int, error) {
	if a.Currency != b.Currency {
		return 0, Validation("currency", "cannot compare %s with %s", a.Currency, b.Currency)
	}
	return a.Rat().Cmp(b.Rat()), nil
}

// GreaterThan reports whether a is strictly greater than b. Currency
// mismatches compare as false with the error surfaced.
func (a Amount) GreaterThan(b Amount) (bool, error) {
	c, err := a.Cmp(b)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

func (a Amount) String() string {
	if a.Value == "" {
		return "0 " + a.Currency
	}
	return fmt.Sprintf("%s %s", a.Value, a.Currency)
}
