package domain

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of one whole unit.
// 1 unit == 10^Decimals base units.
const Decimals = 9

// Amount is a non-negative quantity of base units.
type Amount uint64

// Unit is one whole unit expressed in base units.
const Unit Amount = 1_000_000_000

// ParseAmount parses a whole-unit decimal string such as "0.02".
// Fractions finer than one base unit are rejected rather than rounded.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}

	base := d.Shift(Decimals)
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Decimals)
	}
	v := base.BigInt()
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	return Amount(v.Uint64()), nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount in whole units, e.g. "0.01".
func (a Amount) String() string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -Decimals).String()
}

// Add returns a+b or ErrAmountOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if a > math.MaxUint64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// Sub returns a-b or ErrInsufficientFunds when b exceeds a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, ErrInsufficientFunds
	}
	return a - b, nil
}

// MarshalText implements encoding.TextMarshaler using whole units.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using whole units.
func (a *Amount) UnmarshalText(text []byte) error {
	v, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
