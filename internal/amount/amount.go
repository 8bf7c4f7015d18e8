// Package amount provides shared token amount parsing and formatting.
//
// The engine is token-agnostic: amounts are opaque integer base units
// (the smallest denomination of whatever ERC20-style token an escrow
// holds), stored as big.Int. Decimal scaling belongs to clients.
package amount

import (
	"errors"
	"math/big"
)

// MaxBits is the width of a token balance. Amounts at or above 2^256
// are rejected rather than wrapped.
const MaxBits = 256

var (
	ErrInvalid  = errors.New("invalid amount")
	ErrNegative = errors.New("negative amount")
	ErrOverflow = errors.New("amount exceeds 256 bits")
)

// ceiling is 2^256, the first value too large to hold.
var ceiling = new(big.Int).Lsh(big.NewInt(1), MaxBits)

// Parse converts a base-10 integer string to a big.Int base-unit amount.
//
// Rules:
//   - Empty string is invalid (callers wanting "optional amount" check first)
//   - Negative amounts are rejected
//   - Values at or above 2^256 are rejected
func Parse(s string) (*big.Int, error) {
	if s == "" {
		return nil, ErrInvalid
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ErrInvalid
	}
	if err := Check(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Check validates that an amount is in range for a token balance.
func Check(v *big.Int) error {
	if v == nil {
		return ErrInvalid
	}
	if v.Sign() < 0 {
		return ErrNegative
	}
	if v.Cmp(ceiling) >= 0 {
		return ErrOverflow
	}
	return nil
}

// Format renders an amount as a base-10 string. nil formats as "0".
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
