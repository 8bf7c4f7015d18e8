// Package fees implements basis-point fee arithmetic.
//
// All rates are expressed in basis points over a base of 10,000
// (1 bp = 0.01%). Shares are computed with truncating integer division
// so the fee taker absorbs the rounding loss, never the counterparty.
package fees

import (
	"errors"
	"math/big"

	"github.com/jpgonzalezra/dp2p-engine/internal/amount"
)

const (
	// Base is the basis-point denominator: 10,000 bp = 100%.
	Base = 10_000

	// MaxPlatformFeeBPS caps the platform fee at 1%.
	MaxPlatformFeeBPS = 100

	// MaxAgentFeeBPS caps an agent's fee at 10%.
	MaxAgentFeeBPS = 1_000
)

var ErrInvalidFee = errors.New("fee out of range")

var base = big.NewInt(Base)

// Split divides amt into a fee share and a remainder at rateBPS basis
// points. share = amt * rateBPS / 10000 truncated toward zero;
// remainder = amt - share, so share + remainder == amt always.
//
// rateBPS must be in [0, Base]; amt must be a valid token amount.
func Split(amt *big.Int, rateBPS int64) (share, remainder *big.Int, err error) {
	if rateBPS < 0 || rateBPS > Base {
		return nil, nil, ErrInvalidFee
	}
	if err := amount.Check(amt); err != nil {
		return nil, nil, err
	}

	share = new(big.Int).Mul(amt, big.NewInt(rateBPS))
	share.Quo(share, base)
	remainder = new(big.Int).Sub(amt, share)
	return share, remainder, nil
}

// CheckPlatformFee validates a platform fee rate against its cap.
// The raw input is checked as-is; no clamping.
func CheckPlatformFee(rateBPS int64) error {
	if rateBPS < 0 || rateBPS > MaxPlatformFeeBPS {
		return ErrInvalidFee
	}
	return nil
}

// CheckAgentFee validates an agent fee rate against its cap.
func CheckAgentFee(rateBPS int64) error {
	if rateBPS < 0 || rateBPS > MaxAgentFeeBPS {
		return ErrInvalidFee
	}
	return nil
}
