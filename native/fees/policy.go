package fees

import (
	"errors"
	"math/big"
)

var (
	ErrPercentOutOfRange = errors.New("fees: percent must be between 0 and 100")
	ErrNilTreasury       = errors.New("fees: treasury not configured")
)

// Policy captures the platform fee configuration applied to campaign
// deposits. FeePercent is a whole percentage in [0, 100].
type Policy struct {
	FeePercent uint64
	Treasury   [20]byte
}

// Valid reports whether the policy can be applied. A zero treasury is only
// acceptable when the fee percent is zero.
func (p Policy) Valid() error {
	if p.FeePercent > 100 {
		return ErrPercentOutOfRange
	}
	if p.FeePercent > 0 && p.Treasury == ([20]byte{}) {
		return ErrNilTreasury
	}
	return nil
}

// Result carries the outcome of applying a fee policy to a gross amount.
type Result struct {
	Fee *big.Int
	Net *big.Int
}

// Apply splits the gross amount into the platform fee and the net remainder.
// The fee is floored integer division, so Fee + Net == Gross holds for every
// input.
func (p Policy) Apply(gross *big.Int) (Result, error) {
	if err := p.Valid(); err != nil {
		return Result{}, err
	}
	amount := new(big.Int)
	if gross != nil {
		amount.Set(gross)
	}
	if amount.Sign() < 0 {
		return Result{}, errors.New("fees: gross amount must be non-negative")
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(p.FeePercent))
	fee.Div(fee, big.NewInt(100))
	net := new(big.Int).Sub(amount, fee)
	return Result{Fee: fee, Net: net}, nil
}
