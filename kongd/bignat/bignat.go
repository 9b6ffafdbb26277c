// Package bignat implements arbitrary-precision non-negative integer
// arithmetic used by every price and payout calculation in the core.
package bignat

import (
	"math/big"

	"github.com/pkg/errors"
)

// BigNat is an arbitrary-precision non-negative integer. The zero value is 0.
// All operations that would otherwise produce a negative value saturate to
// zero instead, matching the "subtract (saturating to zero)" semantics of
// spec.md §4.1.
type BigNat struct {
	v big.Int
}

// Zero returns a BigNat equal to 0.
func Zero() *BigNat {
	return &BigNat{}
}

// FromUint64 builds a BigNat from a uint64.
func FromUint64(n uint64) *BigNat {
	bn := &BigNat{}
	bn.v.SetUint64(n)
	return bn
}

// FromString parses a base-10 non-negative integer string.
func FromString(s string) (*BigNat, error) {
	bn := &BigNat{}
	_, ok := bn.v.SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid BigNat literal: %q", s)
	}
	if bn.v.Sign() < 0 {
		return nil, errors.Errorf("BigNat must be non-negative: %q", s)
	}
	return bn, nil
}

// String renders the base-10 representation.
func (b *BigNat) String() string {
	return b.v.String()
}

// IsZero reports whether b is 0.
func (b *BigNat) IsZero() bool {
	return b.v.Sign() == 0
}

// Cmp compares b to other, returning -1, 0, or +1.
func (b *BigNat) Cmp(other *BigNat) int {
	return b.v.Cmp(&other.v)
}

// Add returns b + other.
func (b *BigNat) Add(other *BigNat) *BigNat {
	out := &BigNat{}
	out.v.Add(&b.v, &other.v)
	return out
}

// Subtract returns b - other, saturating to zero if other > b.
func (b *BigNat) Subtract(other *BigNat) *BigNat {
	out := &BigNat{}
	out.v.Sub(&b.v, &other.v)
	if out.v.Sign() < 0 {
		out.v.SetUint64(0)
	}
	return out
}

// Multiply returns b * other.
func (b *BigNat) Multiply(other *BigNat) *BigNat {
	out := &BigNat{}
	out.v.Mul(&b.v, &other.v)
	return out
}

// Divide returns the floor of b / other, or nil if other is zero. Callers
// must map a nil result to an error; division never silently returns zero.
func (b *BigNat) Divide(other *BigNat) *BigNat {
	if other.v.Sign() == 0 {
		return nil
	}
	out := &BigNat{}
	out.v.Div(&b.v, &other.v)
	return out
}

// Sqrt returns the integer floor of the square root of b, via big.Int's
// Newton's-method based Sqrt. Monotone non-decreasing in b.
func (b *BigNat) Sqrt() *BigNat {
	out := &BigNat{}
	out.v.Sqrt(&b.v)
	return out
}

// ToDecimalPrecision rescales b from fromDP decimal places to toDP decimal
// places: multiplies by 10^(toDP-fromDP) when toDP > fromDP, and floor-divides
// by 10^(fromDP-toDP) otherwise.
func (b *BigNat) ToDecimalPrecision(fromDP, toDP uint8) *BigNat {
	if toDP == fromDP {
		return b.Clone()
	}
	out := &BigNat{}
	if toDP > fromDP {
		scale := pow10(toDP - fromDP)
		out.v.Mul(&b.v, scale)
		return out
	}
	scale := pow10(fromDP - toDP)
	out.v.Div(&b.v, scale)
	return out
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// Clone returns an independent copy of b.
func (b *BigNat) Clone() *BigNat {
	out := &BigNat{}
	out.v.Set(&b.v)
	return out
}

// Uint64 returns b as a uint64. Callers must only use this once a value is
// known to be in range (e.g. reward schedules, bet counts).
func (b *BigNat) Uint64() uint64 {
	return b.v.Uint64()
}

// Min returns the smaller of a and b.
func Min(a, b *BigNat) *BigNat {
	if a.Cmp(b) <= 0 {
		return a.Clone()
	}
	return b.Clone()
}
