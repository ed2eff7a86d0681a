// Package types provides common types used across tickstream.
package types

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"math/bits"
	"strconv"

	"github.com/shopspring/decimal"
)

// ErrOverflow is returned by checked arithmetic that would leave the
// representable range of Balance.
var ErrOverflow = errors.New("types: arithmetic overflow")

// Balance is an unsigned amount in the smallest unit of the funds ledger.
// All arithmetic is integer-only and checked: operations that would wrap
// or go below zero fail instead.
type Balance uint64

// MaxBalance is the largest representable Balance.
const MaxBalance = Balance(math.MaxUint64)

// CheckedAdd returns b + other or ErrOverflow.
func (b Balance) CheckedAdd(other Balance) (Balance, error) {
	sum, carry := bits.Add64(uint64(b), uint64(other), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return Balance(sum), nil
}

// CheckedSub returns b - other or ErrOverflow when other > b.
func (b Balance) CheckedSub(other Balance) (Balance, error) {
	diff, borrow := bits.Sub64(uint64(b), uint64(other), 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return Balance(diff), nil
}

// CheckedMul returns b * qty or ErrOverflow.
func (b Balance) CheckedMul(qty uint64) (Balance, error) {
	hi, lo := bits.Mul64(uint64(b), qty)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return Balance(lo), nil
}

// SaturatingSub returns b - other, clamped at zero.
func (b Balance) SaturatingSub(other Balance) Balance {
	if other > b {
		return 0
	}
	return b - other
}

// IsZero returns true if the amount is zero.
func (b Balance) IsZero() bool { return b == 0 }

// Covers reports whether b is large enough to pay cost.
func (b Balance) Covers(cost Balance) bool { return b >= cost }

// Major returns the balance expressed in major units for the given number
// of decimal places, e.g. Balance(4900).Major(2) = 49.00.
func (b Balance) Major(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(b)), -decimals)
}

// FormatMajor renders Major with a fixed number of decimal places.
func (b Balance) FormatMajor(decimals int32) string {
	return b.Major(decimals).StringFixed(decimals)
}

// String returns the amount in smallest units.
func (b Balance) String() string {
	return strconv.FormatUint(uint64(b), 10)
}

// MarshalJSON encodes the balance as a decimal string so that values above
// 2^53 survive JavaScript consumers.
func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (b *Balance) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n uint64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*b = Balance(n)
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*b = Balance(n)
	return nil
}

// Sum adds the values, failing with ErrOverflow instead of wrapping.
func Sum(values ...Balance) (Balance, error) {
	var total Balance
	for _, v := range values {
		next, err := total.CheckedAdd(v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
