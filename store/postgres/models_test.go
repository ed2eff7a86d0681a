package postgres

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tickstream/types"
)

func TestNumericBalance(t *testing.T) {
	for _, b := range []types.Balance{0, 30, types.MaxBalance} {
		got, err := fromNumeric(toNumeric(b))
		if err != nil {
			t.Fatalf("%d: %v", b, err)
		}
		if got != b {
			t.Errorf("got %d, want %d", got, b)
		}
	}
}

func TestFromNumericRejects(t *testing.T) {
	for _, s := range []string{"-1", "0.5", "18446744073709551616"} {
		if _, err := fromNumeric(decimal.RequireFromString(s)); err == nil {
			t.Errorf("expected error for %s", s)
		}
	}
}
