package escrow

import (
	"fmt"
	"time"

	"github.com/xraph/tickstream/id"
	"github.com/xraph/tickstream/types"
)

// Reservation is the unspent escrow a viewer holds against one stream.
type Reservation struct {
	types.Entity
	StreamID types.StreamID  `json:"stream_id"`
	Viewer   types.AccountID `json:"viewer"`
	Amount   types.Balance   `json:"amount"`
}

// Clone returns a detached copy of the reservation.
func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Settlement journals one successful tick. (StreamID, FromTick) is unique.
type Settlement struct {
	ID        id.SettlementID `json:"id"`
	StreamID  types.StreamID  `json:"stream_id"`
	Viewer    types.AccountID `json:"viewer"`
	Creator   types.AccountID `json:"creator"`
	Ticks     uint32          `json:"ticks"`
	Cost      types.Balance   `json:"cost"`
	FromTick  uint32          `json:"from_tick"`
	ToTick    uint32          `json:"to_tick"`
	SettledAt time.Time       `json:"settled_at"`
}

// Policy decides what a repeated join does with an unspent reservation.
type Policy string

const (
	// PolicyOverwrite replaces the previous reservation amount.
	PolicyOverwrite Policy = "overwrite"
	// PolicyAccumulate adds the new hold to the previous amount.
	PolicyAccumulate Policy = "accumulate"
)

// ParsePolicy maps a config string to a Policy. Empty means overwrite.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyOverwrite:
		return PolicyOverwrite, nil
	case PolicyAccumulate:
		return PolicyAccumulate, nil
	default:
		return "", fmt.Errorf("escrow: unknown reservation policy %q", s)
	}
}
