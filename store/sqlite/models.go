package sqlite

import (
	"fmt"
	"math"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/id"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

// SQLite integers are signed 64-bit, so balances above math.MaxInt64 are
// rejected on write instead of wrapping.

// ==================== Stream models ====================

type streamModel struct {
	grove.BaseModel `grove:"table:tickstream_streams"`

	ID             string    `grove:"id,pk"`
	Creator        string    `grove:"creator"`
	PricePerSecond int64     `grove:"price_per_second"`
	LastTick       int64     `grove:"last_tick"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toStreamModel(s *stream.Stream) (*streamModel, error) {
	price, err := toInteger(s.PricePerSecond)
	if err != nil {
		return nil, err
	}
	return &streamModel{
		ID:             s.ID.Hex(),
		Creator:        string(s.Creator),
		PricePerSecond: price,
		LastTick:       int64(s.LastTick),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}, nil
}

func fromStreamModel(m *streamModel) (*stream.Stream, error) {
	sid, err := types.StreamIDFromHex(m.ID)
	if err != nil {
		return nil, err
	}
	price, err := fromInteger(m.PricePerSecond)
	if err != nil {
		return nil, err
	}
	return &stream.Stream{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             sid,
		Creator:        types.AccountID(m.Creator),
		PricePerSecond: price,
		LastTick:       uint32(m.LastTick),
	}, nil
}

// ==================== Reservation models ====================

type reservationModel struct {
	grove.BaseModel `grove:"table:tickstream_reservations"`

	StreamID  string    `grove:"stream_id,pk"`
	Viewer    string    `grove:"viewer,pk"`
	Amount    int64     `grove:"amount"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toReservationModel(r *escrow.Reservation) (*reservationModel, error) {
	amount, err := toInteger(r.Amount)
	if err != nil {
		return nil, err
	}
	return &reservationModel{
		StreamID:  r.StreamID.Hex(),
		Viewer:    string(r.Viewer),
		Amount:    amount,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func fromReservationModel(m *reservationModel) (*escrow.Reservation, error) {
	sid, err := types.StreamIDFromHex(m.StreamID)
	if err != nil {
		return nil, err
	}
	amount, err := fromInteger(m.Amount)
	if err != nil {
		return nil, err
	}
	return &escrow.Reservation{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		StreamID: sid,
		Viewer:   types.AccountID(m.Viewer),
		Amount:   amount,
	}, nil
}

// ==================== Settlement models ====================

type settlementModel struct {
	grove.BaseModel `grove:"table:tickstream_settlements"`

	ID        string    `grove:"id,pk"`
	StreamID  string    `grove:"stream_id"`
	Viewer    string    `grove:"viewer"`
	Creator   string    `grove:"creator"`
	Ticks     int64     `grove:"ticks"`
	Cost      int64     `grove:"cost"`
	FromTick  int64     `grove:"from_tick"`
	ToTick    int64     `grove:"to_tick"`
	SettledAt time.Time `grove:"settled_at"`
}

func toSettlementModel(s *escrow.Settlement) (*settlementModel, error) {
	cost, err := toInteger(s.Cost)
	if err != nil {
		return nil, err
	}
	return &settlementModel{
		ID:        s.ID.String(),
		StreamID:  s.StreamID.Hex(),
		Viewer:    string(s.Viewer),
		Creator:   string(s.Creator),
		Ticks:     int64(s.Ticks),
		Cost:      cost,
		FromTick:  int64(s.FromTick),
		ToTick:    int64(s.ToTick),
		SettledAt: s.SettledAt,
	}, nil
}

func fromSettlementModel(m *settlementModel) (*escrow.Settlement, error) {
	settlementID, err := id.ParseSettlementID(m.ID)
	if err != nil {
		return nil, err
	}
	sid, err := types.StreamIDFromHex(m.StreamID)
	if err != nil {
		return nil, err
	}
	cost, err := fromInteger(m.Cost)
	if err != nil {
		return nil, err
	}
	return &escrow.Settlement{
		ID:        settlementID,
		StreamID:  sid,
		Viewer:    types.AccountID(m.Viewer),
		Creator:   types.AccountID(m.Creator),
		Ticks:     uint32(m.Ticks),
		Cost:      cost,
		FromTick:  uint32(m.FromTick),
		ToTick:    uint32(m.ToTick),
		SettledAt: m.SettledAt,
	}, nil
}

// ==================== Helpers ====================

func toInteger(b types.Balance) (int64, error) {
	if uint64(b) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: tickstream/sqlite: balance %d exceeds column range", tickstream.ErrArithmeticOverflow, b)
	}
	return int64(b), nil
}

func fromInteger(n int64) (types.Balance, error) {
	if n < 0 {
		return 0, fmt.Errorf("tickstream/sqlite: invalid balance %d", n)
	}
	return types.Balance(n), nil
}
