package postgres

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/id"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

// Balances are NUMERIC(20,0) columns, wide enough for the full uint64 range.

// ==================== Stream models ====================

type streamModel struct {
	grove.BaseModel `grove:"table:tickstream_streams"`

	ID             string          `grove:"id,pk"`
	Creator        string          `grove:"creator"`
	PricePerSecond decimal.Decimal `grove:"price_per_second,type:numeric(20,0)"`
	LastTick       int64           `grove:"last_tick"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toStreamModel(s *stream.Stream) *streamModel {
	return &streamModel{
		ID:             s.ID.Hex(),
		Creator:        string(s.Creator),
		PricePerSecond: toNumeric(s.PricePerSecond),
		LastTick:       int64(s.LastTick),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromStreamModel(m *streamModel) (*stream.Stream, error) {
	sid, err := types.StreamIDFromHex(m.ID)
	if err != nil {
		return nil, err
	}
	price, err := fromNumeric(m.PricePerSecond)
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

	StreamID  string          `grove:"stream_id,pk"`
	Viewer    string          `grove:"viewer,pk"`
	Amount    decimal.Decimal `grove:"amount,type:numeric(20,0)"`
	CreatedAt time.Time       `grove:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toReservationModel(r *escrow.Reservation) *reservationModel {
	return &reservationModel{
		StreamID:  r.StreamID.Hex(),
		Viewer:    string(r.Viewer),
		Amount:    toNumeric(r.Amount),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromReservationModel(m *reservationModel) (*escrow.Reservation, error) {
	sid, err := types.StreamIDFromHex(m.StreamID)
	if err != nil {
		return nil, err
	}
	amount, err := fromNumeric(m.Amount)
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

	ID        string          `grove:"id,pk"`
	StreamID  string          `grove:"stream_id"`
	Viewer    string          `grove:"viewer"`
	Creator   string          `grove:"creator"`
	Ticks     int64           `grove:"ticks"`
	Cost      decimal.Decimal `grove:"cost,type:numeric(20,0)"`
	FromTick  int64           `grove:"from_tick"`
	ToTick    int64           `grove:"to_tick"`
	SettledAt time.Time       `grove:"settled_at"`
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
	cost, err := fromNumeric(m.Cost)
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

func toNumeric(b types.Balance) decimal.Decimal {
	return b.Major(0)
}

func fromNumeric(d decimal.Decimal) (types.Balance, error) {
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("tickstream/postgres: invalid balance %s", d)
	}
	bi := d.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("tickstream/postgres: balance %s out of range", d)
	}
	return types.Balance(bi.Uint64()), nil
}
