package mongo

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove"

	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/id"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

// Balances are stored as Decimal128 so $inc and $gte stay exact across the
// whole uint64 range.

// ==================== Stream models ====================

// streamModel embeds the stream's reservations keyed by AccountID.Key, so
// a settlement touches a single document.
type streamModel struct {
	grove.BaseModel `grove:"table:tickstream_streams"`

	ID             string                      `grove:"id,pk"            bson:"_id"`
	Creator        string                      `grove:"creator"          bson:"creator"`
	PricePerSecond bson.Decimal128             `grove:"price_per_second" bson:"price_per_second"`
	LastTick       int64                       `grove:"last_tick"        bson:"last_tick"`
	Reservations   map[string]reservationModel `grove:"reservations"     bson:"reservations"`
	CreatedAt      time.Time                   `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time                   `grove:"updated_at"       bson:"updated_at"`
}

type reservationModel struct {
	Viewer    string          `bson:"viewer"`
	Amount    bson.Decimal128 `bson:"amount"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

func toStreamModel(s *stream.Stream) (*streamModel, error) {
	price, err := toDecimal128(s.PricePerSecond)
	if err != nil {
		return nil, err
	}
	return &streamModel{
		ID:             s.ID.Hex(),
		Creator:        string(s.Creator),
		PricePerSecond: price,
		LastTick:       int64(s.LastTick),
		Reservations:   map[string]reservationModel{},
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}, nil
}

func fromStreamModel(m *streamModel) (*stream.Stream, error) {
	sid, err := types.StreamIDFromHex(m.ID)
	if err != nil {
		return nil, err
	}
	price, err := fromDecimal128(m.PricePerSecond)
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

func toReservationModel(r *escrow.Reservation) (reservationModel, error) {
	amount, err := toDecimal128(r.Amount)
	if err != nil {
		return reservationModel{}, err
	}
	return reservationModel{
		Viewer:    string(r.Viewer),
		Amount:    amount,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func fromReservationModel(streamID types.StreamID, m reservationModel) (*escrow.Reservation, error) {
	amount, err := fromDecimal128(m.Amount)
	if err != nil {
		return nil, err
	}
	return &escrow.Reservation{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		StreamID: streamID,
		Viewer:   types.AccountID(m.Viewer),
		Amount:   amount,
	}, nil
}

// reservationsOf returns the embedded reservations ordered by viewer.
func reservationsOf(m *streamModel) ([]*escrow.Reservation, error) {
	sid, err := types.StreamIDFromHex(m.ID)
	if err != nil {
		return nil, err
	}
	result := make([]*escrow.Reservation, 0, len(m.Reservations))
	for _, rm := range m.Reservations {
		r, err := fromReservationModel(sid, rm)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Viewer < result[j].Viewer })
	return result, nil
}

// ==================== Settlement models ====================

type settlementModel struct {
	grove.BaseModel `grove:"table:tickstream_settlements"`

	ID        string          `grove:"id,pk"      bson:"_id"`
	StreamID  string          `grove:"stream_id"  bson:"stream_id"`
	Viewer    string          `grove:"viewer"     bson:"viewer"`
	Creator   string          `grove:"creator"    bson:"creator"`
	Ticks     int64           `grove:"ticks"      bson:"ticks"`
	Cost      bson.Decimal128 `grove:"cost"       bson:"cost"`
	FromTick  int64           `grove:"from_tick"  bson:"from_tick"`
	ToTick    int64           `grove:"to_tick"    bson:"to_tick"`
	SettledAt time.Time       `grove:"settled_at" bson:"settled_at"`
}

func toSettlementModel(s *escrow.Settlement) (*settlementModel, error) {
	cost, err := toDecimal128(s.Cost)
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
	cost, err := fromDecimal128(m.Cost)
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

func toDecimal128(b types.Balance) (bson.Decimal128, error) {
	d, err := bson.ParseDecimal128(b.String())
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("tickstream/mongo: encode balance %d: %w", b, err)
	}
	return d, nil
}

// negDecimal128 encodes -b for use with $inc.
func negDecimal128(b types.Balance) (bson.Decimal128, error) {
	d, err := bson.ParseDecimal128("-" + b.String())
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("tickstream/mongo: encode balance -%d: %w", b, err)
	}
	return d, nil
}

// fromDecimal128 accepts any exponent the server produces as long as the
// value is a non-negative integer within range.
func fromDecimal128(v bson.Decimal128) (types.Balance, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return 0, fmt.Errorf("tickstream/mongo: decode balance %s: %w", v, err)
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("tickstream/mongo: invalid balance %s", v)
	}
	bi := d.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("tickstream/mongo: balance %s out of range", v)
	}
	return types.Balance(bi.Uint64()), nil
}
