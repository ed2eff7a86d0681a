package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/escrow"
	tsstore "github.com/xraph/tickstream/store"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

// Collection name constants.
const (
	colStreams     = "tickstream_streams"
	colSettlements = "tickstream_settlements"
)

// compile-time interface check
var _ tsstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tickstream collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: tickstream/mongo: migrate %s indexes: %w", tickstream.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Stream Store ====================

func (s *Store) CreateStream(ctx context.Context, st *stream.Stream) error {
	m, err := toStreamModel(st)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tickstream.ErrStreamExists
		}
		return fmt.Errorf("tickstream/mongo: create stream: %w", err)
	}
	return nil
}

func (s *Store) GetStream(ctx context.Context, streamID types.StreamID) (*stream.Stream, error) {
	m, err := s.findStream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	return fromStreamModel(m)
}

func (s *Store) ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	var models []streamModel

	filter := bson.M{}
	if opts.Creator != "" {
		filter["creator"] = string(opts.Creator)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tickstream/mongo: list streams: %w", err)
	}

	result := make([]*stream.Stream, len(models))
	for i := range models {
		st, err := fromStreamModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

// ==================== Escrow Store ====================

func (s *Store) PutReservation(ctx context.Context, r *escrow.Reservation) error {
	rm, err := toReservationModel(r)
	if err != nil {
		return err
	}
	res, err := s.mdb.NewUpdate((*streamModel)(nil)).
		Filter(bson.M{"_id": r.StreamID.Hex()}).
		SetUpdate(bson.M{"$set": bson.M{
			reservationPath(r.Viewer): rm,
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tickstream/mongo: put reservation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tickstream.ErrStreamNotFound
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, streamID types.StreamID, viewer types.AccountID) (*escrow.Reservation, error) {
	m, err := s.findStream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	rm, ok := m.Reservations[viewer.Key()]
	if !ok {
		return nil, tickstream.ErrReservationNotFound
	}
	return fromReservationModel(streamID, rm)
}

func (s *Store) ListReservations(ctx context.Context, streamID types.StreamID) ([]*escrow.Reservation, error) {
	m, err := s.findStream(ctx, streamID)
	if err != nil {
		if errors.Is(err, tickstream.ErrStreamNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return reservationsOf(m)
}

// SettleTick debits the reservation and advances last_tick with one
// conditional update on the stream document, then appends the settlement.
// If the append fails the document update is rolled back.
func (s *Store) SettleTick(ctx context.Context, stl *escrow.Settlement) error {
	if uint64(stl.FromTick)+uint64(stl.Ticks) != uint64(stl.ToTick) {
		return fmt.Errorf("%w: settlement %d + %d != %d", tickstream.ErrInvalidInput, stl.FromTick, stl.Ticks, stl.ToTick)
	}
	cost, err := toDecimal128(stl.Cost)
	if err != nil {
		return err
	}
	debit, err := negDecimal128(stl.Cost)
	if err != nil {
		return err
	}
	sm, err := toSettlementModel(stl)
	if err != nil {
		return err
	}

	path := reservationPath(stl.Viewer)
	res, err := s.mdb.NewUpdate((*streamModel)(nil)).
		Filter(bson.M{
			"_id":            stl.StreamID.Hex(),
			"last_tick":      int64(stl.FromTick),
			path + ".amount": bson.M{"$gte": cost},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{path + ".amount": debit},
			"$set": bson.M{
				"last_tick":          int64(stl.ToTick),
				"updated_at":         stl.SettledAt,
				path + ".updated_at": stl.SettledAt,
			},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tickstream/mongo: settle tick: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.explainUnsettled(ctx, stl)
	}

	if _, err := s.mdb.NewInsert(sm).Exec(ctx); err != nil {
		if rbErr := s.unsettle(ctx, stl, cost); rbErr != nil {
			return errors.Join(fmt.Errorf("tickstream/mongo: append settlement: %w", err), rbErr)
		}
		if mongo.IsDuplicateKeyError(err) {
			return tickstream.ErrTickConflict
		}
		return fmt.Errorf("tickstream/mongo: append settlement: %w", err)
	}
	return nil
}

// unsettle reverses the document update made by SettleTick.
func (s *Store) unsettle(ctx context.Context, stl *escrow.Settlement, cost bson.Decimal128) error {
	path := reservationPath(stl.Viewer)
	res, err := s.mdb.NewUpdate((*streamModel)(nil)).
		Filter(bson.M{
			"_id":       stl.StreamID.Hex(),
			"last_tick": int64(stl.ToTick),
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{path + ".amount": cost},
			"$set": bson.M{"last_tick": int64(stl.FromTick)},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tickstream/mongo: roll back settlement: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("tickstream/mongo: roll back settlement: %w", tickstream.ErrTickConflict)
	}
	return nil
}

// explainUnsettled maps a settlement that matched no document to the
// check that stopped it.
func (s *Store) explainUnsettled(ctx context.Context, stl *escrow.Settlement) error {
	m, err := s.findStream(ctx, stl.StreamID)
	if err != nil {
		return err
	}
	if uint32(m.LastTick) != stl.FromTick {
		return tickstream.ErrTickConflict
	}
	if _, ok := m.Reservations[stl.Viewer.Key()]; !ok {
		return tickstream.ErrReservationNotFound
	}
	return tickstream.ErrInsufficientBalance
}

func (s *Store) ListSettlements(ctx context.Context, streamID types.StreamID, opts escrow.ListOpts) ([]*escrow.Settlement, error) {
	var models []settlementModel

	filter := bson.M{"stream_id": streamID.Hex()}
	if opts.Viewer != "" {
		filter["viewer"] = string(opts.Viewer)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "from_tick", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tickstream/mongo: list settlements: %w", err)
	}

	result := make([]*escrow.Settlement, len(models))
	for i := range models {
		stl, err := fromSettlementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = stl
	}
	return result, nil
}

// ==================== Helpers ====================

func (s *Store) findStream(ctx context.Context, streamID types.StreamID) (*streamModel, error) {
	var m streamModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": streamID.Hex()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tickstream.ErrStreamNotFound
		}
		return nil, fmt.Errorf("tickstream/mongo: get stream: %w", err)
	}
	return &m, nil
}

// reservationPath is the dotted field path of a viewer's reservation.
func reservationPath(viewer types.AccountID) string {
	return "reservations." + viewer.Key()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tickstream collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colStreams: {
			{Keys: bson.D{{Key: "creator", Value: 1}}},
		},
		colSettlements: {
			{
				Keys:    bson.D{{Key: "stream_id", Value: 1}, {Key: "from_tick", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "stream_id", Value: 1}, {Key: "viewer", Value: 1}}},
		},
	}
}
