package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/escrow"
	tsstore "github.com/xraph/tickstream/store"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

// compile-time interface check
var _ tsstore.Store = (*Store)(nil)

// Abort messages raised by the settlement triggers.
const (
	abortStreamNotFound      = "tickstream: stream not found"
	abortTickConflict        = "tickstream: tick conflict"
	abortReservationNotFound = "tickstream: reservation not found"
	abortInsufficientBalance = "tickstream: insufficient reserved balance"
)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables, indexes, and triggers.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tickstream/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: tickstream/sqlite: %w", tickstream.ErrMigrationFailed, err)
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
	res, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tickstream.ErrStreamExists
	}
	return nil
}

func (s *Store) GetStream(ctx context.Context, streamID types.StreamID) (*stream.Stream, error) {
	m := new(streamModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", streamID.Hex()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tickstream.ErrStreamNotFound
		}
		return nil, err
	}
	return fromStreamModel(m)
}

func (s *Store) ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	var models []streamModel
	q := s.sdb.NewSelect(&models)

	if opts.Creator != "" {
		q = q.Where("creator = ?", string(opts.Creator))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	m, err := toReservationModel(r)
	if err != nil {
		return err
	}
	if _, err := s.GetStream(ctx, r.StreamID); err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).
		OnConflict("(stream_id, viewer) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetReservation(ctx context.Context, streamID types.StreamID, viewer types.AccountID) (*escrow.Reservation, error) {
	m := new(reservationModel)
	err := s.sdb.NewSelect(m).
		Where("stream_id = ?", streamID.Hex()).
		Where("viewer = ?", string(viewer)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tickstream.ErrReservationNotFound
		}
		return nil, err
	}
	return fromReservationModel(m)
}

func (s *Store) ListReservations(ctx context.Context, streamID types.StreamID) ([]*escrow.Reservation, error) {
	var models []reservationModel
	err := s.sdb.NewSelect(&models).
		Where("stream_id = ?", streamID.Hex()).
		OrderExpr("viewer ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*escrow.Reservation, len(models))
	for i := range models {
		r, err := fromReservationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// SettleTick inserts the settlement row; the triggers installed by
// Migrations check it and apply the debit and tick advance in the same
// statement.
func (s *Store) SettleTick(ctx context.Context, stl *escrow.Settlement) error {
	if uint64(stl.FromTick)+uint64(stl.Ticks) != uint64(stl.ToTick) {
		return fmt.Errorf("%w: settlement %d + %d != %d", tickstream.ErrInvalidInput, stl.FromTick, stl.Ticks, stl.ToTick)
	}
	m, err := toSettlementModel(stl)
	if err != nil {
		return err
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return settleError(err)
	}
	return nil
}

func (s *Store) ListSettlements(ctx context.Context, streamID types.StreamID, opts escrow.ListOpts) ([]*escrow.Settlement, error) {
	var models []settlementModel
	q := s.sdb.NewSelect(&models).Where("stream_id = ?", streamID.Hex())

	if opts.Viewer != "" {
		q = q.Where("viewer = ?", string(opts.Viewer))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("from_tick ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// settleError maps trigger aborts and constraint failures to sentinels.
func settleError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, abortStreamNotFound):
		return tickstream.ErrStreamNotFound
	case strings.Contains(msg, abortTickConflict):
		return tickstream.ErrTickConflict
	case strings.Contains(msg, abortReservationNotFound):
		return tickstream.ErrReservationNotFound
	case strings.Contains(msg, abortInsufficientBalance):
		return tickstream.ErrInsufficientBalance
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return tickstream.ErrTickConflict
	default:
		return err
	}
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
