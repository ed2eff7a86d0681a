package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/escrow"
	tsstore "github.com/xraph/tickstream/store"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

// compile-time interface check
var _ tsstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tickstream/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: tickstream/postgres: %w", tickstream.ErrMigrationFailed, err)
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
	res, err := s.pg.NewInsert(toStreamModel(st)).
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
	err := s.pg.NewSelect(m).
		Where("id = $1", streamID.Hex()).
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
	q := s.pg.NewSelect(&models)

	if opts.Creator != "" {
		q = q.Where("creator = $1", string(opts.Creator))
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
	_, err := s.pg.NewInsert(toReservationModel(r)).
		OnConflict("(stream_id, viewer) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil && isForeignKeyViolation(err) {
		return tickstream.ErrStreamNotFound
	}
	return err
}

func (s *Store) GetReservation(ctx context.Context, streamID types.StreamID, viewer types.AccountID) (*escrow.Reservation, error) {
	m := new(reservationModel)
	err := s.pg.NewSelect(m).
		Where("stream_id = $1", streamID.Hex()).
		Where("viewer = $2", string(viewer)).
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
	err := s.pg.NewSelect(&models).
		Where("stream_id = $1", streamID.Hex()).
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

// settleSQL applies a settlement in one statement. The guard row lock
// pins last_tick; each later step runs only if the previous one matched,
// so the statement either writes all three tables or none.
const settleSQL = `
WITH guard AS (
    SELECT id FROM tickstream_streams
     WHERE id = $2 AND last_tick = $6::bigint
       FOR UPDATE
), debit AS (
    UPDATE tickstream_reservations
       SET amount = amount - $4::numeric, updated_at = $9::timestamptz
     WHERE stream_id = (SELECT id FROM guard) AND viewer = $3 AND amount >= $4::numeric
 RETURNING stream_id
), advance AS (
    UPDATE tickstream_streams
       SET last_tick = $7::bigint, updated_at = $9::timestamptz
     WHERE id = (SELECT stream_id FROM debit)
 RETURNING id
)
INSERT INTO tickstream_settlements (id, stream_id, viewer, creator, ticks, cost, from_tick, to_tick, settled_at)
SELECT $1::text, id, $3::text, $8::text, $5::bigint, $4::numeric, $6::bigint, $7::bigint, $9::timestamptz
  FROM advance
RETURNING id`

func (s *Store) SettleTick(ctx context.Context, stl *escrow.Settlement) error {
	if uint64(stl.FromTick)+uint64(stl.Ticks) != uint64(stl.ToTick) {
		return fmt.Errorf("%w: settlement %d + %d != %d", tickstream.ErrInvalidInput, stl.FromTick, stl.Ticks, stl.ToTick)
	}

	var settled string
	err := s.pg.NewRaw(settleSQL,
		stl.ID.String(),
		stl.StreamID.Hex(),
		string(stl.Viewer),
		toNumeric(stl.Cost),
		int64(stl.Ticks),
		int64(stl.FromTick),
		int64(stl.ToTick),
		string(stl.Creator),
		stl.SettledAt,
	).Scan(ctx, &settled)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return tickstream.ErrTickConflict
	}
	if !isNoRows(err) {
		return err
	}
	return s.explainUnsettled(ctx, stl)
}

// explainUnsettled maps a settlement that matched no rows to the check
// that stopped it.
func (s *Store) explainUnsettled(ctx context.Context, stl *escrow.Settlement) error {
	st, err := s.GetStream(ctx, stl.StreamID)
	if err != nil {
		return err
	}
	if st.LastTick != stl.FromTick {
		return tickstream.ErrTickConflict
	}
	if _, err := s.GetReservation(ctx, stl.StreamID, stl.Viewer); err != nil {
		return err
	}
	return tickstream.ErrInsufficientBalance
}

func (s *Store) ListSettlements(ctx context.Context, streamID types.StreamID, opts escrow.ListOpts) ([]*escrow.Settlement, error) {
	var models []settlementModel
	q := s.pg.NewSelect(&models).Where("stream_id = $1", streamID.Hex())

	if opts.Viewer != "" {
		q = q.Where("viewer = $2", string(opts.Viewer))
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// sqlState is implemented by PostgreSQL driver errors.
type sqlState interface {
	SQLState() string
}

func hasSQLState(err error, code string) bool {
	var e sqlState
	return errors.As(err, &e) && e.SQLState() == code
}

func isUniqueViolation(err error) bool { return hasSQLState(err, "23505") }

func isForeignKeyViolation(err error) bool { return hasSQLState(err, "23503") }
