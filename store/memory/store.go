package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/store"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

var _ store.Store = (*Store)(nil)

type reservationKey struct {
	stream types.StreamID
	viewer types.AccountID
}

type settlementKey struct {
	stream types.StreamID
	from   uint32
}

// Store keeps every record in process memory. Records are copied on the
// way in and on the way out, so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	streams      map[types.StreamID]*stream.Stream
	reservations map[reservationKey]*escrow.Reservation
	settlements  []*escrow.Settlement
	settled      map[settlementKey]struct{}
}

func New() *Store {
	return &Store{
		streams:      make(map[types.StreamID]*stream.Stream),
		reservations: make(map[reservationKey]*escrow.Reservation),
		settled:      make(map[settlementKey]struct{}),
	}
}

// Stream Store implementation
func (s *Store) CreateStream(_ context.Context, st *stream.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[st.ID]; exists {
		return tickstream.ErrStreamExists
	}
	s.streams[st.ID] = st.Clone()
	return nil
}

func (s *Store) GetStream(_ context.Context, streamID types.StreamID) (*stream.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.streams[streamID]; ok {
		return st.Clone(), nil
	}
	return nil, tickstream.ErrStreamNotFound
}

func (s *Store) ListStreams(_ context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*stream.Stream
	for _, st := range s.streams {
		if opts.Creator != "" && st.Creator != opts.Creator {
			continue
		}
		result = append(result, st.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].ID[:], result[j].ID[:]) < 0
	})

	return page(result, opts.Offset, opts.Limit), nil
}

// Escrow Store implementation
func (s *Store) PutReservation(_ context.Context, r *escrow.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[r.StreamID]; !ok {
		return tickstream.ErrStreamNotFound
	}
	s.reservations[reservationKey{r.StreamID, r.Viewer}] = r.Clone()
	return nil
}

func (s *Store) GetReservation(_ context.Context, streamID types.StreamID, viewer types.AccountID) (*escrow.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.reservations[reservationKey{streamID, viewer}]; ok {
		return r.Clone(), nil
	}
	return nil, tickstream.ErrReservationNotFound
}

func (s *Store) ListReservations(_ context.Context, streamID types.StreamID) ([]*escrow.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*escrow.Reservation
	for k, r := range s.reservations {
		if k.stream == streamID {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Viewer < result[j].Viewer })
	return result, nil
}

func (s *Store) SettleTick(_ context.Context, stl *escrow.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint64(stl.FromTick)+uint64(stl.Ticks) != uint64(stl.ToTick) {
		return fmt.Errorf("%w: settlement %d + %d != %d", tickstream.ErrInvalidInput, stl.FromTick, stl.Ticks, stl.ToTick)
	}

	st, ok := s.streams[stl.StreamID]
	if !ok {
		return tickstream.ErrStreamNotFound
	}
	if st.LastTick != stl.FromTick {
		return tickstream.ErrTickConflict
	}
	if _, dup := s.settled[settlementKey{stl.StreamID, stl.FromTick}]; dup {
		return tickstream.ErrTickConflict
	}

	r, ok := s.reservations[reservationKey{stl.StreamID, stl.Viewer}]
	if !ok {
		return tickstream.ErrReservationNotFound
	}
	remaining, err := r.Amount.CheckedSub(stl.Cost)
	if err != nil {
		return tickstream.ErrInsufficientBalance
	}

	r.Amount = remaining
	r.Touch(stl.SettledAt)
	st.LastTick = stl.ToTick
	st.Touch(stl.SettledAt)

	c := *stl
	s.settlements = append(s.settlements, &c)
	s.settled[settlementKey{stl.StreamID, stl.FromTick}] = struct{}{}
	return nil
}

func (s *Store) ListSettlements(_ context.Context, streamID types.StreamID, opts escrow.ListOpts) ([]*escrow.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*escrow.Settlement
	for _, stl := range s.settlements {
		if stl.StreamID != streamID {
			continue
		}
		if opts.Viewer != "" && stl.Viewer != opts.Viewer {
			continue
		}
		c := *stl
		result = append(result, &c)
	}
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Snapshot is a detached, comparable copy of the full store state.
type Snapshot struct {
	Streams      []stream.Stream
	Reservations []escrow.Reservation
	Settlements  []escrow.Settlement
}

// Snapshot copies the full store state. Two snapshots taken around a
// failed transition compare equal with reflect.DeepEqual.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	for _, st := range s.streams {
		snap.Streams = append(snap.Streams, *st)
	}
	sort.Slice(snap.Streams, func(i, j int) bool {
		return bytes.Compare(snap.Streams[i].ID[:], snap.Streams[j].ID[:]) < 0
	})

	for _, r := range s.reservations {
		snap.Reservations = append(snap.Reservations, *r)
	}
	sort.Slice(snap.Reservations, func(i, j int) bool {
		a, b := snap.Reservations[i], snap.Reservations[j]
		if c := bytes.Compare(a.StreamID[:], b.StreamID[:]); c != 0 {
			return c < 0
		}
		return a.Viewer < b.Viewer
	})

	for _, stl := range s.settlements {
		snap.Settlements = append(snap.Settlements, *stl)
	}
	return snap
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
