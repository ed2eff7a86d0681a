// Package id defines TypeID-based identity types for tickstream records.
//
// Streams are keyed by caller-chosen 128-bit values (see types.StreamID).
// Records the ledger mints itself use a single ID struct with a prefix that
// identifies the record type, in the format "prefix_suffix".
//
// Settlement IDs are derived from the settlement's position in its stream,
// so replaying the same transitions mints the same IDs. Event IDs are
// random (UUIDv7) and only label deliveries to external sinks.
package id

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all tickstream entity types.
const (
	PrefixSettlement Prefix = "stl" // Tick settlement journal entry
	PrefixEvent      Prefix = "evt" // Emitted domain event
)

// settlementDomainKey keys the settlement ID hash: the ASCII domain name
// zero-padded to 32 bytes.
var settlementDomainKey = [32]byte{
	't', 'i', 'c', 'k', 's', 't', 'r', 'e', 'a', 'm', '.', 'i', 'd', '.', 's', 'e',
	't', 't', 'l', 'e', 'm', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0,
}

// ID is the identifier type for records minted by tickstream.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new random ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "stl_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// SettlementID is a type-safe identifier for settlements (prefix: "stl").
type SettlementID = ID

// EventID is a type-safe identifier for events (prefix: "evt").
type EventID = ID

// SettlementIDFor returns the settlement ID for the tick range that starts
// at fromTick on the given stream. A stream never settles the same range
// twice, so the pair identifies the settlement.
func SettlementIDFor(streamID [16]byte, fromTick uint32) ID {
	// NewKeyed only fails on a key of the wrong length.
	hasher, err := blake3.NewKeyed(settlementDomainKey[:])
	if err != nil {
		panic("id: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(streamID[:])
	var tick [4]byte
	binary.BigEndian.PutUint32(tick[:], fromTick)
	hasher.Write(tick[:])

	var u [16]byte
	copy(u[:], hasher.Sum(nil))
	// Mark as UUIDv8 (custom) with the RFC 9562 variant.
	u[6] = (u[6] & 0x0f) | 0x80
	u[8] = (u[8] & 0x3f) | 0x80

	tid, err := typeid.FromBytes(string(PrefixSettlement), u[:])
	if err != nil {
		panic(fmt.Sprintf("id: settlement id: %v", err))
	}
	return ID{inner: tid, valid: true}
}

// NewEventID generates a new unique event ID.
func NewEventID() ID { return New(PrefixEvent) }

// ParseSettlementID parses a string and validates the "stl" prefix.
func ParseSettlementID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSettlement) }

// ParseEventID parses a string and validates the "evt" prefix.
func ParseEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEvent) }

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}
