package types

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// StreamID is an opaque 128-bit stream identifier chosen by the creator.
// The canonical text form is the unsigned decimal value.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type StreamID [16]byte

var maxStreamID = new(big.Int).Lsh(big.NewInt(1), 128)

// NewStreamID builds a StreamID from its high and low 64-bit halves.
func NewStreamID(hi, lo uint64) StreamID {
	var s StreamID
	binary.BigEndian.PutUint64(s[:8], hi)
	binary.BigEndian.PutUint64(s[8:], lo)
	return s
}

// StreamIDFromUint64 builds a StreamID whose value is n.
func StreamIDFromUint64(n uint64) StreamID { return NewStreamID(0, n) }

// NewRandomStreamID returns a StreamID backed by a random (v4) UUID.
func NewRandomStreamID() StreamID { return StreamID(uuid.New()) }

// ParseStreamID parses the decimal form, or a UUID string.
func ParseStreamID(s string) (StreamID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StreamID{}, fmt.Errorf("types: parse stream id %q: empty string", s)
	}
	if strings.Contains(s, "-") {
		u, err := uuid.Parse(s)
		if err != nil {
			return StreamID{}, fmt.Errorf("types: parse stream id %q: %w", s, err)
		}
		return StreamID(u), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 || n.Cmp(maxStreamID) >= 0 {
		return StreamID{}, fmt.Errorf("types: parse stream id %q: not a 128-bit unsigned integer", s)
	}
	var id StreamID
	n.FillBytes(id[:])
	return id, nil
}

// Hi returns the high 64 bits.
func (s StreamID) Hi() uint64 { return binary.BigEndian.Uint64(s[:8]) }

// Lo returns the low 64 bits.
func (s StreamID) Lo() uint64 { return binary.BigEndian.Uint64(s[8:]) }

// Bytes returns the big-endian encoding.
func (s StreamID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, s[:])
	return b
}

// Hex returns the fixed-width lowercase hex encoding, used as a storage key.
func (s StreamID) Hex() string { return hex.EncodeToString(s[:]) }

// String returns the decimal form.
func (s StreamID) String() string {
	if s.Hi() == 0 {
		return fmt.Sprintf("%d", s.Lo())
	}
	return new(big.Int).SetBytes(s[:]).String()
}

// MarshalText implements encoding.TextMarshaler.
func (s StreamID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StreamID) UnmarshalText(data []byte) error {
	parsed, err := ParseStreamID(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StreamIDFromHex decodes the Hex form.
func StreamIDFromHex(h string) (StreamID, error) {
	var s StreamID
	b, err := hex.DecodeString(h)
	if err != nil {
		return s, fmt.Errorf("types: decode stream id %q: %w", h, err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("types: decode stream id %q: want %d bytes, got %d", h, len(s), len(b))
	}
	copy(s[:], b)
	return s, nil
}

// ErrEmptyAccount is returned when an account identifier is blank.
var ErrEmptyAccount = errors.New("types: empty account id")

// AccountID identifies an account on the funds ledger. It is opaque to
// tickstream and compared byte-wise.
type AccountID string

// Validate returns ErrEmptyAccount for the zero value.
func (a AccountID) Validate() error {
	if strings.TrimSpace(string(a)) == "" {
		return ErrEmptyAccount
	}
	return nil
}

// Key returns a storage-safe encoding of the account (hex), usable as a
// document field name or cache key regardless of the characters in a.
func (a AccountID) Key() string { return hex.EncodeToString([]byte(a)) }

// AccountIDFromKey reverses Key.
func AccountIDFromKey(k string) (AccountID, error) {
	b, err := hex.DecodeString(k)
	if err != nil {
		return "", fmt.Errorf("types: decode account key %q: %w", k, err)
	}
	return AccountID(b), nil
}

// String returns the account as given.
func (a AccountID) String() string { return string(a) }
