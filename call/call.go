// Package call defines the transition requests a host dispatches into the
// engine and their deterministic wire encoding.
//
// Calls are encoded with CBOR Core Deterministic Encoding (RFC 8949 §4.2)
// so the same call always produces the same bytes, which makes the
// encoding usable as a transaction hash preimage.
package call

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/xraph/tickstream/types"
)

// Kind identifies the transition a call requests.
type Kind uint8

const (
	KindCreateStream Kind = iota + 1
	KindJoinStream
	KindTick
)

func (k Kind) String() string {
	switch k {
	case KindCreateStream:
		return "create_stream"
	case KindJoinStream:
		return "join_stream"
	case KindTick:
		return "tick"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ErrUnknownKind is returned when decoding a call of an unrecognised kind.
var ErrUnknownKind = errors.New("call: unknown kind")

// Call is a single transition request. Only the fields relevant to Kind
// are set; the rest stay zero and are omitted on the wire.
type Call struct {
	Kind       Kind            `cbor:"1,keyasint"           json:"kind"`
	StreamID   types.StreamID  `cbor:"2,keyasint"           json:"stream_id"`
	Price      types.Balance   `cbor:"3,keyasint,omitempty" json:"price,omitempty"`
	MaxSeconds uint32          `cbor:"4,keyasint,omitempty" json:"max_seconds,omitempty"`
	Viewer     types.AccountID `cbor:"5,keyasint,omitempty" json:"viewer,omitempty"`
	Ticks      uint32          `cbor:"6,keyasint,omitempty" json:"ticks,omitempty"`
}

// CreateStream builds a create_stream call.
func CreateStream(streamID types.StreamID, price types.Balance) Call {
	return Call{Kind: KindCreateStream, StreamID: streamID, Price: price}
}

// JoinStream builds a join_stream call.
func JoinStream(streamID types.StreamID, maxSeconds uint32) Call {
	return Call{Kind: KindJoinStream, StreamID: streamID, MaxSeconds: maxSeconds}
}

// Tick builds a tick call.
func Tick(streamID types.StreamID, viewer types.AccountID, ticks uint32) Call {
	return Call{Kind: KindTick, StreamID: streamID, Viewer: viewer, Ticks: ticks}
}

func (c Call) String() string {
	switch c.Kind {
	case KindCreateStream:
		return fmt.Sprintf("create_stream(%s, %s)", c.StreamID, c.Price)
	case KindJoinStream:
		return fmt.Sprintf("join_stream(%s, %d)", c.StreamID, c.MaxSeconds)
	case KindTick:
		return fmt.Sprintf("tick(%s, %s, %d)", c.StreamID, c.Viewer, c.Ticks)
	default:
		return c.Kind.String()
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("call: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("call: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode returns the deterministic CBOR encoding of c.
func Encode(c Call) ([]byte, error) {
	return encMode.Marshal(c)
}

// Decode parses a call produced by Encode.
func Decode(data []byte) (Call, error) {
	var c Call
	if err := decMode.Unmarshal(data, &c); err != nil {
		return Call{}, fmt.Errorf("call: decode: %w", err)
	}
	switch c.Kind {
	case KindCreateStream, KindJoinStream, KindTick:
		return c, nil
	default:
		return Call{}, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(c.Kind))
	}
}

// Hash is a 32-byte BLAKE3 digest of an encoded call.
type Hash [32]byte

// String returns the hex form of the hash.
func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// HashOf returns the BLAKE3 digest of the call's deterministic encoding.
// Identical calls hash identically.
func HashOf(c Call) (Hash, error) {
	data, err := Encode(c)
	if err != nil {
		return Hash{}, err
	}
	return Hash(blake3.Sum256(data)), nil
}
