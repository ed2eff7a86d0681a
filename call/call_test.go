package call

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xraph/tickstream/types"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		c    Call
	}{
		{"create", CreateStream(types.StreamIDFromUint64(1), 10)},
		{"join", JoinStream(types.NewStreamID(7, 9), 5)},
		{"tick", Tick(types.StreamIDFromUint64(1), "viewer", 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.c)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.c {
				t.Errorf("got %+v, want %+v", got, tt.c)
			}
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	c := Tick(types.StreamIDFromUint64(42), "v", 1)
	a, err := Encode(c)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(c)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same call differ")
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	data, err := Encode(Call{Kind: 9})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(data); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestHashOf(t *testing.T) {
	h1, err := HashOf(Tick(types.StreamIDFromUint64(1), "v", 1))
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := HashOf(Tick(types.StreamIDFromUint64(1), "v", 1))
	h3, _ := HashOf(Tick(types.StreamIDFromUint64(2), "v", 1))

	if h1 != h2 {
		t.Error("identical calls hashed differently")
	}
	if h1 == h3 {
		t.Error("calls for different streams share a hash")
	}
	if len(h1.String()) != 64 {
		t.Errorf("unexpected hex length %d", len(h1.String()))
	}
}
