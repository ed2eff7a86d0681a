// Package admission decides whether an unsigned tick may wait in the
// pending-transaction pool.
//
// The policy is pure: it looks only at the call and its own configuration,
// never at ledger state. Whether a tick can actually be paid for is decided
// later, when the engine applies it.
package admission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/xraph/tickstream/call"
)

var (
	// ErrInvalidCall is returned for any call other than a tick.
	ErrInvalidCall = errors.New("admission: call not admissible unsigned")
	// ErrInvalidTicks is returned for a tick whose count fails the shape checks.
	ErrInvalidTicks = errors.New("admission: invalid tick count")
)

// Defaults.
const (
	DefaultPriority  uint64 = 100
	DefaultLongevity uint64 = 5
	DefaultMaxTicks  uint32 = 60
)

// tagDomainKey is the BLAKE3 key for dedup tags: the ASCII domain name
// zero-padded to 32 bytes. Changing it changes every tag.
var tagDomainKey = [32]byte{
	't', 'i', 'c', 'k', 's', 't', 'r', 'e', 'a', 'm', '.', 'a', 'd', 'm', 'i', 't',
	'.', 't', 'i', 'c', 'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// globalTagMaterial is hashed for every tick under TagScopeGlobal.
var globalTagMaterial = []byte("tick")

// BlockNumber is the host's monotonically increasing ordering context.
type BlockNumber uint64

// Source says where a submission came from.
type Source uint8

const (
	// SourceExternal is a submission relayed from outside the node.
	SourceExternal Source = iota
	// SourceLocal is a submission from the node's own tooling, such as the ticker.
	SourceLocal
	// SourceInBlock is a transaction re-validated while importing a block.
	SourceInBlock
)

func (s Source) String() string {
	switch s {
	case SourceExternal:
		return "external"
	case SourceLocal:
		return "local"
	case SourceInBlock:
		return "in_block"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Tag is an opaque dedup marker. The pool holds at most one pending
// transaction per tag.
type Tag [32]byte

// String returns the hex form of the tag.
func (t Tag) String() string { return fmt.Sprintf("%x", t[:]) }

// TagScope selects how dedup tags are derived.
type TagScope string

const (
	// TagScopeStream gives every (stream, viewer) pair its own admission
	// slot, so each viewer of a stream is metered independently.
	TagScopeStream TagScope = "stream"
	// TagScopeGlobal shares one slot across all streams: at most one
	// pending tick system-wide.
	TagScopeGlobal TagScope = "global"
)

// ParseTagScope parses a configured scope. The empty string selects
// TagScopeStream.
func ParseTagScope(s string) (TagScope, error) {
	switch TagScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", TagScopeStream:
		return TagScopeStream, nil
	case TagScopeGlobal:
		return TagScopeGlobal, nil
	default:
		return "", fmt.Errorf("admission: unknown tag scope %q", s)
	}
}

// Validity is the pool metadata attached to an admitted transaction.
type Validity struct {
	// Priority orders ready transactions; higher goes first.
	Priority uint64
	// Provides lists the tags this transaction occupies while pending.
	Provides []Tag
	// Longevity is how many blocks the transaction stays valid while pending.
	Longevity uint64
	// Propagate marks the transaction for relay to peers.
	Propagate bool
}

// Policy validates unsigned submissions.
type Policy struct {
	priority  uint64
	longevity uint64
	maxTicks  uint32
	scope     TagScope
}

// Option configures a Policy.
type Option func(*Policy)

// WithPriority sets the fixed priority assigned to every admitted tick.
func WithPriority(p uint64) Option {
	return func(pol *Policy) { pol.priority = p }
}

// WithLongevity sets how many blocks an admitted tick stays valid.
func WithLongevity(blocks uint64) Option {
	return func(pol *Policy) { pol.longevity = blocks }
}

// WithMaxTicks bounds the tick count of a single call. Zero disables the bound.
func WithMaxTicks(n uint32) Option {
	return func(pol *Policy) { pol.maxTicks = n }
}

// WithTagScope selects the dedup tag scope.
func WithTagScope(s TagScope) Option {
	return func(pol *Policy) { pol.scope = s }
}

// New returns a Policy with the defaults applied before opts.
func New(opts ...Option) *Policy {
	p := &Policy{
		priority:  DefaultPriority,
		longevity: DefaultLongevity,
		maxTicks:  DefaultMaxTicks,
		scope:     TagScopeStream,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scope returns the configured tag scope.
func (p *Policy) Scope() TagScope { return p.scope }

// Validate decides whether c may enter the pool. Every source is treated
// alike.
func (p *Policy) Validate(_ Source, c call.Call) (Validity, error) {
	if c.Kind != call.KindTick {
		return Validity{}, fmt.Errorf("%w: %s", ErrInvalidCall, c.Kind)
	}
	if c.Ticks == 0 {
		return Validity{}, fmt.Errorf("%w: zero ticks", ErrInvalidTicks)
	}
	if p.maxTicks > 0 && c.Ticks > p.maxTicks {
		return Validity{}, fmt.Errorf("%w: %d exceeds %d", ErrInvalidTicks, c.Ticks, p.maxTicks)
	}

	return Validity{
		Priority:  p.priority,
		Provides:  []Tag{p.Tag(c)},
		Longevity: p.longevity,
		Propagate: true,
	}, nil
}

// Tag returns the dedup tag for a tick call under the configured scope.
func (p *Policy) Tag(c call.Call) Tag {
	if p.scope == TagScopeGlobal {
		return keyedTag(globalTagMaterial)
	}
	// StreamID is fixed-width, so the viewer suffix is unambiguous.
	return keyedTag(append(c.StreamID.Bytes(), string(c.Viewer)...))
}

func keyedTag(data []byte) Tag {
	// NewKeyed only fails on a key of the wrong length.
	hasher, err := blake3.NewKeyed(tagDomainKey[:])
	if err != nil {
		panic("admission: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var t Tag
	copy(t[:], hasher.Sum(nil))
	return t
}
