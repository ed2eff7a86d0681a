// Package origin describes who dispatched a transition.
//
// Stream creation and joining are signed by the acting account. Ticks are
// dispatched with no origin at all: they carry no signature and no
// identity, so the only account they can ever debit is the viewer named in
// the call, and only up to that viewer's own reservation.
package origin

import "github.com/xraph/tickstream/types"

// Kind distinguishes the origin variants.
type Kind uint8

const (
	// KindNone is an unsigned, identity-free dispatch.
	KindNone Kind = iota
	// KindSigned is a dispatch authenticated as one account.
	KindSigned
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSigned:
		return "signed"
	default:
		return "unknown"
	}
}

// Origin is the caller identity of a transition. The zero value is None.
type Origin struct {
	kind    Kind
	account types.AccountID
}

// Signed returns an origin authenticated as account.
func Signed(account types.AccountID) Origin {
	return Origin{kind: KindSigned, account: account}
}

// None returns the unsigned origin.
func None() Origin { return Origin{} }

// Kind returns the variant.
func (o Origin) Kind() Kind { return o.kind }

// IsNone reports whether the origin is unsigned.
func (o Origin) IsNone() bool { return o.kind == KindNone }

// Signer returns the signing account. ok is false for None or for a
// signed origin with a blank account.
func (o Origin) Signer() (types.AccountID, bool) {
	if o.kind != KindSigned || o.account.Validate() != nil {
		return "", false
	}
	return o.account, true
}

func (o Origin) String() string {
	if o.kind == KindSigned {
		return "signed(" + string(o.account) + ")"
	}
	return o.kind.String()
}
