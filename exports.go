package tickstream

import "github.com/xraph/tickstream/types"

// Re-export common types for convenience so users don't have to import types package.

// Balance is re-exported from types package.
type Balance = types.Balance

// StreamID is re-exported from types package.
type StreamID = types.StreamID

// AccountID is re-exported from types package.
type AccountID = types.AccountID

// Re-export constructors
var (
	NewStreamID        = types.NewStreamID
	StreamIDFromUint64 = types.StreamIDFromUint64
	ParseStreamID      = types.ParseStreamID
	Sum                = types.Sum
)
