package tickstream

import "github.com/xraph/tickstream/id"

// ID is the identifier type for settlement and event records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
