package custody

import "github.com/xraph/custody/id"

// ID is the primary identifier type for all Custody entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
