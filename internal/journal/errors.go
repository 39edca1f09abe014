package journal

import "errors"

// ErrInvalidEntry is returned by Record for entries missing a chain id or kind.
var ErrInvalidEntry = errors.New("journal: invalid entry")
