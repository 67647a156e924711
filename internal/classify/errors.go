package classify

import "github.com/vidhive/vidhive/internal/classify/remote"

// The sentinel errors live in the remote subpackage to avoid an import cycle;
// they are re-exported here under their original names.
var (
	ErrUnavailable     = remote.ErrUnavailable
	ErrInvalidDecision = remote.ErrInvalidDecision
)
