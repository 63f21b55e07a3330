package geodesk

import "github.com/clarisma/geodesk-go/internal/gderr"

// Error sentinels for errors.Is, one per internal/gderr.Code (spec §7).
// Compare with errors.Is(err, geodesk.ErrCorrupt), not by message text.
var (
	ErrIo              = gderr.New(gderr.Io, "")
	ErrCorrupt         = gderr.New(gderr.Corrupt, "")
	ErrVersionMismatch = gderr.New(gderr.VersionMismatch, "")
	ErrLockConflict    = gderr.New(gderr.LockConflict, "")
	ErrBadExpression   = gderr.New(gderr.BadExpression, "")
	ErrTooManyResults  = gderr.New(gderr.TooManyResults, "")
	ErrRecursionCycle  = gderr.New(gderr.RecursionCycle, "")
	ErrNotFound        = gderr.New(gderr.NotFound, "")
)
