package geodesk

import "github.com/clarisma/geodesk-go/internal/checker"

// Finding is one validation result surfaced by Verify (spec §4.10).
type Finding = checker.Finding

// Severity classifies a Finding's importance.
type Severity = checker.Severity

const (
	Info    = checker.Info
	Warning = checker.Warning
	Error   = checker.Error
)

// Verify opens path read-only, runs the structural checker over every
// tile, and closes the store before returning. Use this ahead of opening
// a store for serving when the data's provenance is untrusted (spec
// §4.10: "run optionally before opening a store for serving").
func Verify(path string) ([]Finding, error) {
	st, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return checker.Run(st.s)
}
