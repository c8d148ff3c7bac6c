// Package idgen mints the opaque identifiers used for resource ids and
// revisions. The value space only needs to be collision-free; equality is
// the only operation ever performed on an id or a revision.
package idgen

import "github.com/google/uuid"

// New returns a fresh opaque identifier, a 32 hex digit UUID with the
// separating hyphens stripped.
func New() string {
	id := uuid.New()
	return stripHyphens(id.String())
}

func stripHyphens(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			b = append(b, s[i])
		}
	}
	return string(b)
}
