package engine

import "context"

// Unavailable is the comparator installed when model warm-up failed at
// startup. The process still serves requests; every comparison fails with
// the original warm-up error and therefore scores zero.
type Unavailable struct {
	Reason error
}

// Compare always fails with the warm-up error.
func (u Unavailable) Compare(ctx context.Context, livePath, refPath string) (float64, error) {
	return 0, u.Reason
}
