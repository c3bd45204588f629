package engine

import "context"

// Comparator is the face comparison capability the verification flow depends
// on. Implementations return a dissimilarity distance in [0,1] between the
// faces in the two images: 0 is identical, 1 is maximally dissimilar. An
// error means no distance could be produced (no face found, unreadable file,
// model failure); the caller decides what a failed comparison scores.
type Comparator interface {
	Compare(ctx context.Context, livePath, refPath string) (float64, error)
}
