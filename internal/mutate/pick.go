package mutate

import "math/rand"

// Pick chooses one element of items.
//
// A non-nil pickIndex wins and is clamped to the valid range. Otherwise a
// non-nil seed picks pseudo-randomly (the same seed always gives the same
// choice for the same list). Otherwise the first element is returned.
// items must not be empty.
func Pick[T any](items []T, pickIndex *int, seed *int64) T {
	switch {
	case pickIndex != nil:
		idx := *pickIndex
		if idx < 0 {
			idx = 0
		}
		if idx > len(items)-1 {
			idx = len(items) - 1
		}
		return items[idx]
	case seed != nil:
		r := rand.New(rand.NewSource(*seed))
		return items[r.Intn(len(items))]
	default:
		return items[0]
	}
}
