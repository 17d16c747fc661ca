package vote

import "github.com/MrWong99/trafficear/pkg/types"

// NoExclusion disables class exclusion in [Plurality].
const NoExclusion = -1

// Argmax returns the index of the largest element of v. Ties resolve to the
// lowest index. An empty vector yields 0.
func Argmax[S types.Score](v []S) int {
	return Plurality(v, NoExclusion)
}

// Plurality returns the index of the largest element of v, ignoring index
// exclude (pass [NoExclusion] to consider every class). Ties resolve to the
// lowest index. Only ordering is used, never magnitudes, so the result is the
// same for soft and quantized scores. If every index is excluded or v is
// empty, Plurality returns 0.
func Plurality[S types.Score](v []S, exclude int) int {
	best := -1
	for i, s := range v {
		if i == exclude {
			continue
		}
		if best < 0 || s > v[best] {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
