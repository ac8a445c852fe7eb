// Package similarity scores how likely two articles are to report the same event.
package similarity

import (
	"math"

	"github.com/DeafMist/event-radar/internal/processing"
)

// Jaccard returns |A∩B| / |A∪B|, or 0 when either set is empty.
func Jaccard(a, b processing.KeywordSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := intersection(a, b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// CosineSet treats both sets as binary vectors: |A∩B| / (sqrt|A| * sqrt|B|).
// It is 0 when either set is empty or they share nothing.
func CosineSet(a, b processing.KeywordSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := intersection(a, b)
	if inter == 0 {
		return 0
	}
	return float64(inter) / (math.Sqrt(float64(len(a))) * math.Sqrt(float64(len(b))))
}

func intersection(a, b processing.KeywordSet) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
