package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultEntropyBuckets     = 20
	DefaultEntropyThreshold   = 0.8
	entropyFlatRangeTolerance = 1e-12
)

// EntropyUncertainty bins the changes into a fixed-width histogram over
// [min,max] and returns the Shannon entropy normalised to [0,1].
// The result is invariant to a positive scaling of the input.
func EntropyUncertainty(changes []float64, buckets int) (float64, error) {
	if len(changes) == 0 {
		return 0, fmt.Errorf("entropy of empty series: %w", ErrInsufficientData)
	}
	if buckets <= 1 {
		buckets = DefaultEntropyBuckets
	}

	lo, hi := floats.Min(changes), floats.Max(changes)
	span := hi - lo
	if span == 0 || span <= entropyFlatRangeTolerance*math.Max(math.Abs(lo), math.Abs(hi)) {
		return 0, nil
	}

	dist := make([]float64, buckets)
	for _, c := range changes {
		idx := int((c - lo) / span * float64(buckets))
		if idx >= buckets {
			idx = buckets - 1
		}
		dist[idx]++
	}
	floats.Scale(1/float64(len(changes)), dist)

	return stat.Entropy(dist) / math.Log(float64(buckets)), nil
}

func IsHighUncertainty(entropy, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultEntropyThreshold
	}
	return entropy > threshold
}
