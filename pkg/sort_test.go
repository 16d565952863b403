package eventbuilder

import (
	"math/rand"
	"testing"

	"golang.org/x/exp/slices"
)

func randomHits(rng *rand.Rand, n int) []Hit {
	hits := make([]Hit, n)
	for i := range hits {
		hits[i] = Hit{
			Module:     uint8(rng.Intn(4)),
			Channel:    uint8(rng.Intn(16)),
			Timestamp:  rng.Float64() * 1e9,
			EnergyLong: uint16(i),
		}
	}
	return hits
}

func TestSortHits_ShouldMatchSequentialSort(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		nThreads int
	}{
		{"small", 1000, 8},
		{"two chunks", 40000, 2},
		{"odd chunks", 100000, 5},
		{"many chunks", 200000, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := randomHits(rand.New(rand.NewSource(int64(tt.n))), tt.n)
			reference := slices.Clone(hits)
			slices.SortFunc(reference, compareHits)

			sortHits(hits, tt.nThreads)
			for i := range hits {
				if hits[i] != reference[i] {
					t.Fatalf("hit %d differs: %+v vs %+v", i, hits[i], reference[i])
				}
			}
		})
	}
}

func TestMergeHits(t *testing.T) {
	a := []Hit{{Timestamp: 1}, {Timestamp: 4}, {Timestamp: 9}}
	b := []Hit{{Timestamp: 2}, {Timestamp: 3}, {Timestamp: 10}, {Timestamp: 11}}
	dst := make([]Hit, len(a)+len(b))

	mergeHits(dst, a, b)
	want := []float64{1, 2, 3, 4, 9, 10, 11}
	for i, ts := range want {
		if dst[i].Timestamp != ts {
			t.Fatalf("position %d: expected %g, got %g", i, ts, dst[i].Timestamp)
		}
	}
}
