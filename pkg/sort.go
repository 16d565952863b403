package eventbuilder

import (
	"sync"

	"golang.org/x/exp/slices"
)

func compareHits(a, b Hit) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	}
	return 0
}

// sortHits sorts by timestamp using up to nThreads goroutines: chunks are
// sorted concurrently and then merged pairwise. Equal timestamps keep no
// particular order.
func sortHits(hits []Hit, nThreads int) {
	const minChunk = 1 << 14
	nChunks := nThreads
	if nChunks > len(hits)/minChunk {
		nChunks = len(hits) / minChunk
	}
	if nChunks < 2 {
		slices.SortFunc(hits, compareHits)
		return
	}

	bounds := make([]int, nChunks+1)
	for i := range bounds {
		bounds[i] = i * len(hits) / nChunks
	}

	var wg sync.WaitGroup
	for i := 0; i < nChunks; i++ {
		wg.Add(1)
		go func(chunk []Hit) {
			defer wg.Done()
			slices.SortFunc(chunk, compareHits)
		}(hits[bounds[i]:bounds[i+1]])
	}
	wg.Wait()

	src := hits
	dst := make([]Hit, len(hits))
	for len(bounds) > 2 {
		next := make([]int, 0, len(bounds)/2+2)
		for i := 0; i+1 < len(bounds); i += 2 {
			next = append(next, bounds[i])
			if i+2 >= len(bounds) {
				// odd chunk out, carried over unchanged
				copy(dst[bounds[i]:bounds[i+1]], src[bounds[i]:bounds[i+1]])
				continue
			}
			wg.Add(1)
			go func(lo, mid, hi int) {
				defer wg.Done()
				mergeHits(dst[lo:hi], src[lo:mid], src[mid:hi])
			}(bounds[i], bounds[i+1], bounds[i+2])
		}
		next = append(next, bounds[len(bounds)-1])
		wg.Wait()
		bounds = next
		src, dst = dst, src
	}
	if &src[0] != &hits[0] {
		copy(hits, src)
	}
}

func mergeHits(dst, a, b []Hit) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Timestamp < a[i].Timestamp {
			dst[k] = b[j]
			j++
		} else {
			dst[k] = a[i]
			i++
		}
		k++
	}
	k += copy(dst[k:], a[i:])
	copy(dst[k:], b[j:])
}
