package eventbuilder

import (
	"fmt"
	"time"
)

// LoadStats summarises one HitLoader.Load call.
type LoadStats struct {
	Files        int
	FailedFiles  int
	EmptyFiles   int
	Hits         int
	InvalidHits  int
	UnknownHits  int
	Warnings     int
	LoadDuration time.Duration
	SortDuration time.Duration
}

func (s *LoadStats) add(other LoadStats) {
	s.Files += other.Files
	s.FailedFiles += other.FailedFiles
	s.EmptyFiles += other.EmptyFiles
	s.Hits += other.Hits
	s.InvalidHits += other.InvalidHits
	s.UnknownHits += other.UnknownHits
	s.Warnings += other.Warnings
}

// HitLoader decodes raw hit files in parallel and merges them into one time
// ordered sequence.
type HitLoader struct {
	registry *Registry
	source   HitSource
	nThreads int
	tsScale  float64
}

func NewHitLoader(registry *Registry, source HitSource, nThreads int, timestampScale float64) *HitLoader {
	if nThreads < 1 {
		nThreads = 1
	}
	return &HitLoader{
		registry: registry,
		source:   source,
		nThreads: nThreads,
		tsScale:  timestampScale,
	}
}

type loaderResult struct {
	hits  []Hit
	stats LoadStats
}

// Load reads files and returns their hits sorted by corrected timestamp.
// Files that fail to open are reported and left out; an empty result is not
// an error.
func (l *HitLoader) Load(files []string) ([]Hit, LoadStats) {
	start := time.Now()
	nWorkers := l.nThreads
	if nWorkers > len(files) {
		nWorkers = len(files)
	}

	// Cheap count of records to size the buffers once
	counts := make([]int, len(files))
	total := 0
	for i, filename := range files {
		n, err := l.source.CountHits(filename)
		if err != nil {
			// reported by the worker when it fails to read the file
			continue
		}
		counts[i] = n
		total += n
	}

	results := make(chan loaderResult, nWorkers)
	for w := 0; w < nWorkers; w++ {
		capacity := 0
		for i := w; i < len(files); i += nWorkers {
			capacity += counts[i]
		}
		go l.worker(w, nWorkers, files, capacity, results)
	}

	hits := make([]Hit, 0, total)
	var stats LoadStats
	for w := 0; w < nWorkers; w++ {
		result := <-results
		hits = append(hits, result.hits...)
		stats.add(result.stats)
	}
	stats.LoadDuration = time.Since(start)

	start = time.Now()
	sortHits(hits, l.nThreads)
	stats.SortDuration = time.Since(start)
	stats.Hits = len(hits)

	if verbosity > 0 {
		logger.Info(fmt.Sprintf("%d hits loaded from %d files in %d ms (sort %d ms)",
			len(hits), stats.Files, stats.LoadDuration.Milliseconds(), stats.SortDuration.Milliseconds()), "hitLoader")
	}
	return hits, stats
}

// worker owns every nWorkers-th file starting at id.
func (l *HitLoader) worker(id int, nWorkers int, files []string, capacity int, results chan<- loaderResult) {
	local := make([]Hit, 0, capacity)
	var stats LoadStats
	current := ""

	defer func() {
		if r := recover(); r != nil {
			stats.FailedFiles++
			stats.Warnings++
			logger.Error(fmt.Sprintf("hit loader worker %d recovered from panic on file %s: %v", id, current, r))
		}
		results <- loaderResult{hits: local, stats: stats}
	}()

	for i := id; i < len(files); i += nWorkers {
		current = files[i]
		if verbosity > 1 {
			logger.Info(fmt.Sprintf("Worker %d loading hits from %s", id, current), "hitLoader")
		}
		stats.Files++
		before := len(local)
		local = l.loadFile(current, local, &stats)
		if len(local) == before {
			stats.EmptyFiles++
			stats.Warnings++
			logger.Warn(fmt.Sprintf("no valid hits in %s", current), "hitLoader")
		}
	}
}

func (l *HitLoader) loadFile(filename string, local []Hit, stats *LoadStats) []Hit {
	raw, err := l.source.ReadHits(filename)
	if err != nil {
		stats.FailedFiles++
		stats.Warnings++
		logger.Warn(fmt.Sprintf("skipping file: %v", err), "hitLoader")
		return local
	}

	unknown := 0
	for _, hit := range raw {
		if !hit.Valid {
			stats.InvalidHits++
			continue
		}
		if l.registry.Lookup(hit.Module, hit.Channel) == nil {
			unknown++
			continue
		}
		local = append(local, Hit{
			Module:      hit.Module,
			Channel:     hit.Channel,
			Timestamp:   hit.Timestamp*l.tsScale - l.registry.ClockOffset(hit.Module),
			EnergyLong:  hit.EnergyLong,
			EnergyShort: hit.EnergyShort,
		})
	}
	if unknown > 0 {
		stats.UnknownHits += unknown
		stats.Warnings++
		logger.Warn(fmt.Sprintf("%d hits on unconfigured channels in %s", unknown, filename), "hitLoader")
	}
	return local
}
