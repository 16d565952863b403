package eventbuilder

import (
	"fmt"
	"time"
)

// RunStats accumulates the statistics of all the batches of a run.
type RunStats struct {
	Batches      int
	EmptyBatches int
	Load         LoadStats
	Build        BuildStats
	Duration     time.Duration
}

// RunEventBuilding processes files filesPerLoop at a time: load, merge,
// correlate and write, then drop the hits before the next batch. Only
// output errors stop the run.
func RunEventBuilding(files []string, filesPerLoop int, loader *HitLoader, builder *EventBuilder) (RunStats, error) {
	start := time.Now()
	if filesPerLoop < 1 {
		filesPerLoop = len(files)
	}

	var stats RunStats
	for len(files) > 0 {
		n := filesPerLoop
		if n > len(files) {
			n = len(files)
		}
		batch := files[:n]
		files = files[n:]
		stats.Batches++

		logger.Info(fmt.Sprintf("Batch %d: loading %d files, %d left", stats.Batches, len(batch), len(files)), "run")
		hits, loadStats := loader.Load(batch)
		stats.Load.add(loadStats)
		if loadStats.Warnings > 0 {
			logger.Warn(fmt.Sprintf("batch %d finished loading with %d warnings (%d files failed, %d empty)",
				stats.Batches, loadStats.Warnings, loadStats.FailedFiles, loadStats.EmptyFiles), "run")
		}
		if len(hits) == 0 {
			stats.EmptyBatches++
			logger.Warn(fmt.Sprintf("batch %d has no hits, moving to next batch", stats.Batches), "run")
			continue
		}

		buildStats, err := builder.Build(hits)
		stats.Build.add(buildStats)
		if err != nil {
			return stats, fmt.Errorf("error building events in batch %d: %w", stats.Batches, err)
		}
		logger.Info(fmt.Sprintf("Batch %d: %d hits, %d events", stats.Batches, len(hits), buildStats.Events), "run")
	}
	stats.Duration = time.Since(start)
	return stats, nil
}
