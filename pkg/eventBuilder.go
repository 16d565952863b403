package eventbuilder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

type BuildParameters struct {
	RunNumber int
	// Full width of the coincidence window in ns, centred on the trigger
	TimeWindow      float64
	NThreads        int
	MinMultiplicity int
	EnergyThreshold float64
	// Events buffered per thread before each write
	OutputBatchSize int
}

// BuildStats summarises one correlation pass.
type BuildStats struct {
	Triggers     int
	Events       int
	Disqualified int
	Lonely       int
	Candidates   int
	Duration     time.Duration
}

func (s *BuildStats) add(other BuildStats) {
	s.Triggers += other.Triggers
	s.Events += other.Events
	s.Disqualified += other.Disqualified
	s.Lonely += other.Lonely
	s.Candidates += other.Candidates
}

type groupOutcome int

const (
	groupNotTrigger groupOutcome = iota
	groupEmitted
	groupDisqualified
	groupLonely
)

// EventBuilder groups time ordered hits around trigger hits. Every builder
// thread writes to its own output unit, created on the first pass and
// appended to afterwards.
type EventBuilder struct {
	registry *Registry
	params   BuildParameters
	open     WriterOpener
	created  []bool
}

func NewEventBuilder(registry *Registry, params BuildParameters, open WriterOpener) *EventBuilder {
	if params.NThreads < 1 {
		params.NThreads = 1
	}
	if params.OutputBatchSize < 1 {
		params.OutputBatchSize = 1
	}
	return &EventBuilder{
		registry: registry,
		params:   params,
		open:     open,
		created:  make([]bool, params.NThreads),
	}
}

// Build runs one correlation pass over hits, which must be sorted by
// timestamp, and writes the accepted events.
func (b *EventBuilder) Build(hits []Hit) (BuildStats, error) {
	start := time.Now()
	nThreads := b.params.NThreads

	var wg sync.WaitGroup
	threadStats := make([]BuildStats, nThreads)
	threadErrs := make([]error, nThreads)
	for i := 0; i < nThreads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			threadStats[id], threadErrs[id] = b.buildThread(id, hits)
		}(i)
	}
	wg.Wait()

	var stats BuildStats
	for _, s := range threadStats {
		stats.add(s)
	}
	stats.Duration = time.Since(start)

	if verbosity > 0 {
		logger.Info(fmt.Sprintf("%d events from %d triggers (%d disqualified, %d without partner) in %d ms",
			stats.Events, stats.Triggers, stats.Disqualified, stats.Lonely, stats.Duration.Milliseconds()), "eventBuilder")
	}
	return stats, errors.Join(threadErrs...)
}

// buildThread handles every nThreads-th hit starting at id.
func (b *EventBuilder) buildThread(id int, hits []Hit) (stats BuildStats, err error) {
	writer, err := b.open(b.params.RunNumber, id, !b.created[id])
	if err != nil {
		return stats, fmt.Errorf("thread %d: error opening output: %w", id, err)
	}
	b.created[id] = true

	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("thread %d recovered from panic: %v", id, r))
		}
		if closeErr := writer.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("thread %d: error closing output: %w", id, closeErr))
		}
	}()

	batch := make([]EventRecord, 0, b.params.OutputBatchSize)
	for j := id; j < len(hits); j += b.params.NThreads {
		event, outcome := b.searchEvent(hits, j)
		switch outcome {
		case groupNotTrigger:
			continue
		case groupDisqualified:
			stats.Disqualified++
		case groupLonely:
			stats.Lonely++
		case groupEmitted:
			stats.Events++
			if event.IsCandidateTrigger {
				stats.Candidates++
			}
			batch = append(batch, event)
		}
		stats.Triggers++

		if len(batch) >= b.params.OutputBatchSize {
			if err := writer.WriteEvents(batch); err != nil {
				return stats, fmt.Errorf("thread %d: error writing events: %w", id, err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := writer.WriteEvents(batch); err != nil {
			return stats, fmt.Errorf("thread %d: error writing events: %w", id, err)
		}
	}
	return stats, nil
}

// searchEvent builds the group seeded by hits[j]. A hit in the window on a
// trigger channel with a lower detector ID, before or after the seed,
// gives the time region to that trigger and drops the whole group.
func (b *EventBuilder) searchEvent(hits []Hit, j int) (EventRecord, groupOutcome) {
	seed := hits[j]
	trigger := b.registry.Lookup(seed.Module, seed.Channel)
	if trigger == nil || !trigger.IsTrigger {
		return EventRecord{}, groupNotTrigger
	}

	eventTS := seed.Timestamp
	halfWindow := b.params.TimeWindow / 2
	event := EventRecord{
		TriggerDetectorID: trigger.DetectorID,
		TriggerTimestamp:  eventTS,
	}
	group := make([]Hit, 0, 8)
	addHit := func(hit Hit, cfg *ChannelConfig) {
		hit.Timestamp -= eventTS
		group = append(group, hit)
		event.Multiplicity++
		if cfg == nil {
			return
		}
		switch cfg.Category {
		case CategoryA:
			event.MultiplicityA++
		case CategoryB:
			event.MultiplicityB++
		case CategoryC:
			event.MultiplicityC++
		}
		event.SumEnergy += cfg.Calibrate(hit.EnergyLong)
	}
	addHit(seed, trigger)

	for k := j - 1; k >= 0; k-- {
		if hits[k].Timestamp < eventTS-halfWindow {
			break
		}
		cfg := b.registry.Lookup(hits[k].Module, hits[k].Channel)
		if b.ownedByLowerTrigger(cfg, trigger.DetectorID) {
			return EventRecord{}, groupDisqualified
		}
		addHit(hits[k], cfg)
	}

	for k := j + 1; k < len(hits); k++ {
		if hits[k].Timestamp > eventTS+halfWindow {
			break
		}
		cfg := b.registry.Lookup(hits[k].Module, hits[k].Channel)
		if b.ownedByLowerTrigger(cfg, trigger.DetectorID) {
			return EventRecord{}, groupDisqualified
		}
		addHit(hits[k], cfg)
	}

	if event.Multiplicity <= 1 {
		return EventRecord{}, groupLonely
	}

	slices.SortFunc(group, compareHits)
	event.Hits = group
	event.IsCandidateTrigger = event.Multiplicity > b.params.MinMultiplicity &&
		event.SumEnergy > b.params.EnergyThreshold &&
		event.MultiplicityA > 0
	return event, groupEmitted
}

func (b *EventBuilder) ownedByLowerTrigger(cfg *ChannelConfig, triggerID int32) bool {
	return cfg != nil && cfg.IsTrigger && cfg.DetectorID >= 0 && cfg.DetectorID < triggerID
}
