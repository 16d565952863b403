package eventbuilder

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/exp/slices"
)

const (
	EstimatorMean = "mean"
	EstimatorMode = "mode"
)

type TimeOffsetParameters struct {
	// Minimum separation between two pulser firings, ns
	QuiescenceGap float64
	// Raw timestamp to ns
	TimestampScale float64
	Estimator      string
	NBins          int
	HistMin        float64
	HistMax        float64
}

func DefaultTimeOffsetParameters() TimeOffsetParameters {
	return TimeOffsetParameters{
		QuiescenceGap:  10.e3,
		TimestampScale: 1.e-3,
		Estimator:      EstimatorMean,
		NBins:          10000,
		HistMin:        -5000,
		HistMax:        5000,
	}
}

// TimeOffsetCalibrator measures the clock offset of every module against
// the lowest numbered one using the pulser channels.
type TimeOffsetCalibrator struct {
	modules     []ModuleConfig
	moduleIndex map[uint8]int
	source      HitSource
	params      TimeOffsetParameters
	hists       []*Histogram
	observed    map[uint8]struct{}
	warnings    int
}

func NewTimeOffsetCalibrator(modules []ModuleConfig, source HitSource, params TimeOffsetParameters) *TimeOffsetCalibrator {
	sorted := slices.Clone(modules)
	slices.SortFunc(sorted, func(a, b ModuleConfig) int {
		return int(a.Module) - int(b.Module)
	})

	c := &TimeOffsetCalibrator{
		modules:     sorted,
		moduleIndex: make(map[uint8]int, len(sorted)),
		source:      source,
		params:      params,
		observed:    make(map[uint8]struct{}),
	}
	for i, mod := range sorted {
		c.moduleIndex[mod.Module] = i
		name := fmt.Sprintf("histTimeOffsetMod%d", mod.Module)
		title := fmt.Sprintf("Time offset for module %d", mod.Module)
		c.hists = append(c.hists, NewHistogram(name, title, params.NBins, params.HistMin, params.HistMax))
	}
	return c
}

// pulserFiring collects the pulser timestamps of one firing, one per
// module.
type pulserFiring struct {
	ts    []float64
	fired []bool
}

// Calculate scans the files and returns the offset of each module. Files
// that cannot be read are skipped. A mismatch between the modules seen in
// the data and the configured ones is fatal.
func (c *TimeOffsetCalibrator) Calculate(files []string) (map[uint8]float64, error) {
	if len(c.modules) == 0 {
		return nil, fmt.Errorf("%w: no modules configured", ErrModuleMismatch)
	}

	for _, filename := range files {
		if verbosity > 0 {
			logger.Info(fmt.Sprintf("Scanning pulser hits in %s", filename), "timeOffset")
		}
		hits, err := c.source.ReadHits(filename)
		if err != nil {
			c.warnings++
			logger.Warn(fmt.Sprintf("skipping file: %v", err), "timeOffset")
			continue
		}
		c.scanFile(hits)
	}

	if err := c.checkModules(); err != nil {
		return nil, err
	}

	offsets := make(map[uint8]float64, len(c.modules))
	for i, mod := range c.modules {
		switch c.params.Estimator {
		case EstimatorMode:
			offsets[mod.Module] = c.hists[i].Mode()
		default:
			offsets[mod.Module] = c.hists[i].Mean()
		}
		if c.hists[i].Entries() == 0 {
			c.warnings++
			logger.Warn(fmt.Sprintf("no pulser coincidences for module %d, offset set to 0", mod.Module), "timeOffset")
		}
	}
	return offsets, nil
}

func (c *TimeOffsetCalibrator) scanFile(hits []RawHit) {
	firing := pulserFiring{
		ts:    make([]float64, len(c.modules)),
		fired: make([]bool, len(c.modules)),
	}
	lastTS := 0.
	started := false

	for _, hit := range hits {
		c.observed[hit.Module] = struct{}{}
		i, ok := c.moduleIndex[hit.Module]
		if !ok || !hit.Valid || hit.Channel != c.modules[i].PulserCh {
			continue
		}

		ts := hit.Timestamp * c.params.TimestampScale
		// A pulser hit after a quiet period starts a new firing
		if started && ts-lastTS >= c.params.QuiescenceGap {
			c.closeFiring(&firing)
		}
		firing.ts[i] = ts - c.modules[i].PulserDelay
		firing.fired[i] = true
		lastTS = ts
		started = true
	}
	c.closeFiring(&firing)
}

func (c *TimeOffsetCalibrator) closeFiring(firing *pulserFiring) {
	if firing.fired[0] {
		for i := range firing.ts {
			if firing.fired[i] {
				c.hists[i].Fill(firing.ts[i] - firing.ts[0])
			}
		}
	}
	for i := range firing.fired {
		firing.fired[i] = false
	}
}

func (c *TimeOffsetCalibrator) checkModules() error {
	if verbosity > 0 {
		logger.Info(fmt.Sprintf("Number of modules: %d", len(c.observed)), "timeOffset")
	}
	for mod := range c.observed {
		if _, ok := c.moduleIndex[mod]; !ok {
			return fmt.Errorf("%w: module %d found in data but not in settings", ErrModuleMismatch, mod)
		}
	}
	if len(c.observed) != len(c.modules) {
		return fmt.Errorf("%w: %d modules in data, %d in settings",
			ErrModuleMismatch, len(c.observed), len(c.modules))
	}
	return nil
}

func (c *TimeOffsetCalibrator) Histograms() []*Histogram {
	return c.hists
}

func (c *TimeOffsetCalibrator) Warnings() int {
	return c.warnings
}

type timeOffsetEntry struct {
	Module     uint8   `json:"Module"`
	TimeOffset float64 `json:"TimeOffset"`
}

// SaveTimeOffsets writes the offsets as [{"Module": m, "TimeOffset": t}]
// ordered by module.
func SaveTimeOffsets(filename string, offsets map[uint8]float64) error {
	entries := make([]timeOffsetEntry, 0, len(offsets))
	for mod, offset := range offsets {
		entries = append(entries, timeOffsetEntry{Module: mod, TimeOffset: offset})
	}
	slices.SortFunc(entries, func(a, b timeOffsetEntry) int {
		return int(a.Module) - int(b.Module)
	})
	return writeJSON(filename, entries)
}

// LoadTimeOffsets reads offsets written by SaveTimeOffsets. Every module in
// modules must be present.
func LoadTimeOffsets(filename string, modules []ModuleConfig) (map[uint8]float64, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	var entries []timeOffsetEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing time offsets %s: %w", filename, err)
	}

	offsets := make(map[uint8]float64, len(entries))
	for _, entry := range entries {
		offsets[entry.Module] = entry.TimeOffset
	}
	for _, mod := range modules {
		if _, ok := offsets[mod.Module]; !ok {
			return nil, fmt.Errorf("%w: module %d not in %s", ErrMissingOffset, mod.Module, filename)
		}
	}
	return offsets, nil
}
