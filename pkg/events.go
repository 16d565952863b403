package eventbuilder

// Hit is a single digitizer record. Timestamps are in ns and already
// corrected by the module clock offset.
type Hit struct {
	Module      uint8
	Channel     uint8
	Timestamp   float64
	EnergyLong  uint16
	EnergyShort uint16
}

// RawHit is a record as stored by the acquisition, before offset
// correction and unit scaling.
type RawHit struct {
	Module      uint8
	Channel     uint8
	Timestamp   float64
	EnergyLong  uint16
	EnergyShort uint16
	Valid       bool
}

// EventRecord is a group of hits around one trigger hit. Hit timestamps are
// relative to the trigger, which sits at 0.
type EventRecord struct {
	Hits               []Hit
	TriggerDetectorID  int32
	TriggerTimestamp   float64
	Multiplicity       int
	MultiplicityA      int
	MultiplicityB      int
	MultiplicityC      int
	SumEnergy          float64
	IsCandidateTrigger bool
}

// HitSource is the read side of the record store.
type HitSource interface {
	// CountHits returns the number of records in a file without decoding
	// them.
	CountHits(filename string) (int, error)
	// ReadHits returns all the records of a file in file order.
	ReadHits(filename string) ([]RawHit, error)
}

// EventWriter is one output unit of the record store.
type EventWriter interface {
	WriteEvents(events []EventRecord) error
	Close() error
}

// WriterOpener opens the output unit owned by one builder thread. When
// create is true the unit is (re)created, otherwise events are appended to
// the existing one.
type WriterOpener func(runNumber int, threadID int, create bool) (EventWriter, error)

// HistogramWriter persists the time offset residual histograms.
type HistogramWriter interface {
	WriteHistograms(filename string, hists []*Histogram) error
}
