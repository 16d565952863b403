package hdf5store

import (
	"errors"
	"fmt"
	"path/filepath"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

const (
	EventsGroup = "Events"
	EventsTable = "events"
	HitsTable   = "hits"
)

type EventHDF5 struct {
	EventID       uint64  `hdf5:"event_id"`
	TriggerID     int32   `hdf5:"trigger_id"`
	TriggerTS     float64 `hdf5:"trigger_ts"`
	Multiplicity  uint32  `hdf5:"multiplicity"`
	MultiplicityA uint32  `hdf5:"mult_a"`
	MultiplicityB uint32  `hdf5:"mult_b"`
	MultiplicityC uint32  `hdf5:"mult_c"`
	Candidate     uint8   `hdf5:"candidate"`
	SumEnergy     float64 `hdf5:"sum_energy"`
	FirstHit      uint64  `hdf5:"first_hit"`
	NHits         uint32  `hdf5:"n_hits"`
}

type EventHitHDF5 struct {
	EventID     uint64  `hdf5:"event_id"`
	Module      uint8   `hdf5:"module"`
	Channel     uint8   `hdf5:"channel"`
	Timestamp   float64 `hdf5:"timestamp"`
	EnergyLong  uint16  `hdf5:"energy_long"`
	EnergyShort uint16  `hdf5:"energy_short"`
}

// Writer is the output unit of one builder thread.
type Writer struct {
	file        *hdf5.File
	group       *hdf5.Group
	eventsTable *hdf5.Dataset
	hitsTable   *hdf5.Dataset
	nextEventID uint64
	nextHitRow  uint64
}

// EventFileName is the output unit of thread threadID for a run.
func EventFileName(dir string, runNumber, threadID int) string {
	return filepath.Join(dir, fmt.Sprintf("event_run%d_t%d.h5", runNumber, threadID))
}

// Open creates the unit when create is true, otherwise it appends to the
// existing one.
func Open(filename string, create bool, compressionLevel int) (*Writer, error) {
	hdf5Mutex.Lock()
	defer hdf5Mutex.Unlock()

	if create {
		return createWriter(filename, compressionLevel)
	}
	return reopenWriter(filename)
}

func createWriter(filename string, compressionLevel int) (*Writer, error) {
	file, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	w := &Writer{file: file}

	w.group, err = createGroup(file, EventsGroup)
	if err != nil {
		w.close()
		return nil, err
	}
	w.eventsTable, err = createTable(w.group, EventsTable, EventHDF5{}, compressionLevel)
	if err != nil {
		w.close()
		return nil, err
	}
	w.hitsTable, err = createTable(w.group, HitsTable, EventHitHDF5{}, compressionLevel)
	if err != nil {
		w.close()
		return nil, err
	}
	return w, nil
}

func reopenWriter(filename string) (*Writer, error) {
	file, err := openFile(filename, hdf5.F_ACC_RDWR)
	if err != nil {
		return nil, err
	}
	w := &Writer{file: file}

	w.group, err = file.OpenGroup(EventsGroup)
	if err != nil {
		w.close()
		return nil, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: EventsGroup, Err: err}
	}
	w.eventsTable, err = w.group.OpenDataset(EventsTable)
	if err != nil {
		w.close()
		return nil, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: EventsGroup + "/" + EventsTable, Err: err}
	}
	w.hitsTable, err = w.group.OpenDataset(HitsTable)
	if err != nil {
		w.close()
		return nil, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: EventsGroup + "/" + HitsTable, Err: err}
	}

	nEvents, err := tableLength(w.eventsTable)
	if err != nil {
		w.close()
		return nil, err
	}
	nHits, err := tableLength(w.hitsTable)
	if err != nil {
		w.close()
		return nil, err
	}
	w.nextEventID = uint64(nEvents)
	w.nextHitRow = uint64(nHits)
	return w, nil
}

func (w *Writer) WriteEvents(events []eventbuilder.EventRecord) error {
	eventRows := make([]EventHDF5, 0, len(events))
	hitRows := make([]EventHitHDF5, 0, len(events)*4)
	for _, event := range events {
		eventRows = append(eventRows, EventHDF5{
			EventID:       w.nextEventID,
			TriggerID:     event.TriggerDetectorID,
			TriggerTS:     event.TriggerTimestamp,
			Multiplicity:  uint32(event.Multiplicity),
			MultiplicityA: uint32(event.MultiplicityA),
			MultiplicityB: uint32(event.MultiplicityB),
			MultiplicityC: uint32(event.MultiplicityC),
			Candidate:     boolToUint8(event.IsCandidateTrigger),
			SumEnergy:     event.SumEnergy,
			FirstHit:      w.nextHitRow,
			NHits:         uint32(len(event.Hits)),
		})
		for _, hit := range event.Hits {
			hitRows = append(hitRows, EventHitHDF5{
				EventID:     w.nextEventID,
				Module:      hit.Module,
				Channel:     hit.Channel,
				Timestamp:   hit.Timestamp,
				EnergyLong:  hit.EnergyLong,
				EnergyShort: hit.EnergyShort,
			})
		}
		w.nextEventID++
		w.nextHitRow += uint64(len(event.Hits))
	}

	hdf5Mutex.Lock()
	defer hdf5Mutex.Unlock()
	if err := writeArrayToTable(w.eventsTable, &eventRows); err != nil {
		return fmt.Errorf("error writing %s: %w", EventsTable, err)
	}
	if err := writeArrayToTable(w.hitsTable, &hitRows); err != nil {
		return fmt.Errorf("error writing %s: %w", HitsTable, err)
	}
	return nil
}

func (w *Writer) Close() error {
	hdf5Mutex.Lock()
	defer hdf5Mutex.Unlock()
	return w.close()
}

func (w *Writer) close() error {
	var errs []error
	if w.eventsTable != nil {
		errs = append(errs, w.eventsTable.Close())
	}
	if w.hitsTable != nil {
		errs = append(errs, w.hitsTable.Close())
	}
	if w.group != nil {
		errs = append(errs, w.group.Close())
	}
	if w.file != nil {
		errs = append(errs, w.file.Close())
	}
	return errors.Join(errs...)
}

// OpenerFor returns a WriterOpener writing one file per thread into dir.
func OpenerFor(dir string, compressionLevel int) eventbuilder.WriterOpener {
	return func(runNumber, threadID int, create bool) (eventbuilder.EventWriter, error) {
		return Open(EventFileName(dir, runNumber, threadID), create, compressionLevel)
	}
}

// ReadEvents loads both tables of an event file.
func ReadEvents(filename string) ([]EventHDF5, []EventHitHDF5, error) {
	hdf5Mutex.Lock()
	defer hdf5Mutex.Unlock()

	file, err := openFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	group, err := file.OpenGroup(EventsGroup)
	if err != nil {
		return nil, nil, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: EventsGroup, Err: err}
	}
	defer group.Close()

	eventsTable, err := group.OpenDataset(EventsTable)
	if err != nil {
		return nil, nil, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: EventsGroup + "/" + EventsTable, Err: err}
	}
	defer eventsTable.Close()
	hitsTable, err := group.OpenDataset(HitsTable)
	if err != nil {
		return nil, nil, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: EventsGroup + "/" + HitsTable, Err: err}
	}
	defer hitsTable.Close()

	events, err := readTable[EventHDF5](eventsTable)
	if err != nil {
		return nil, nil, err
	}
	hits, err := readTable[EventHitHDF5](hitsTable)
	if err != nil {
		return nil, nil, err
	}
	return events, hits, nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
