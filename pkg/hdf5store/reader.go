package hdf5store

import (
	"errors"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

const (
	RawHitsGroup = "Hits"
	RawHitsTable = "hits"
)

// RawHitHDF5 is the row layout of the raw hit table written by the
// acquisition converter. FineTS is in ps.
type RawHitHDF5 struct {
	Mod         uint8   `hdf5:"Mod"`
	Ch          uint8   `hdf5:"Ch"`
	FineTS      float64 `hdf5:"FineTS"`
	ChargeLong  uint16  `hdf5:"ChargeLong"`
	ChargeShort uint16  `hdf5:"ChargeShort"`
	Flags       uint32  `hdf5:"Flags"`
}

// Source implements eventbuilder.HitSource for HDF5 raw hit files.
type Source struct{}

func NewSource() *Source {
	return &Source{}
}

func openRawTable(filename string) (*hdf5.File, *hdf5.Group, *hdf5.Dataset, error) {
	file, err := openFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, nil, nil, err
	}
	group, err := file.OpenGroup(RawHitsGroup)
	if err != nil {
		file.Close()
		return nil, nil, nil, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: RawHitsGroup, Err: err}
	}
	dset, err := group.OpenDataset(RawHitsTable)
	if err != nil {
		group.Close()
		file.Close()
		return nil, nil, nil, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: RawHitsGroup + "/" + RawHitsTable, Err: err}
	}
	return file, group, dset, nil
}

func closeAll(dset *hdf5.Dataset, group *hdf5.Group, file *hdf5.File) error {
	return errors.Join(dset.Close(), group.Close(), file.Close())
}

// CountHits reads the table extent only.
func (s *Source) CountHits(filename string) (int, error) {
	hdf5Mutex.Lock()
	defer hdf5Mutex.Unlock()

	file, group, dset, err := openRawTable(filename)
	if err != nil {
		return 0, err
	}
	defer closeAll(dset, group, file)

	length, err := tableLength(dset)
	return int(length), err
}

func (s *Source) ReadHits(filename string) ([]eventbuilder.RawHit, error) {
	hdf5Mutex.Lock()
	file, group, dset, err := openRawTable(filename)
	if err != nil {
		hdf5Mutex.Unlock()
		return nil, err
	}
	rows, err := readTable[RawHitHDF5](dset)
	closeAll(dset, group, file)
	hdf5Mutex.Unlock()
	if err != nil {
		return nil, err
	}

	hits := make([]eventbuilder.RawHit, len(rows))
	for i, row := range rows {
		hits[i] = eventbuilder.RawHit{
			Module:      row.Mod,
			Channel:     row.Ch,
			Timestamp:   row.FineTS,
			EnergyLong:  row.ChargeLong,
			EnergyShort: row.ChargeShort,
			Valid:       row.Flags != 0,
		}
	}
	return hits, nil
}

// WriteRawHits creates a raw hit file, as produced by the acquisition
// converter.
func WriteRawHits(filename string, hits []eventbuilder.RawHit, compressionLevel int) error {
	hdf5Mutex.Lock()
	defer hdf5Mutex.Unlock()

	file, err := createFile(filename)
	if err != nil {
		return err
	}
	group, err := createGroup(file, RawHitsGroup)
	if err != nil {
		file.Close()
		return err
	}
	dset, err := createTable(group, RawHitsTable, RawHitHDF5{}, compressionLevel)
	if err != nil {
		group.Close()
		file.Close()
		return err
	}

	rows := make([]RawHitHDF5, len(hits))
	for i, hit := range hits {
		rows[i] = RawHitHDF5{
			Mod:         hit.Module,
			Ch:          hit.Channel,
			FineTS:      hit.Timestamp,
			ChargeLong:  hit.EnergyLong,
			ChargeShort: hit.EnergyShort,
		}
		if hit.Valid {
			rows[i].Flags = 1
		}
	}
	err = writeArrayToTable(dset, &rows)
	return errors.Join(err, closeAll(dset, group, file))
}
