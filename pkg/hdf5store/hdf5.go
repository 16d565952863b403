// Package hdf5store is the HDF5 record store: raw hit tables in, event
// tables and time offset histograms out.
package hdf5store

import (
	"fmt"
	"sync"

	hdf5 "github.com/jmbenlloch/go-hdf5"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

// The HDF5 library is not built thread safe, every call goes through this
// lock.
var hdf5Mutex sync.Mutex

const tableChunk = 32768

func createFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &eventbuilder.ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func openFile(fname string, flags int) (*hdf5.File, error) {
	f, err := hdf5.OpenFile(fname, flags)
	if err != nil {
		return nil, &eventbuilder.ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &eventbuilder.ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

func createTable(group *hdf5.Group, name string, datatype interface{}, compressionLevel int) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &eventbuilder.ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	// create property list
	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, &eventbuilder.ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()

	chunks := []uint{tableChunk}
	if err := plist.SetChunk(chunks); err != nil {
		return nil, &eventbuilder.ErrCreateTable{TableName: name, Err: err}
	}
	if compressionLevel > 0 {
		if err := plist.SetDeflate(compressionLevel); err != nil {
			return nil, &eventbuilder.ErrCreateTable{TableName: name, Err: err}
		}
	}

	// create the memory data type
	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &eventbuilder.ErrCreateTable{TableName: name, Err: err}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &eventbuilder.ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

func tableLength(dataset *hdf5.Dataset) (uint, error) {
	space := dataset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return 0, err
	}
	if len(dims) == 0 {
		return 0, nil
	}
	return dims[0], nil
}

// writeArrayToTable appends data at the end of a one dimensional table.
func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("error creating dataspace: %w", err)
	}
	defer dataspace.Close()

	// extend
	rowsInTable, err := tableLength(dataset)
	if err != nil {
		return fmt.Errorf("error reading table size: %w", err)
	}
	newsize := []uint{rowsInTable + length}
	if err := dataset.Resize(newsize); err != nil {
		return fmt.Errorf("error resizing table: %w", err)
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{rowsInTable}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return fmt.Errorf("error selecting hyperslab: %w", err)
	}

	if err := dataset.WriteSubset(data, dataspace, filespace); err != nil {
		return fmt.Errorf("error writing table: %w", err)
	}
	return nil
}

// readTable reads a whole one dimensional table.
func readTable[T any](dataset *hdf5.Dataset) ([]T, error) {
	length, err := tableLength(dataset)
	if err != nil {
		return nil, fmt.Errorf("error reading table size: %w", err)
	}
	data := make([]T, length)
	if length == 0 {
		return data, nil
	}
	if err := dataset.Read(&data); err != nil {
		return nil, fmt.Errorf("error reading table: %w", err)
	}
	return data, nil
}
