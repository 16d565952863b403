package hdf5store

import (
	"errors"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

const HistogramsGroup = "TimeOffset"

type HistogramBinHDF5 struct {
	LowEdge float64 `hdf5:"bin_low"`
	Content float64 `hdf5:"content"`
}

// HistogramWriter stores each histogram as a table of (low edge, content)
// rows. Underflow and overflow are the first and last rows.
type HistogramWriter struct {
	CompressionLevel int
}

func (hw HistogramWriter) WriteHistograms(filename string, hists []*eventbuilder.Histogram) error {
	hdf5Mutex.Lock()
	defer hdf5Mutex.Unlock()

	file, err := createFile(filename)
	if err != nil {
		return err
	}
	group, err := createGroup(file, HistogramsGroup)
	if err != nil {
		return errors.Join(err, file.Close())
	}

	var errs []error
	for _, hist := range hists {
		table, err := createTable(group, hist.Name, HistogramBinHDF5{}, hw.CompressionLevel)
		if err != nil {
			errs = append(errs, err)
			break
		}
		rows := histogramRows(hist)
		errs = append(errs, writeArrayToTable(table, &rows), table.Close())
	}
	errs = append(errs, group.Close(), file.Close())
	return errors.Join(errs...)
}

func histogramRows(hist *eventbuilder.Histogram) []HistogramBinHDF5 {
	bins := hist.Bins()
	rows := make([]HistogramBinHDF5, 0, len(bins)+2)
	rows = append(rows, HistogramBinHDF5{LowEdge: hist.Min - hist.BinWidth(), Content: hist.Underflow})
	for i, content := range bins {
		rows = append(rows, HistogramBinHDF5{LowEdge: hist.BinLowEdge(i), Content: content})
	}
	rows = append(rows, HistogramBinHDF5{LowEdge: hist.Max, Content: hist.Overflow})
	return rows
}
