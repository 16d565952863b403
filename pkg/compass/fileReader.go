// Package compass reads list-mode hit files written by CAEN CoMPASS
// (binary format, version 2).
package compass

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

const (
	headerMagic     uint16 = 0xCAE0
	headerMagicMask uint16 = 0xFFF0

	FlagEnergy           uint16 = 0x0001
	FlagEnergyCalibrated uint16 = 0x0002
	FlagEnergyShort      uint16 = 0x0004
	FlagWaveform         uint16 = 0x0008
)

var ErrNotCompassFile = errors.New("not a CoMPASS binary file")

// hitHeader is the part present in every record.
type hitHeader struct {
	Board     uint16
	Channel   uint16
	Timestamp uint64 // ps
}

// Layout describes which optional fields a file carries.
type Layout struct {
	Header uint16
}

func (l Layout) Has(flag uint16) bool {
	return l.Header&flag != 0
}

// RecordSize is the size of one record without its waveform samples.
func (l Layout) RecordSize() int {
	size := binary.Size(hitHeader{}) + 4 // flags
	if l.Has(FlagEnergy) {
		size += 2
	}
	if l.Has(FlagEnergyCalibrated) {
		size += 8
	}
	if l.Has(FlagEnergyShort) {
		size += 2
	}
	if l.Has(FlagWaveform) {
		size += 1 + 4 // waveform code, number of samples
	}
	return size
}

// Source implements eventbuilder.HitSource for CoMPASS files. Records
// whose board or channel does not fit in a hit are skipped and counted.
type Source struct {
	skipped atomic.Int64
}

func NewSource() *Source {
	return &Source{}
}

func readLayout(r io.Reader, filename string) (Layout, error) {
	var header uint16
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return Layout{}, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: "header", Err: err}
	}
	if header&headerMagicMask != headerMagic {
		return Layout{}, &eventbuilder.ErrMissingDataset{Filename: filename, Dataset: "header",
			Err: fmt.Errorf("%w: header 0x%04x", ErrNotCompassFile, header)}
	}
	return Layout{Header: header}, nil
}

// CountHits uses the file size when records have a fixed size and skips
// over the waveforms otherwise.
func (s *Source) CountHits(filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()

	layout, err := readLayout(file, filename)
	if err != nil {
		return 0, err
	}
	fileInfo, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("error getting file info %s: %w", filename, err)
	}
	recordSize := layout.RecordSize()
	if !layout.Has(FlagWaveform) {
		return int(fileInfo.Size()-2) / recordSize, nil
	}

	count := 0
	nSamplesBinary := make([]byte, 4)
	for {
		if _, err := file.Seek(int64(recordSize-4), io.SeekCurrent); err != nil {
			return count, err
		}
		if _, err := io.ReadFull(file, nSamplesBinary); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return count, err
		}
		nSamples := binary.LittleEndian.Uint32(nSamplesBinary)
		if _, err := file.Seek(int64(nSamples)*2, io.SeekCurrent); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ReadHits decodes every record of the file. A truncated last record is
// dropped.
func (s *Source) ReadHits(filename string) ([]eventbuilder.RawHit, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, 1<<20)
	layout, err := readLayout(reader, filename)
	if err != nil {
		return nil, err
	}

	hits := make([]eventbuilder.RawHit, 0)
	record := make([]byte, layout.RecordSize())
	for {
		if _, err := io.ReadFull(reader, record); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return hits, fmt.Errorf("error reading %s: %w", filename, err)
		}
		hit, nSamples, ok := decodeRecord(record, layout)
		if nSamples > 0 {
			if _, err := reader.Discard(int(nSamples) * 2); err != nil {
				break
			}
		}
		if !ok {
			s.skipped.Add(1)
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Skipped returns the number of records dropped by ReadHits so far.
func (s *Source) Skipped() int64 {
	return s.skipped.Load()
}

// decodeRecord returns ok == false when board or channel overflow a byte.
func decodeRecord(record []byte, layout Layout) (eventbuilder.RawHit, uint32, bool) {
	le := binary.LittleEndian
	board := le.Uint16(record[0:])
	channel := le.Uint16(record[2:])
	hit := eventbuilder.RawHit{
		Module:    uint8(board),
		Channel:   uint8(channel),
		Timestamp: float64(le.Uint64(record[4:])),
	}
	position := 12
	if layout.Has(FlagEnergy) {
		hit.EnergyLong = le.Uint16(record[position:])
		position += 2
	}
	if layout.Has(FlagEnergyCalibrated) {
		position += 8
	}
	if layout.Has(FlagEnergyShort) {
		hit.EnergyShort = le.Uint16(record[position:])
		position += 2
	}
	flags := le.Uint32(record[position:])
	position += 4
	hit.Valid = flags != 0

	var nSamples uint32
	if layout.Has(FlagWaveform) {
		position++ // waveform code
		nSamples = le.Uint32(record[position:])
	}
	return hit, nSamples, board <= math.MaxUint8 && channel <= math.MaxUint8
}
