package compass

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

type testRecord struct {
	board, channel uint16
	timestamp      uint64
	energy         uint16
	energyShort    uint16
	flags          uint32
	samples        []uint16
}

func writeCompassFile(t *testing.T, header uint16, records []testRecord) string {
	t.Helper()
	layout := Layout{Header: header}
	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, header)
	for _, r := range records {
		binary.Write(&buf, le, hitHeader{Board: r.board, Channel: r.channel, Timestamp: r.timestamp})
		if layout.Has(FlagEnergy) {
			binary.Write(&buf, le, r.energy)
		}
		if layout.Has(FlagEnergyCalibrated) {
			binary.Write(&buf, le, float64(r.energy)*1.5)
		}
		if layout.Has(FlagEnergyShort) {
			binary.Write(&buf, le, r.energyShort)
		}
		binary.Write(&buf, le, r.flags)
		if layout.Has(FlagWaveform) {
			buf.WriteByte(1)
			binary.Write(&buf, le, uint32(len(r.samples)))
			binary.Write(&buf, le, r.samples)
		}
	}
	filename := filepath.Join(t.TempDir(), "hits.BIN")
	if err := os.WriteFile(filename, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return filename
}

var sampleRecords = []testRecord{
	{board: 0, channel: 3, timestamp: 1000000, energy: 512, energyShort: 100, flags: 0x4000},
	{board: 2, channel: 15, timestamp: 1500000, energy: 20, energyShort: 5, flags: 0},
	{board: 1, channel: 0, timestamp: 2000000, energy: 4095, energyShort: 900, flags: 0x1, samples: []uint16{1, 2, 3}},
}

func TestSource_ShouldDecodeEveryLayout(t *testing.T) {
	layouts := map[string]uint16{
		"energy":             headerMagic | FlagEnergy,
		"energy and short":   headerMagic | FlagEnergy | FlagEnergyShort,
		"calibrated":         headerMagic | FlagEnergy | FlagEnergyCalibrated | FlagEnergyShort,
		"waveforms":          headerMagic | FlagEnergy | FlagEnergyShort | FlagWaveform,
		"waveforms and cal.": headerMagic | FlagEnergy | FlagEnergyCalibrated | FlagEnergyShort | FlagWaveform,
	}
	for name, header := range layouts {
		t.Run(name, func(t *testing.T) {
			filename := writeCompassFile(t, header, sampleRecords)
			source := NewSource()

			n, err := source.CountHits(filename)
			if err != nil {
				t.Fatalf("CountHits: %v", err)
			}
			if n != len(sampleRecords) {
				t.Errorf("expected %d records, got %d", len(sampleRecords), n)
			}

			hits, err := source.ReadHits(filename)
			if err != nil {
				t.Fatalf("ReadHits: %v", err)
			}
			if len(hits) != len(sampleRecords) {
				t.Fatalf("expected %d hits, got %d", len(sampleRecords), len(hits))
			}
			layout := Layout{Header: header}
			for i, r := range sampleRecords {
				want := eventbuilder.RawHit{
					Module:     uint8(r.board),
					Channel:    uint8(r.channel),
					Timestamp:  float64(r.timestamp),
					EnergyLong: r.energy,
					Valid:      r.flags != 0,
				}
				if layout.Has(FlagEnergyShort) {
					want.EnergyShort = r.energyShort
				}
				if hits[i] != want {
					t.Errorf("hit %d: expected %+v, got %+v", i, want, hits[i])
				}
			}
		})
	}
}

func TestSource_WhenLastRecordTruncated_ShouldDropIt(t *testing.T) {
	filename := writeCompassFile(t, headerMagic|FlagEnergy, sampleRecords)
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(filename, data[:len(data)-3], 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	hits, err := NewSource().ReadHits(filename)
	if err != nil {
		t.Fatalf("ReadHits: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 complete hits, got %d", len(hits))
	}
}

func TestSource_WhenBoardOrChannelTooLarge_ShouldSkipRecord(t *testing.T) {
	records := []testRecord{
		sampleRecords[0],
		{board: 300, channel: 1, timestamp: 1100000, energy: 50, flags: 0x4000},
		{board: 1, channel: 256, timestamp: 1200000, energy: 60, flags: 0x4000, samples: []uint16{7, 8}},
		sampleRecords[2],
	}
	filename := writeCompassFile(t, headerMagic|FlagEnergy|FlagWaveform, records)
	source := NewSource()

	hits, err := source.ReadHits(filename)
	if err != nil {
		t.Fatalf("ReadHits: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Module != 0 || hits[1].Module != 1 || hits[1].Timestamp != 2000000 {
		t.Errorf("unexpected hits %+v", hits)
	}
	if source.Skipped() != 2 {
		t.Errorf("expected 2 skipped records, got %d", source.Skipped())
	}
}

func TestSource_WhenHeaderWrong_ShouldFail(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "junk.BIN")
	if err := os.WriteFile(filename, []byte{0x12, 0x34, 0, 0}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewSource().ReadHits(filename)
	if !errors.Is(err, ErrNotCompassFile) {
		t.Fatalf("expected ErrNotCompassFile, got %v", err)
	}
	var missing *eventbuilder.ErrMissingDataset
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingDataset, got %v", err)
	}
}

func TestSource_WhenFileMissing_ShouldReturnErrOpenFile(t *testing.T) {
	_, err := NewSource().CountHits(filepath.Join(t.TempDir(), "missing.BIN"))
	var openErr *eventbuilder.ErrOpenFile
	if !errors.As(err, &openErr) {
		t.Fatalf("expected ErrOpenFile, got %v", err)
	}
}

func TestLayout_RecordSize(t *testing.T) {
	tests := []struct {
		header uint16
		want   int
	}{
		{headerMagic, 16},
		{headerMagic | FlagEnergy, 18},
		{headerMagic | FlagEnergy | FlagEnergyShort, 20},
		{headerMagic | FlagEnergy | FlagEnergyCalibrated | FlagEnergyShort, 28},
		{headerMagic | FlagEnergy | FlagEnergyShort | FlagWaveform, 25},
	}
	for _, tt := range tests {
		if got := (Layout{Header: tt.header}).RecordSize(); got != tt.want {
			t.Errorf("header 0x%04x: expected %d, got %d", tt.header, tt.want, got)
		}
	}
}
