package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfiguration_ShouldApplyFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "config.json")
	content := `{
		"data_dir": "/data/run12",
		"run_number": 12,
		"time_window": 250,
		"output_format": "duckdb",
		"categories": {"a": {"min": 0, "max": 9}, "b": {"min": 10, "max": 19}, "c": {"min": 20, "max": 29}}
	}`
	if err := os.WriteFile(filename, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("EVB_TIME_WINDOW", "500")
	t.Setenv("EVB_NUM_WORKERS", "12")

	config, err := LoadConfiguration(filename)
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if config.DataDir != "/data/run12" || config.RunNumber != 12 || config.OutputFormat != "duckdb" {
		t.Errorf("file values not applied: %+v", config)
	}
	if config.TimeWindow != 500 || config.NumWorkers != 12 {
		t.Errorf("env values not applied: window %g, workers %d", config.TimeWindow, config.NumWorkers)
	}
	if config.Categories.B.Min != 10 {
		t.Errorf("categories not applied: %+v", config.Categories)
	}
	// defaults survive
	if config.InputFormat != "hdf5" || config.TimestampScale != 1e-3 || config.OutputBatchSize != 10000 {
		t.Errorf("defaults lost: %+v", config)
	}
}

func TestLoadConfiguration_WhenNoFile_ShouldUseDefaults(t *testing.T) {
	config, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if config.FilesPerLoop != 10 || config.OffsetHistBins != 10000 || config.ModSettings != "modSettings.json" {
		t.Errorf("unexpected defaults %+v", config)
	}
}

func TestLoadConfiguration_WhenEnvMalformed_ShouldFail(t *testing.T) {
	t.Setenv("EVB_RUN_NUMBER", "twelve")
	if _, err := LoadConfiguration(""); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestApplyFlags_ShouldOverrideOnlyGivenFlags(t *testing.T) {
	config := defaultConfiguration()
	config.NumWorkers = 6

	cl, fs, err := parseFlags([]string{"-r", "7", "-w", "80", "-l", "3"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	applyFlags(&config, cl, fs)

	if config.RunNumber != 7 || config.TimeWindow != 80 || config.FilesPerLoop != 3 {
		t.Errorf("flags not applied: %+v", config)
	}
	if config.NumWorkers != 6 {
		t.Errorf("expected workers untouched, got %d", config.NumWorkers)
	}
}

func TestGetFileList_ShouldSortAndLimit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"run_3.h5", "run_1.h5", "run_2.h5", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	files, err := GetFileList(dir, "*.h5", 2)
	if err != nil {
		t.Fatalf("GetFileList: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "run_1.h5" || filepath.Base(files[1]) != "run_2.h5" {
		t.Errorf("unexpected files %v", files)
	}
}

func TestOutputPath_ShouldPlaceCalibrationFilesTogether(t *testing.T) {
	config := defaultConfiguration()
	config.OutputDir = "/out/run7"

	offsets := outputPath(config.OutputDir, config.TimeOffsetFile)
	hists := outputPath(config.OutputDir, config.TimeOffsetHists)
	if filepath.Dir(offsets) != "/out/run7" || filepath.Dir(hists) != "/out/run7" {
		t.Errorf("expected both files in /out/run7, got %s and %s", offsets, hists)
	}
	if got := outputPath(config.OutputDir, "/calib/offsets.json"); got != "/calib/offsets.json" {
		t.Errorf("absolute paths should be kept, got %s", got)
	}
}
