package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

func defaultConfiguration() eventbuilder.Configuration {
	var config eventbuilder.Configuration

	config.DataDir = "."
	config.FilePattern = "*.h5"
	config.InputFormat = "hdf5"
	config.RunNumber = 0
	config.MaxFiles = 0
	config.FilesPerLoop = 10
	config.NumWorkers = 4
	config.Verbosity = 0
	config.ModSettings = "modSettings.json"
	config.ChSettings = "chSettings.json"
	config.TimeOffsetFile = "timeOffset.json"
	config.TimeOffsetHists = "timeOffset.h5"

	config.UseDB = false
	config.DBDriver = "mysql"

	offsets := eventbuilder.DefaultTimeOffsetParameters()
	config.TimestampScale = offsets.TimestampScale
	config.CalibrationFiles = 0
	config.QuiescenceGap = offsets.QuiescenceGap
	config.OffsetEstimator = offsets.Estimator
	config.OffsetHistBins = offsets.NBins
	config.OffsetHistMin = offsets.HistMin
	config.OffsetHistMax = offsets.HistMax

	config.TimeWindow = 1000
	config.MinMultiplicity = 2
	config.EnergyThreshold = 0
	config.Categories = eventbuilder.CategoryRanges{
		A: eventbuilder.IDRange{Min: 0, Max: 99},
		B: eventbuilder.IDRange{Min: 100, Max: 199},
		C: eventbuilder.IDRange{Min: 200, Max: 299},
	}

	config.OutputDir = "."
	config.OutputFormat = "hdf5"
	config.OutputBatchSize = 10000
	config.CompressionLevel = 4
	return config
}

// LoadConfiguration applies the defaults, then the JSON file (if any), then
// the EVB_* environment variables.
func LoadConfiguration(filename string) (eventbuilder.Configuration, error) {
	config := defaultConfiguration()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := json.Unmarshal(data, &config); err != nil {
			return config, err
		}
	}
	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("parse env: %w", err)
	}
	return config, nil
}

func printConfiguration(config eventbuilder.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("Data dir: %s", config.DataDir), "config")
	logger.Info(fmt.Sprintf("File pattern: %s", config.FilePattern), "config")
	logger.Info(fmt.Sprintf("Input format: %s", config.InputFormat), "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("Max files: %d", config.MaxFiles), "config")
	logger.Info(fmt.Sprintf("Files per loop: %d", config.FilesPerLoop), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Use DB: %t", config.UseDB), "config")
	if config.UseDB {
		logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	} else {
		logger.Info(fmt.Sprintf("Module settings: %s", config.ModSettings), "config")
		logger.Info(fmt.Sprintf("Channel settings: %s", config.ChSettings), "config")
	}
	logger.Info(fmt.Sprintf("Time offset file: %s", config.TimeOffsetFile), "config")
	logger.Info(fmt.Sprintf("Timestamp scale: %g", config.TimestampScale), "config")
	logger.Info(fmt.Sprintf("Offset estimator: %s", config.OffsetEstimator), "config")
	logger.Info(fmt.Sprintf("Time window: %g ns", config.TimeWindow), "config")
	logger.Info(fmt.Sprintf("Min multiplicity: %d", config.MinMultiplicity), "config")
	logger.Info(fmt.Sprintf("Energy threshold: %g", config.EnergyThreshold), "config")
	logger.Info(fmt.Sprintf("Output: %s (%s)", config.OutputDir, config.OutputFormat), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
}
