package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"github.com/next-exp/eventbuilder_go/pkg/compass"
	"github.com/next-exp/eventbuilder_go/pkg/duckstore"
	"github.com/next-exp/eventbuilder_go/pkg/hdf5store"
)

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

type commandLine struct {
	configFile   string
	timeOffset   bool
	template     bool
	nMods        int
	nChs         int
	dataDir      string
	runNumber    int
	maxFiles     int
	filesPerLoop int
	nThreads     int
	timeWindow   float64
}

func parseFlags(args []string) (commandLine, *flag.FlagSet, error) {
	var cl commandLine
	fs := flag.NewFlagSet("evbuilder", flag.ContinueOnError)
	fs.StringVar(&cl.configFile, "config", "", "Configuration file path")
	fs.BoolVar(&cl.timeOffset, "t", false, "Compute the module time offsets instead of building events")
	fs.BoolVar(&cl.template, "template", false, "Write modSettings.json and chSettings.json templates and exit")
	fs.IntVar(&cl.nMods, "mods", 4, "Number of modules in the templates")
	fs.IntVar(&cl.nChs, "chs", 16, "Number of channels per module in the templates")
	fs.StringVar(&cl.dataDir, "d", "", "Directory with the hit files")
	fs.IntVar(&cl.runNumber, "r", 0, "Run number")
	fs.IntVar(&cl.maxFiles, "f", 0, "Maximum number of files to process")
	fs.IntVar(&cl.filesPerLoop, "l", 0, "Files loaded per loop")
	fs.IntVar(&cl.nThreads, "n", 0, "Number of threads")
	fs.Float64Var(&cl.timeWindow, "w", 0, "Coincidence window width in ns")
	err := fs.Parse(args)
	return cl, fs, err
}

// applyFlags overrides the configuration with the flags given explicitly.
func applyFlags(config *eventbuilder.Configuration, cl commandLine, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			config.DataDir = cl.dataDir
		case "r":
			config.RunNumber = cl.runNumber
		case "f":
			config.MaxFiles = cl.maxFiles
		case "l":
			config.FilesPerLoop = cl.filesPerLoop
		case "n":
			config.NumWorkers = cl.nThreads
		case "w":
			config.TimeWindow = cl.timeWindow
		}
	})
}

func main() {
	cl, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	configuration, err := LoadConfiguration(cl.configFile)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	applyFlags(&configuration, cl, fs)

	eventbuilder.SetLogger(logger)
	eventbuilder.SetVerbosity(configuration.Verbosity)
	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", cl.configFile)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	if cl.template {
		err := eventbuilder.GenerateTemplates(configuration.ModSettings, configuration.ChSettings, cl.nMods, cl.nChs)
		if err != nil {
			logger.Error(fmt.Errorf("Error writing templates: %w", err).Error())
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("Templates written to %s and %s", configuration.ModSettings, configuration.ChSettings), "main")
		return
	}

	if err := run(configuration, cl.timeOffset); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(configuration eventbuilder.Configuration, timeOffsetMode bool) error {
	start := time.Now()

	modules, channels, err := loadSettings(configuration)
	if err != nil {
		return fmt.Errorf("Error loading settings: %w", err)
	}
	registry, err := eventbuilder.NewRegistry(modules, channels, configuration.Categories)
	if err != nil {
		return fmt.Errorf("Error in settings: %w", err)
	}

	source, err := hitSource(configuration.InputFormat)
	if err != nil {
		return err
	}
	defer reportSkipped(source)

	files, err := GetFileList(configuration.DataDir, configuration.FilePattern, configuration.MaxFiles)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files matching %s in %s", configuration.FilePattern, configuration.DataDir)
	}
	logger.Info(fmt.Sprintf("%d files to process", len(files)), "main")

	if timeOffsetMode {
		return calibrateTimeOffsets(configuration, registry, source, files)
	}

	offsets, err := eventbuilder.LoadTimeOffsets(outputPath(configuration.OutputDir, configuration.TimeOffsetFile), registry.Modules())
	if err != nil {
		return fmt.Errorf("Error loading time offsets: %w", err)
	}
	if err := registry.SetClockOffsets(offsets); err != nil {
		return err
	}

	opener, err := writerOpener(configuration)
	if err != nil {
		return err
	}
	loader := eventbuilder.NewHitLoader(registry, source, configuration.NumWorkers, configuration.TimestampScale)
	builder := eventbuilder.NewEventBuilder(registry, configuration.BuildParameters(), opener)

	stats, err := eventbuilder.RunEventBuilding(files, configuration.FilesPerLoop, loader, builder)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Run %d: %d batches (%d empty), %d hits, %d events, %d candidates",
		configuration.RunNumber, stats.Batches, stats.EmptyBatches, stats.Load.Hits, stats.Build.Events,
		stats.Build.Candidates), "main")
	if stats.Load.Warnings > 0 {
		logger.Warn(fmt.Sprintf("%d warnings while loading hits", stats.Load.Warnings), "main")
	}
	logger.Info(fmt.Sprintf("Total time: %d ms", time.Since(start).Milliseconds()), "main")
	return nil
}

func loadSettings(configuration eventbuilder.Configuration) ([]eventbuilder.ModuleConfig, []eventbuilder.ChannelConfig, error) {
	if !configuration.UseDB {
		modules, err := eventbuilder.LoadModuleSettings(configuration.ModSettings)
		if err != nil {
			return nil, nil, err
		}
		channels, err := eventbuilder.LoadChannelSettings(configuration.ChSettings)
		if err != nil {
			return nil, nil, err
		}
		return modules, channels, nil
	}

	dbConn, err := eventbuilder.ConnectToDatabase(configuration.DBDriver, configuration.User,
		configuration.Passwd, configuration.Host, configuration.DBName)
	if err != nil {
		return nil, nil, fmt.Errorf("Error connection to database: %w", err)
	}
	defer dbConn.Close()
	return eventbuilder.LoadSettingsFromDB(dbConn, configuration.RunNumber)
}

func hitSource(format string) (eventbuilder.HitSource, error) {
	switch format {
	case "hdf5":
		return hdf5store.NewSource(), nil
	case "compass":
		return compass.NewSource(), nil
	}
	return nil, fmt.Errorf("unknown input format %q", format)
}

type skippingSource interface {
	Skipped() int64
}

func reportSkipped(source eventbuilder.HitSource) {
	s, ok := source.(skippingSource)
	if !ok || s.Skipped() == 0 {
		return
	}
	logger.Warn(fmt.Sprintf("%d records skipped: board or channel out of range", s.Skipped()), "main")
}

func writerOpener(configuration eventbuilder.Configuration) (eventbuilder.WriterOpener, error) {
	if err := os.MkdirAll(configuration.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("Error creating output dir: %w", err)
	}
	switch configuration.OutputFormat {
	case "hdf5":
		return hdf5store.OpenerFor(configuration.OutputDir, configuration.CompressionLevel), nil
	case "duckdb":
		return duckstore.OpenerFor(configuration.OutputDir), nil
	}
	return nil, fmt.Errorf("unknown output format %q", configuration.OutputFormat)
}

func calibrateTimeOffsets(configuration eventbuilder.Configuration, registry *eventbuilder.Registry,
	source eventbuilder.HitSource, files []string) error {
	if configuration.CalibrationFiles > 0 && len(files) > configuration.CalibrationFiles {
		files = files[:configuration.CalibrationFiles]
	}
	calibrator := eventbuilder.NewTimeOffsetCalibrator(registry.Modules(), source, configuration.TimeOffsetParameters())
	offsets, err := calibrator.Calculate(files)
	if err != nil {
		return fmt.Errorf("Error computing time offsets: %w", err)
	}
	for _, mod := range registry.Modules() {
		logger.Info(fmt.Sprintf("Module %d: time offset %.3f ns", mod.Module, offsets[mod.Module]), "timeOffset")
	}

	offsetFile := outputPath(configuration.OutputDir, configuration.TimeOffsetFile)
	histFile := outputPath(configuration.OutputDir, configuration.TimeOffsetHists)
	for _, dir := range []string{filepath.Dir(offsetFile), filepath.Dir(histFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := eventbuilder.SaveTimeOffsets(offsetFile, offsets); err != nil {
		return err
	}
	var histWriter eventbuilder.HistogramWriter = hdf5store.HistogramWriter{CompressionLevel: configuration.CompressionLevel}
	if err := histWriter.WriteHistograms(histFile, calibrator.Histograms()); err != nil {
		// The offsets are already saved.
		logger.Warn(fmt.Sprintf("could not write time offset histograms: %v", err), "timeOffset")
	}
	if calibrator.Warnings() > 0 {
		logger.Warn(fmt.Sprintf("time offset calibration finished with %d warnings", calibrator.Warnings()), "timeOffset")
	}
	return nil
}
