package eventbuilder

type Configuration struct {
	DataDir         string `json:"data_dir" env:"EVB_DATA_DIR"`
	FilePattern     string `json:"file_pattern" env:"EVB_FILE_PATTERN"`
	InputFormat     string `json:"input_format" env:"EVB_INPUT_FORMAT"`
	RunNumber       int    `json:"run_number" env:"EVB_RUN_NUMBER"`
	MaxFiles        int    `json:"max_files" env:"EVB_MAX_FILES"`
	FilesPerLoop    int    `json:"files_per_loop" env:"EVB_FILES_PER_LOOP"`
	NumWorkers      int    `json:"num_workers" env:"EVB_NUM_WORKERS"`
	Verbosity       int    `json:"verbosity" env:"EVB_VERBOSITY"`
	ModSettings     string `json:"mod_settings" env:"EVB_MOD_SETTINGS"`
	ChSettings      string `json:"ch_settings" env:"EVB_CH_SETTINGS"`
	TimeOffsetFile  string `json:"time_offset_file" env:"EVB_TIME_OFFSET_FILE"`
	TimeOffsetHists string `json:"time_offset_hists" env:"EVB_TIME_OFFSET_HISTS"`

	UseDB    bool   `json:"use_db" env:"EVB_USE_DB"`
	DBDriver string `json:"db_driver" env:"EVB_DB_DRIVER"`
	Host     string `json:"host" env:"EVB_DB_HOST"`
	User     string `json:"user" env:"EVB_DB_USER"`
	Passwd   string `json:"pass" env:"EVB_DB_PASS"`
	DBName   string `json:"dbname" env:"EVB_DB_NAME"`

	// Raw timestamp units to ns
	TimestampScale   float64        `json:"timestamp_scale" env:"EVB_TIMESTAMP_SCALE"`
	CalibrationFiles int            `json:"calibration_files" env:"EVB_CALIBRATION_FILES"`
	QuiescenceGap    float64        `json:"quiescence_gap" env:"EVB_QUIESCENCE_GAP"`
	OffsetEstimator  string         `json:"offset_estimator" env:"EVB_OFFSET_ESTIMATOR"`
	OffsetHistBins   int            `json:"offset_hist_bins" env:"EVB_OFFSET_HIST_BINS"`
	OffsetHistMin    float64        `json:"offset_hist_min" env:"EVB_OFFSET_HIST_MIN"`
	OffsetHistMax    float64        `json:"offset_hist_max" env:"EVB_OFFSET_HIST_MAX"`
	TimeWindow       float64        `json:"time_window" env:"EVB_TIME_WINDOW"`
	MinMultiplicity  int            `json:"min_multiplicity" env:"EVB_MIN_MULTIPLICITY"`
	EnergyThreshold  float64        `json:"energy_threshold" env:"EVB_ENERGY_THRESHOLD"`
	Categories       CategoryRanges `json:"categories"`
	OutputDir        string         `json:"output_dir" env:"EVB_OUTPUT_DIR"`
	OutputFormat     string         `json:"output_format" env:"EVB_OUTPUT_FORMAT"`
	OutputBatchSize  int            `json:"output_batch_size" env:"EVB_OUTPUT_BATCH_SIZE"`
	CompressionLevel int            `json:"compression_level" env:"EVB_COMPRESSION_LEVEL"`
}

func (c Configuration) TimeOffsetParameters() TimeOffsetParameters {
	return TimeOffsetParameters{
		QuiescenceGap:  c.QuiescenceGap,
		TimestampScale: c.TimestampScale,
		Estimator:      c.OffsetEstimator,
		NBins:          c.OffsetHistBins,
		HistMin:        c.OffsetHistMin,
		HistMax:        c.OffsetHistMax,
	}
}

func (c Configuration) BuildParameters() BuildParameters {
	return BuildParameters{
		RunNumber:       c.RunNumber,
		TimeWindow:      c.TimeWindow,
		NThreads:        c.NumWorkers,
		MinMultiplicity: c.MinMultiplicity,
		EnergyThreshold: c.EnergyThreshold,
		OutputBatchSize: c.OutputBatchSize,
	}
}
