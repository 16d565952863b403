package eventbuilder

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "modernc.org/sqlite"
)

// ConnectToDatabase opens the run database. driver is "mysql" for the
// experiment server or "sqlite" for a local copy, in which case dbname is
// the database file.
func ConnectToDatabase(driver string, user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	switch driver {
	case "mysql":
		port := "3306"
		dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
		return sqlx.Connect("mysql", dbURI)
	case "sqlite":
		db, err := sqlx.Connect("sqlite", dbname)
		if err != nil {
			return nil, err
		}
		// in-memory databases live as long as their connection
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

type moduleSettingsEntry struct {
	Module      int     `db:"Module"`
	NChannels   int     `db:"NChannels"`
	FW          string  `db:"FW"`
	PulserDelay float64 `db:"PulserDelay"`
	PulserCh    int     `db:"PulserCh"`
}

type channelSettingsEntry struct {
	Module         int     `db:"Module"`
	Channel        int     `db:"Channel"`
	IsEventTrigger bool    `db:"IsEventTrigger"`
	DetectorID     int     `db:"DetectorID"`
	ArrayID        int     `db:"ArrayID"`
	HasAC          bool    `db:"HasAC"`
	ACModule       int     `db:"ACModule"`
	ACChannel      int     `db:"ACChannel"`
	P0             float64 `db:"P0"`
	P1             float64 `db:"P1"`
	P2             float64 `db:"P2"`
	P3             float64 `db:"P3"`
}

// LoadSettingsFromDB reads the module and channel settings valid for a run.
func LoadSettingsFromDB(db *sqlx.DB, runNumber int) ([]ModuleConfig, []ChannelConfig, error) {
	modules, err := getModulesFromDB(db, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting module settings from database: %w", err)
		logger.Error(errMessage.Error())
		return nil, nil, errMessage
	}
	channels, err := getChannelsFromDB(db, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting channel settings from database: %w", err)
		logger.Error(errMessage.Error())
		return nil, nil, errMessage
	}
	return modules, channels, nil
}

func getModulesFromDB(db *sqlx.DB, runNumber int) ([]ModuleConfig, error) {
	query := "SELECT Module, NChannels, FW, PulserDelay, PulserCh FROM ModuleSettings " +
		"WHERE MinRun <= ? and MaxRun >= ? ORDER BY Module"
	if verbosity > 0 {
		logger.Info("Module settings read from DB", "database")
	}
	if verbosity > 2 {
		logger.Info(fmt.Sprintf("Query: %s", query), "database")
	}

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	modules := make([]ModuleConfig, 0)
	for rows.Next() {
		result := moduleSettingsEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		modules = append(modules, ModuleConfig{
			Module:      uint8(result.Module),
			NChannels:   result.NChannels,
			FW:          result.FW,
			PulserDelay: result.PulserDelay,
			PulserCh:    uint8(result.PulserCh),
		})
	}
	return modules, rows.Err()
}

func getChannelsFromDB(db *sqlx.DB, runNumber int) ([]ChannelConfig, error) {
	query := "SELECT Module, Channel, IsEventTrigger, DetectorID, ArrayID, HasAC, ACModule, ACChannel, " +
		"P0, P1, P2, P3 FROM ChannelSettings WHERE MinRun <= ? and MaxRun >= ? ORDER BY Module, Channel"
	if verbosity > 0 {
		logger.Info("Channel settings read from DB", "database")
	}
	if verbosity > 2 {
		logger.Info(fmt.Sprintf("Query: %s", query), "database")
	}

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	channels := make([]ChannelConfig, 0)
	for rows.Next() {
		result := channelSettingsEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		channels = append(channels, ChannelConfig{
			Module:      uint8(result.Module),
			Channel:     uint8(result.Channel),
			IsTrigger:   result.IsEventTrigger,
			DetectorID:  int32(result.DetectorID),
			ArrayID:     int32(result.ArrayID),
			HasAC:       result.HasAC,
			ACModule:    uint8(result.ACModule),
			ACChannel:   uint8(result.ACChannel),
			Calibration: [4]float64{result.P0, result.P1, result.P2, result.P3},
		})
	}
	return channels, rows.Err()
}
