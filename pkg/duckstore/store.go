// Package duckstore writes built events to DuckDB, one database file per
// builder thread.
package duckstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

// Store is the output unit of one builder thread.
type Store struct {
	db          *sql.DB
	nextEventID int64
}

func EventFileName(dir string, runNumber, threadID int) string {
	return filepath.Join(dir, fmt.Sprintf("event_run%d_t%d.duckdb", runNumber, threadID))
}

// Open connects to the database at dbPath. With create set any previous
// content is discarded, otherwise new events continue the event_id sequence.
func Open(dbPath string, create bool) (*Store, error) {
	if create {
		if err := os.Remove(dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove %s: %w", dbPath, err)
		}
		os.Remove(dbPath + ".wal")
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", dbPath, err)
	}
	s := &Store{db: db}
	if _, err := db.Exec(eventSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := db.QueryRow(`SELECT COALESCE(MAX(event_id) + 1, 0) FROM events`).Scan(&s.nextEventID); err != nil {
		db.Close()
		return nil, fmt.Errorf("read last event id: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WriteEvents inserts the events and their hits in one transaction.
func (s *Store) WriteEvents(events []eventbuilder.EventRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	eventStmt, err := tx.Prepare(`
		INSERT INTO events (event_id, trigger_id, trigger_ts, multiplicity, mult_a, mult_b, mult_c, candidate, sum_energy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer eventStmt.Close()

	hitStmt, err := tx.Prepare(`
		INSERT INTO hits (event_id, module, channel, timestamp, energy_long, energy_short)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare hits: %w", err)
	}
	defer hitStmt.Close()

	eventID := s.nextEventID
	for _, e := range events {
		if _, err := eventStmt.Exec(
			eventID, e.TriggerDetectorID, e.TriggerTimestamp,
			e.Multiplicity, e.MultiplicityA, e.MultiplicityB, e.MultiplicityC,
			e.IsCandidateTrigger, e.SumEnergy,
		); err != nil {
			return fmt.Errorf("insert event %d: %w", eventID, err)
		}
		for _, h := range e.Hits {
			if _, err := hitStmt.Exec(eventID, h.Module, h.Channel, h.Timestamp, h.EnergyLong, h.EnergyShort); err != nil {
				return fmt.Errorf("insert hit of event %d: %w", eventID, err)
			}
		}
		eventID++
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.nextEventID = eventID
	return nil
}

// EventSummary is one row of the events table.
type EventSummary struct {
	EventID      int64
	TriggerID    int32
	TriggerTS    float64
	Multiplicity int
	Candidate    bool
	SumEnergy    float64
	NHits        int
}

// Events returns the stored events ordered by event_id.
func (s *Store) Events() ([]EventSummary, error) {
	rows, err := s.db.Query(`
		SELECT e.event_id, e.trigger_id, e.trigger_ts, e.multiplicity, e.candidate, e.sum_energy,
		       (SELECT COUNT(*) FROM hits h WHERE h.event_id = e.event_id) AS n_hits
		FROM events e
		ORDER BY e.event_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventSummary
	for rows.Next() {
		var e EventSummary
		if err := rows.Scan(&e.EventID, &e.TriggerID, &e.TriggerTS, &e.Multiplicity, &e.Candidate, &e.SumEnergy, &e.NHits); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// OpenerFor returns a WriterOpener writing one database per thread into dir.
func OpenerFor(dir string) eventbuilder.WriterOpener {
	return func(runNumber, threadID int, create bool) (eventbuilder.EventWriter, error) {
		return Open(EventFileName(dir, runNumber, threadID), create)
	}
}
