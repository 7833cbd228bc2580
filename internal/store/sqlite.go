package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/firewx/bcfireweather/internal/models"
)

// Store wraps the SQLite database. All observation timestamps are stored as
// UTC instants; loc is the source's civil timezone, used for local-day math.
type Store struct {
	db     *sql.DB
	loc    *time.Location
	logger *slog.Logger
}

func New(db *sql.DB, loc *time.Location, logger *slog.Logger) *Store {
	return &Store{db: db, loc: loc, logger: logger}
}

func (s *Store) Ping() error {
	return s.db.Ping()
}

// UpsertStation creates the station on first sighting and otherwise merges
// the incoming attributes, refreshing last_updated. A null incoming
// attribute never clears a stored non-null value, and a deactivated station
// is reactivated only when the payload carries Activate. The UNIQUE constraint on
// code is the authority under concurrent creators: the conflict clause
// turns the losing insert into an update.
func (s *Store) UpsertStation(u models.StationUpsert) (int64, error) {
	province := u.Province
	if province == "" {
		province = "BC"
	}

	_, err := s.db.Exec(`
		INSERT INTO stations (code, name, province, latitude, longitude, elevation, active, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, TRUE, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE stations.name END,
			province = CASE WHEN excluded.province <> '' THEN excluded.province ELSE stations.province END,
			latitude = COALESCE(excluded.latitude, stations.latitude),
			longitude = COALESCE(excluded.longitude, stations.longitude),
			elevation = COALESCE(excluded.elevation, stations.elevation),
			active = CASE WHEN ? THEN TRUE ELSE stations.active END,
			last_updated = excluded.last_updated
	`, u.Code, u.Name, province, u.Latitude, u.Longitude, u.Elevation, time.Now().UTC(), u.Activate)
	if err != nil {
		return 0, fmt.Errorf("upsert station %s: %w", u.Code, err)
	}

	var id int64
	if err := s.db.QueryRow(`SELECT id FROM stations WHERE code = ?`, u.Code).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup station %s: %w", u.Code, err)
	}
	return id, nil
}

// InsertObservations writes a batch inside one transaction. Rows whose
// (station_id, observed_at) key already exists are skipped, not updated.
// Returns the number of rows actually inserted.
func (s *Store) InsertObservations(observations []models.Observation) (int64, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO observations (
			station_id, observed_at,
			temperature, relative_humidity, precipitation,
			wind_speed, wind_direction, wind_gust,
			hourly_ffmc, hourly_isi, hourly_fwi,
			ffmc, dmc, dc, isi, bui, fwi,
			danger_rating, snow_depth, solar_radiation
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, o := range observations {
		res, err := stmt.Exec(
			o.StationID, o.ObservedAt.UTC(),
			o.Temperature, o.RelativeHumidity, o.Precipitation,
			o.WindSpeed, o.WindDirection, o.WindGust,
			o.HourlyFFMC, o.HourlyISI, o.HourlyFWI,
			o.FFMC, o.DMC, o.DC, o.ISI, o.BUI, o.FWI,
			o.DangerRating, o.SnowDepth, o.SolarRadiation,
		)
		if err != nil {
			return 0, fmt.Errorf("insert observation station=%d at=%s: %w", o.StationID, o.ObservedAt, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// LatestObservationTime returns the most recent observation timestamp across
// all stations, or an invalid NullTime for an empty store. The newest row is
// read directly rather than through MAX(): an aggregate expression loses the
// column's DATETIME affinity, and the driver then yields a string that does
// not scan into a time.
func (s *Store) LatestObservationTime() (sql.NullTime, error) {
	var latest time.Time
	err := s.db.QueryRow(`SELECT observed_at FROM observations ORDER BY observed_at DESC LIMIT 1`).Scan(&latest)
	if err == sql.ErrNoRows {
		return sql.NullTime{}, nil
	}
	if err != nil {
		return sql.NullTime{}, err
	}
	return sql.NullTime{Time: latest, Valid: true}, nil
}

func (s *Store) CountObservations() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&n)
	return n, err
}

func (s *Store) SaveImportRun(run models.ImportRun) error {
	_, err := s.db.Exec(`
		INSERT INTO import_runs (
			id, started_at, finished_at,
			days_attempted, days_succeeded, days_errored,
			observations_inserted, duplicates_skipped, row_errors, stations_touched
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.DaysAttempted, run.DaysSucceeded, run.DaysErrored,
		run.ObservationsInserted, run.DuplicatesSkipped, run.RowErrors, run.StationsTouched)
	return err
}
