package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/firewx/bcfireweather/internal/models"
)

const stationColumns = `id, code, name, province, latitude, longitude, elevation, active, last_updated, created_at`

const observationColumns = `o.id, o.station_id, st.code, st.name, o.observed_at,
	o.temperature, o.relative_humidity, o.precipitation,
	o.wind_speed, o.wind_direction, o.wind_gust,
	o.hourly_ffmc, o.hourly_isi, o.hourly_fwi,
	o.ffmc, o.dmc, o.dc, o.isi, o.bui, o.fwi,
	o.danger_rating, o.snow_depth, o.solar_radiation, o.created_at`

func scanStation(row interface{ Scan(...any) error }) (models.Station, error) {
	var st models.Station
	err := row.Scan(&st.ID, &st.Code, &st.Name, &st.Province,
		&st.Latitude, &st.Longitude, &st.Elevation,
		&st.Active, &st.LastUpdated, &st.CreatedAt)
	return st, err
}

func scanObservation(row interface{ Scan(...any) error }) (models.Observation, error) {
	var o models.Observation
	err := row.Scan(&o.ID, &o.StationID, &o.StationCode, &o.StationName, &o.ObservedAt,
		&o.Temperature, &o.RelativeHumidity, &o.Precipitation,
		&o.WindSpeed, &o.WindDirection, &o.WindGust,
		&o.HourlyFFMC, &o.HourlyISI, &o.HourlyFWI,
		&o.FFMC, &o.DMC, &o.DC, &o.ISI, &o.BUI, &o.FWI,
		&o.DangerRating, &o.SnowDepth, &o.SolarRadiation, &o.CreatedAt)
	return o, err
}

// StationFilter narrows ListStations. Active nil means both active and
// inactive stations.
type StationFilter struct {
	Active  *bool
	HasData bool
	Search  string
}

func (s *Store) ListStations(f StationFilter) ([]models.Station, error) {
	var (
		where []string
		args  []any
	)
	if f.Active != nil {
		where = append(where, "active = ?")
		args = append(args, *f.Active)
	}
	if f.HasData {
		where = append(where, "EXISTS (SELECT 1 FROM observations o WHERE o.station_id = stations.id)")
	}
	if f.Search != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}

	query := `SELECT ` + stationColumns + ` FROM stations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// GetStation returns the station with its observation count and latest
// observation time, or nil if no such station exists.
func (s *Store) GetStation(id int64) (*models.StationDetail, error) {
	row := s.db.QueryRow(`SELECT `+stationColumns+` FROM stations WHERE id = ?`, id)
	st, err := scanStation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	detail := &models.StationDetail{Station: st}
	err = s.db.QueryRow(`SELECT COUNT(*) FROM observations WHERE station_id = ?`, id).
		Scan(&detail.ObservationCount)
	if err != nil {
		return nil, err
	}

	// Raw column read instead of MAX(): the aggregate loses DATETIME
	// affinity and comes back as an unscannable string.
	var latest time.Time
	err = s.db.QueryRow(`
		SELECT observed_at FROM observations WHERE station_id = ? ORDER BY observed_at DESC LIMIT 1
	`, id).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if err == nil {
		detail.LatestObservation = sql.NullTime{Time: latest, Valid: true}
	}
	return detail, nil
}

func (s *Store) GetStationByCode(code string) (*models.Station, error) {
	row := s.db.QueryRow(`SELECT `+stationColumns+` FROM stations WHERE code = ?`, code)
	st, err := scanStation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ObservationFilter narrows ListObservations. Zero values mean "no filter".
type ObservationFilter struct {
	StationID   int64
	StationCode string
	Start       *time.Time
	End         *time.Time
	Limit       int
}

func (s *Store) ListObservations(f ObservationFilter) ([]models.Observation, error) {
	var (
		where []string
		args  []any
	)
	if f.StationID != 0 {
		where = append(where, "o.station_id = ?")
		args = append(args, f.StationID)
	}
	if f.StationCode != "" {
		where = append(where, "st.code = ?")
		args = append(args, f.StationCode)
	}
	if f.Start != nil {
		where = append(where, "o.observed_at >= ?")
		args = append(args, f.Start.UTC())
	}
	if f.End != nil {
		where = append(where, "o.observed_at <= ?")
		args = append(args, f.End.UTC())
	}

	query := `SELECT ` + observationColumns + ` FROM observations o JOIN stations st ON o.station_id = st.id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.observed_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectObservations(rows)
}

// StationObservations returns a station's observations within [start, end],
// newest first.
func (s *Store) StationObservations(stationID int64, start, end time.Time, limit int) ([]models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM observations o JOIN stations st ON o.station_id = st.id
		WHERE o.station_id = ? AND o.observed_at >= ? AND o.observed_at <= ?
		ORDER BY o.observed_at DESC`
	args := []any{stationID, start.UTC(), end.UTC()}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectObservations(rows)
}

// LatestPerStation maps station code to its single most recent observation.
// Stations without observations are absent from the map.
func (s *Store) LatestPerStation() (map[string]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT ` + observationColumns + `
		FROM observations o
		JOIN stations st ON o.station_id = st.id
		WHERE o.observed_at = (
			SELECT MAX(observed_at) FROM observations WHERE station_id = o.station_id
		)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]models.Observation)
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		result[o.StationCode] = o
	}
	return result, rows.Err()
}

// RecentObservations returns up to perStation newest observations per
// station, within the trailing window, newest first overall.
func (s *Store) RecentObservations(since time.Time, perStation int) ([]models.Observation, error) {
	rows, err := s.db.Query(`
		WITH ranked AS (
			SELECT o.*, st.code AS st_code, st.name AS st_name,
			       ROW_NUMBER() OVER (PARTITION BY o.station_id ORDER BY o.observed_at DESC) AS rn
			FROM observations o
			JOIN stations st ON o.station_id = st.id
			WHERE o.observed_at >= ?
		)
		SELECT id, station_id, st_code, st_name, observed_at,
		       temperature, relative_humidity, precipitation,
		       wind_speed, wind_direction, wind_gust,
		       hourly_ffmc, hourly_isi, hourly_fwi,
		       ffmc, dmc, dc, isi, bui, fwi,
		       danger_rating, snow_depth, solar_radiation, created_at
		FROM ranked
		WHERE rn <= ?
		ORDER BY observed_at DESC
	`, since.UTC(), perStation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectObservations(rows)
}

// StationStatistics aggregates a station's observations over [start, end].
// An empty window yields null aggregates and TotalObservations 0.
func (s *Store) StationStatistics(stationID int64, start, end time.Time) (*models.Statistics, error) {
	stats := &models.Statistics{StartDate: start, EndDate: end}

	err := s.db.QueryRow(`
		SELECT
			AVG(temperature), MIN(temperature), MAX(temperature),
			SUM(precipitation), AVG(precipitation),
			AVG(relative_humidity), MIN(relative_humidity), MAX(relative_humidity),
			AVG(wind_speed), MAX(wind_speed),
			COUNT(*)
		FROM observations
		WHERE station_id = ? AND observed_at >= ? AND observed_at <= ?
	`, stationID, start.UTC(), end.UTC()).Scan(
		&stats.AvgTemperature, &stats.MinTemperature, &stats.MaxTemperature,
		&stats.TotalPrecipitation, &stats.AvgPrecipitation,
		&stats.AvgHumidity, &stats.MinHumidity, &stats.MaxHumidity,
		&stats.AvgWindSpeed, &stats.MaxWindSpeed,
		&stats.TotalObservations,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func collectObservations(rows *sql.Rows) ([]models.Observation, error) {
	var observations []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, o)
	}
	return observations, rows.Err()
}
