package models

import (
	"database/sql"
	"time"
)

// Station is a BC Wildfire Service fire weather station. Code is the stable
// external station code and the natural key; ID is the internal surrogate
// assigned on first sighting and referenced by observations.
type Station struct {
	ID          int64
	Code        string
	Name        string
	Province    string
	Latitude    sql.NullFloat64
	Longitude   sql.NullFloat64
	Elevation   sql.NullFloat64
	Active      bool
	LastUpdated sql.NullTime
	CreatedAt   time.Time
}

// StationUpsert carries the attributes observed for a station during an
// import. Null attributes never overwrite stored non-null values. Activate
// forces active=true on an existing row; authoritative sources (the
// provincial station layer) set it, day-file sightings leave deactivated
// stations alone.
type StationUpsert struct {
	Code      string
	Name      string
	Province  string
	Latitude  sql.NullFloat64
	Longitude sql.NullFloat64
	Elevation sql.NullFloat64
	Activate  bool
}

// Observation is one hourly fire-weather reading for one station.
// (StationID, ObservedAt) is unique; rows are immutable once stored.
type Observation struct {
	ID        int64
	StationID int64
	// Populated by joins for API responses, not stored on the row.
	StationCode string
	StationName string

	ObservedAt time.Time

	Temperature      sql.NullFloat64
	RelativeHumidity sql.NullInt64
	Precipitation    sql.NullFloat64
	WindSpeed        sql.NullFloat64
	WindDirection    sql.NullInt64
	WindGust         sql.NullFloat64

	HourlyFFMC sql.NullFloat64
	HourlyISI  sql.NullFloat64
	HourlyFWI  sql.NullFloat64

	FFMC sql.NullFloat64
	DMC  sql.NullFloat64
	DC   sql.NullFloat64
	ISI  sql.NullFloat64
	BUI  sql.NullFloat64
	FWI  sql.NullFloat64

	DangerRating   sql.NullString
	SnowDepth      sql.NullFloat64
	SolarRadiation sql.NullFloat64

	CreatedAt time.Time
}

// ImportRun is the persisted summary of one import run.
type ImportRun struct {
	ID                   string
	StartedAt            time.Time
	FinishedAt           time.Time
	DaysAttempted        int
	DaysSucceeded        int
	DaysErrored          int
	ObservationsInserted int64
	DuplicatesSkipped    int64
	RowErrors            int
	StationsTouched      int
}

// StationDetail is a station plus derived observation info for the API.
type StationDetail struct {
	Station
	ObservationCount  int64
	LatestObservation sql.NullTime
}

// Statistics aggregates a station's observations over a window. Every
// aggregate is nullable: an empty window yields nulls, not zeros.
type Statistics struct {
	StationCode string
	StationName string
	StartDate   time.Time
	EndDate     time.Time

	AvgTemperature sql.NullFloat64
	MinTemperature sql.NullFloat64
	MaxTemperature sql.NullFloat64

	TotalPrecipitation sql.NullFloat64
	AvgPrecipitation   sql.NullFloat64

	AvgHumidity sql.NullFloat64
	MinHumidity sql.NullInt64
	MaxHumidity sql.NullInt64

	AvgWindSpeed sql.NullFloat64
	MaxWindSpeed sql.NullFloat64

	TotalObservations int64
}
