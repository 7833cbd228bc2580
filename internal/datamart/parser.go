package datamart

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/firewx/bcfireweather/internal/models"
)

// utf8BOM is the byte-order marker some Data Mart files lead with.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record is one normalized row: the station metadata seen on the row plus
// the observation itself (StationID is assigned at write time).
type Record struct {
	Station     models.StationUpsert
	Observation models.Observation
}

// ParseStats accumulates row-level outcomes across one file.
type ParseStats struct {
	Rows          int // data rows read, including dropped ones
	Dropped       int // rows with unparsable station code or timestamp
	FieldWarnings int // non-empty fields coerced to null
}

// Column headers vary between files: extra quoting, casing and spacing
// drift, and occasionally renamed fields. Each canonical field is resolved
// against a set of accepted normalized names once per file; a field whose
// header is absent is simply null for every row.
var headerAliases = map[string][]string{
	"station_code":    {"STATION_CODE"},
	"station_name":    {"STATION_NAME"},
	"latitude":        {"LATITUDE", "LAT"},
	"longitude":       {"LONGITUDE", "LONG", "LON"},
	"elevation":       {"ELEVATION", "ELEVATION_M"},
	"date_time":       {"DATE_TIME", "DATETIME", "WEATHER_TIMESTAMP"},
	"temperature":     {"HOURLY_TEMPERATURE", "TEMPERATURE"},
	"humidity":        {"HOURLY_RELATIVE_HUMIDITY", "RELATIVE_HUMIDITY"},
	"precipitation":   {"HOURLY_PRECIPITATION", "PRECIPITATION"},
	"wind_speed":      {"HOURLY_WIND_SPEED", "WIND_SPEED"},
	"wind_direction":  {"HOURLY_WIND_DIRECTION", "WIND_DIRECTION"},
	"wind_gust":       {"HOURLY_WIND_GUST", "WIND_GUST"},
	"hourly_ffmc":     {"HOURLY_FINE_FUEL_MOISTURE_CODE"},
	"hourly_isi":      {"HOURLY_INITIAL_SPREAD_INDEX"},
	"hourly_fwi":      {"HOURLY_FIRE_WEATHER_INDEX"},
	"ffmc":            {"FINE_FUEL_MOISTURE_CODE"},
	"dmc":             {"DUFF_MOISTURE_CODE"},
	"dc":              {"DROUGHT_CODE"},
	"isi":             {"INITIAL_SPREAD_INDEX"},
	"bui":             {"BUILDUP_INDEX"},
	"fwi":             {"FIRE_WEATHER_INDEX"},
	"danger_rating":   {"DANGER_RATING", "FIRE_DANGER_RATING"},
	"snow_depth":      {"SNOW_DEPTH"},
	"solar_radiation": {"SOLAR_RADIATION_LICOR", "SOLAR_RADIATION"},
}

// Rows is a single-pass reader over one day file. Call Next until io.EOF,
// then Stats for the row-level tallies.
type Rows struct {
	r    *csv.Reader
	cols map[string]int
	loc  *time.Location

	stats ParseStats
	done  bool
}

// NewRows prepares a streaming parse of raw CSV bytes. A leading UTF-8 BOM
// is stripped if present. A file with no header (or no bytes at all) yields
// zero records rather than an error.
func NewRows(data []byte, loc *time.Location) (*Rows, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rs := &Rows{r: r, loc: loc}

	header, err := r.Read()
	if err == io.EOF {
		rs.done = true
		return rs, nil
	}
	if err != nil {
		return nil, err
	}

	rs.cols = resolveColumns(header)
	return rs, nil
}

func resolveColumns(header []string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[normalizeHeader(h)] = i
	}

	cols := make(map[string]int, len(headerAliases))
	for field, aliases := range headerAliases {
		for _, alias := range aliases {
			if i, ok := byName[alias]; ok {
				cols[field] = i
				break
			}
		}
	}
	return cols
}

// normalizeHeader undoes the quoting and casing drift seen across files:
// `"STATION_CODE"`, ` station_code `, and `Station Code` all resolve the
// same way.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.Trim(h, `"'`)
	h = strings.TrimSpace(h)
	h = strings.ToUpper(h)
	return strings.ReplaceAll(h, " ", "_")
}

// Next returns the next normalized record, or io.EOF when the file is
// exhausted. Rows with an unparsable station code or timestamp are dropped
// and counted; unparsable value fields become null and the row is kept.
func (rs *Rows) Next() (*Record, error) {
	for {
		if rs.done {
			return nil, io.EOF
		}

		row, err := rs.r.Read()
		if err == io.EOF {
			rs.done = true
			return nil, io.EOF
		}
		if err != nil {
			// A malformed line; csv.Reader resumes on the next one.
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rs.stats.Rows++
				rs.stats.Dropped++
				continue
			}
			return nil, err
		}

		rs.stats.Rows++

		rec, ok := rs.parseRow(row)
		if !ok {
			rs.stats.Dropped++
			continue
		}
		return rec, nil
	}
}

func (rs *Rows) Stats() ParseStats {
	return rs.stats
}

func (rs *Rows) parseRow(row []string) (*Record, bool) {
	code := strings.Trim(strings.TrimSpace(rs.field(row, "station_code")), `"`)
	if code == "" {
		return nil, false
	}

	observedAt, ok := rs.parseDateTime(rs.field(row, "date_time"))
	if !ok {
		return nil, false
	}

	rec := &Record{
		Station: models.StationUpsert{
			Code:      code,
			Name:      strings.Trim(strings.TrimSpace(rs.field(row, "station_name")), `"`),
			Latitude:  rs.parseFloat(row, "latitude"),
			Longitude: rs.parseFloat(row, "longitude"),
			Elevation: rs.parseFloat(row, "elevation"),
		},
		Observation: models.Observation{
			ObservedAt:       observedAt,
			Temperature:      rs.parseFloat(row, "temperature"),
			RelativeHumidity: rs.parseInt(row, "humidity"),
			Precipitation:    rs.parseFloat(row, "precipitation"),
			WindSpeed:        rs.parseFloat(row, "wind_speed"),
			WindDirection:    rs.parseInt(row, "wind_direction"),
			WindGust:         rs.parseFloat(row, "wind_gust"),
			HourlyFFMC:       rs.parseFloat(row, "hourly_ffmc"),
			HourlyISI:        rs.parseFloat(row, "hourly_isi"),
			HourlyFWI:        rs.parseFloat(row, "hourly_fwi"),
			FFMC:             rs.parseFloat(row, "ffmc"),
			DMC:              rs.parseFloat(row, "dmc"),
			DC:               rs.parseFloat(row, "dc"),
			ISI:              rs.parseFloat(row, "isi"),
			BUI:              rs.parseFloat(row, "bui"),
			FWI:              rs.parseFloat(row, "fwi"),
			SnowDepth:        rs.parseFloat(row, "snow_depth"),
			SolarRadiation:   rs.parseFloat(row, "solar_radiation"),
		},
	}

	if rating := strings.TrimSpace(rs.field(row, "danger_rating")); rating != "" {
		rec.Observation.DangerRating = sql.NullString{String: rating, Valid: true}
	}

	return rec, true
}

func (rs *Rows) field(row []string, name string) string {
	i, ok := rs.cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// parseDateTime reads the source's YYYYMMDDHH stamp as civil time in the
// source timezone.
func (rs *Rows) parseDateTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006010215", value, rs.loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (rs *Rows) parseFloat(row []string, name string) sql.NullFloat64 {
	value := strings.TrimSpace(rs.field(row, name))
	if value == "" {
		return sql.NullFloat64{}
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		rs.stats.FieldWarnings++
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

// parseInt tolerates fractional source values the way the feed emits them
// ("65.0" for a humidity percentage).
func (rs *Rows) parseInt(row []string, name string) sql.NullInt64 {
	value := strings.TrimSpace(rs.field(row, name))
	if value == "" {
		return sql.NullInt64{}
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		rs.stats.FieldWarnings++
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(f), Valid: true}
}
