package api

import (
	"database/sql"
	"time"

	"github.com/firewx/bcfireweather/internal/models"
)

// JSON shapes for the query API. Nullable columns marshal as null via
// pointer fields, never as zero values.

type stationJSON struct {
	ID        int64    `json:"id"`
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Province  string   `json:"province"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Elevation *float64 `json:"elevation"`
	Active    bool     `json:"active"`
}

type stationDetailJSON struct {
	stationJSON
	ObservationCount  int64      `json:"observation_count"`
	LatestObservation *time.Time `json:"latest_observation"`
}

type stationWithObservationsJSON struct {
	stationJSON
	Observations []observationJSON `json:"observations"`
}

type observationJSON struct {
	ID          int64     `json:"id"`
	StationID   int64     `json:"station"`
	StationCode string    `json:"station_code"`
	StationName string    `json:"station_name"`
	ObservedAt  time.Time `json:"observation_time"`

	Temperature      *float64 `json:"temperature"`
	RelativeHumidity *int64   `json:"relative_humidity"`
	Precipitation    *float64 `json:"precipitation"`
	WindSpeed        *float64 `json:"wind_speed"`
	WindDirection    *int64   `json:"wind_direction"`
	WindGust         *float64 `json:"wind_gust"`

	HourlyFFMC *float64 `json:"hourly_ffmc"`
	HourlyISI  *float64 `json:"hourly_isi"`
	HourlyFWI  *float64 `json:"hourly_fwi"`

	FFMC *float64 `json:"ffmc"`
	DMC  *float64 `json:"dmc"`
	DC   *float64 `json:"dc"`
	ISI  *float64 `json:"isi"`
	BUI  *float64 `json:"bui"`
	FWI  *float64 `json:"fwi"`

	DangerRating   *string  `json:"danger_rating"`
	SnowDepth      *float64 `json:"snow_depth"`
	SolarRadiation *float64 `json:"solar_radiation"`
}

type statisticsJSON struct {
	StationCode string `json:"station_code"`
	StationName string `json:"station_name"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`

	AvgTemperature *float64 `json:"avg_temperature"`
	MinTemperature *float64 `json:"min_temperature"`
	MaxTemperature *float64 `json:"max_temperature"`

	TotalPrecipitation *float64 `json:"total_precipitation"`
	AvgPrecipitation   *float64 `json:"avg_precipitation"`

	AvgHumidity *float64 `json:"avg_humidity"`
	MinHumidity *int64   `json:"min_humidity"`
	MaxHumidity *int64   `json:"max_humidity"`

	AvgWindSpeed *float64 `json:"avg_wind_speed"`
	MaxWindSpeed *float64 `json:"max_wind_speed"`

	TotalObservations int64 `json:"total_observations"`
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func toStationJSON(st models.Station) stationJSON {
	return stationJSON{
		ID:        st.ID,
		Code:      st.Code,
		Name:      st.Name,
		Province:  st.Province,
		Latitude:  nullFloat(st.Latitude),
		Longitude: nullFloat(st.Longitude),
		Elevation: nullFloat(st.Elevation),
		Active:    st.Active,
	}
}

func toObservationJSON(o models.Observation) observationJSON {
	return observationJSON{
		ID:          o.ID,
		StationID:   o.StationID,
		StationCode: o.StationCode,
		StationName: o.StationName,
		ObservedAt:  o.ObservedAt.UTC(),

		Temperature:      nullFloat(o.Temperature),
		RelativeHumidity: nullInt(o.RelativeHumidity),
		Precipitation:    nullFloat(o.Precipitation),
		WindSpeed:        nullFloat(o.WindSpeed),
		WindDirection:    nullInt(o.WindDirection),
		WindGust:         nullFloat(o.WindGust),

		HourlyFFMC: nullFloat(o.HourlyFFMC),
		HourlyISI:  nullFloat(o.HourlyISI),
		HourlyFWI:  nullFloat(o.HourlyFWI),

		FFMC: nullFloat(o.FFMC),
		DMC:  nullFloat(o.DMC),
		DC:   nullFloat(o.DC),
		ISI:  nullFloat(o.ISI),
		BUI:  nullFloat(o.BUI),
		FWI:  nullFloat(o.FWI),

		DangerRating:   nullString(o.DangerRating),
		SnowDepth:      nullFloat(o.SnowDepth),
		SolarRadiation: nullFloat(o.SolarRadiation),
	}
}

func toObservationListJSON(observations []models.Observation) []observationJSON {
	out := make([]observationJSON, 0, len(observations))
	for _, o := range observations {
		out = append(out, toObservationJSON(o))
	}
	return out
}

func toStatisticsJSON(st models.Station, stats *models.Statistics) statisticsJSON {
	return statisticsJSON{
		StationCode: st.Code,
		StationName: st.Name,
		StartDate:   stats.StartDate.UTC().Format("2006-01-02"),
		EndDate:     stats.EndDate.UTC().Format("2006-01-02"),

		AvgTemperature: nullFloat(stats.AvgTemperature),
		MinTemperature: nullFloat(stats.MinTemperature),
		MaxTemperature: nullFloat(stats.MaxTemperature),

		TotalPrecipitation: nullFloat(stats.TotalPrecipitation),
		AvgPrecipitation:   nullFloat(stats.AvgPrecipitation),

		AvgHumidity: nullFloat(stats.AvgHumidity),
		MinHumidity: nullInt(stats.MinHumidity),
		MaxHumidity: nullInt(stats.MaxHumidity),

		AvgWindSpeed: nullFloat(stats.AvgWindSpeed),
		MaxWindSpeed: nullFloat(stats.MaxWindSpeed),

		TotalObservations: stats.TotalObservations,
	}
}
