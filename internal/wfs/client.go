package wfs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/firewx/bcfireweather/internal/models"
)

// DefaultBaseURL is the BC Geographic Warehouse WFS endpoint serving the
// authoritative wildfire weather station layer.
const DefaultBaseURL = "https://openmaps.gov.bc.ca/geo/pub/wfs"

const stationLayer = "pub:WHSE_LAND_AND_NATURAL_RESOURCE.PROT_WEATHER_STATIONS_SP"

// Client reads station locations from the WFS GetFeature endpoint as
// GeoJSON.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties struct {
		StationCode json.Number `json:"STATION_CODE"`
		StationName string      `json:"STATION_NAME"`
		Elevation   *float64    `json:"ELEVATION"`
	} `json:"properties"`
	Geometry struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// FetchStations returns every station in the layer as an upsert payload.
// Features without a station code are skipped.
func (c *Client) FetchStations(ctx context.Context) ([]models.StationUpsert, error) {
	q := url.Values{}
	q.Set("service", "WFS")
	q.Set("version", "2.0.0")
	q.Set("request", "GetFeature")
	q.Set("typeName", stationLayer)
	q.Set("outputFormat", "json")
	q.Set("srsName", "EPSG:4326")
	q.Set("count", "1000")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetch stations: status %d: %s", resp.StatusCode, string(b))
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	stations := make([]models.StationUpsert, 0, len(fc.Features))
	for _, f := range fc.Features {
		code := strings.TrimSpace(f.Properties.StationCode.String())
		if code == "" || code == "0" {
			continue
		}

		u := models.StationUpsert{
			Code:     code,
			Name:     strings.TrimSpace(f.Properties.StationName),
			Activate: true,
		}
		if f.Properties.Elevation != nil {
			u.Elevation = sql.NullFloat64{Float64: *f.Properties.Elevation, Valid: true}
		}
		if f.Geometry.Type == "Point" && len(f.Geometry.Coordinates) >= 2 {
			u.Longitude = sql.NullFloat64{Float64: f.Geometry.Coordinates[0], Valid: true}
			u.Latitude = sql.NullFloat64{Float64: f.Geometry.Coordinates[1], Valid: true}
		}
		stations = append(stations, u)
	}

	c.logger.Debug("fetched station layer", "features", len(fc.Features), "stations", len(stations))
	return stations, nil
}
