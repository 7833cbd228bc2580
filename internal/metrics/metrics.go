package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DataMartFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bcfireweather_datamart_fetches_total",
			Help: "Data Mart day-file fetches by outcome",
		},
		[]string{"outcome"},
	)

	ObservationsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bcfireweather_observations_inserted_total",
			Help: "Observations inserted into the store",
		},
	)

	DuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bcfireweather_observations_duplicates_skipped_total",
			Help: "Observations skipped due to an existing (station, timestamp) row",
		},
	)

	RowParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bcfireweather_row_parse_errors_total",
			Help: "CSV rows dropped for unparsable key fields",
		},
	)

	ImportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bcfireweather_import_runs_total",
			Help: "Import runs by result",
		},
		[]string{"result"},
	)
)
