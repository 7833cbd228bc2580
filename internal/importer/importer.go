package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/firewx/bcfireweather/internal/datamart"
	"github.com/firewx/bcfireweather/internal/metrics"
	"github.com/firewx/bcfireweather/internal/models"
)

// Fetcher retrieves the raw day file for one calendar date.
type Fetcher interface {
	FetchDay(ctx context.Context, date time.Time) ([]byte, error)
}

// Storage is the store surface an import run writes through.
type Storage interface {
	UpsertStation(u models.StationUpsert) (int64, error)
	InsertObservations(observations []models.Observation) (int64, error)
	SaveImportRun(run models.ImportRun) error
}

// DayResult is the outcome for one planned date.
type DayResult struct {
	Date         time.Time
	NotPublished bool
	Inserted     int64
	Duplicates   int64
	RowErrors    int
	Err          error
}

// Summary totals one run across all planned dates.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Days       []DayResult

	DaysAttempted        int
	DaysSucceeded        int
	DaysErrored          int
	ObservationsInserted int64
	DuplicatesSkipped    int64
	RowErrors            int
	StationsTouched      int
}

func (s *Summary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Importer runs fetch, parse and store for a planned set of dates. A
// failed date is recorded and the run moves on; only the summary says
// whether everything landed.
type Importer struct {
	fetcher  Fetcher
	store    Storage
	notifier Notifier
	clock    clockwork.Clock
	loc      *time.Location
	logger   *slog.Logger
}

func New(fetcher Fetcher, store Storage, clock clockwork.Clock, loc *time.Location, logger *slog.Logger) *Importer {
	return &Importer{
		fetcher: fetcher,
		store:   store,
		clock:   clock,
		loc:     loc,
		logger:  logger,
	}
}

// WithNotifier attaches a failure notifier. Nil disables notification.
func (imp *Importer) WithNotifier(n Notifier) *Importer {
	imp.notifier = n
	return imp
}

// Run imports the given dates in order. The returned summary is always
// non-nil; the error covers run-level faults (context cancellation,
// summary persistence), not individual failed dates.
func (imp *Importer) Run(ctx context.Context, dates []time.Time) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: imp.clock.Now().UTC(),
	}
	logger := imp.logger.With("run_id", summary.RunID)
	logger.Info("import run starting", "days", len(dates))

	touched := make(map[string]bool)

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = imp.clock.Now().UTC()
			return summary, err
		}

		result := imp.importDay(ctx, date, touched)
		summary.Days = append(summary.Days, result)
		summary.DaysAttempted++
		summary.ObservationsInserted += result.Inserted
		summary.DuplicatesSkipped += result.Duplicates
		summary.RowErrors += result.RowErrors

		if result.Err != nil {
			summary.DaysErrored++
			logger.Error("day import failed", "date", date.Format("2006-01-02"), "error", result.Err)
			continue
		}
		summary.DaysSucceeded++

		if result.NotPublished {
			logger.Info("day not published", "date", date.Format("2006-01-02"))
		} else {
			logger.Info("day imported",
				"date", date.Format("2006-01-02"),
				"inserted", result.Inserted,
				"duplicates", result.Duplicates,
				"row_errors", result.RowErrors)
		}
	}

	summary.FinishedAt = imp.clock.Now().UTC()
	summary.StationsTouched = len(touched)

	result := "ok"
	if summary.DaysErrored > 0 {
		result = "partial"
	}
	if summary.DaysAttempted > 0 && summary.DaysErrored == summary.DaysAttempted {
		result = "failed"
	}
	metrics.ImportRuns.WithLabelValues(result).Inc()

	logger.Info("import run finished",
		"result", result,
		"days_attempted", summary.DaysAttempted,
		"days_succeeded", summary.DaysSucceeded,
		"days_errored", summary.DaysErrored,
		"inserted", summary.ObservationsInserted,
		"duplicates", summary.DuplicatesSkipped,
		"row_errors", summary.RowErrors,
		"stations", summary.StationsTouched,
		"elapsed", summary.Elapsed().Round(time.Millisecond))

	if err := imp.store.SaveImportRun(models.ImportRun{
		ID:                   summary.RunID,
		StartedAt:            summary.StartedAt,
		FinishedAt:           summary.FinishedAt,
		DaysAttempted:        summary.DaysAttempted,
		DaysSucceeded:        summary.DaysSucceeded,
		DaysErrored:          summary.DaysErrored,
		ObservationsInserted: summary.ObservationsInserted,
		DuplicatesSkipped:    summary.DuplicatesSkipped,
		RowErrors:            summary.RowErrors,
		StationsTouched:      summary.StationsTouched,
	}); err != nil {
		return summary, fmt.Errorf("save import run: %w", err)
	}

	if summary.DaysErrored > 0 && imp.notifier != nil {
		if err := imp.notifier.NotifyFailure(ctx, summary); err != nil {
			logger.Error("failure notification not sent", "error", err)
		}
	}

	return summary, nil
}

func (imp *Importer) importDay(ctx context.Context, date time.Time, touched map[string]bool) DayResult {
	result := DayResult{Date: date}

	data, err := imp.fetcher.FetchDay(ctx, date)
	if errors.Is(err, datamart.ErrNotPublished) {
		result.NotPublished = true
		return result
	}
	if err != nil {
		result.Err = fmt.Errorf("fetch: %w", err)
		return result
	}

	rows, err := datamart.NewRows(data, imp.loc)
	if err != nil {
		result.Err = fmt.Errorf("parse: %w", err)
		return result
	}

	// The cache is per day: the same station appears on every hourly row
	// of one file, but each new date's metadata still reaches the upsert.
	dayIDs := make(map[string]int64)

	var batch []models.Observation
	for {
		rec, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Err = fmt.Errorf("parse: %w", err)
			return result
		}

		id, ok := dayIDs[rec.Station.Code]
		if !ok {
			id, err = imp.store.UpsertStation(rec.Station)
			if err != nil {
				result.Err = fmt.Errorf("upsert station %s: %w", rec.Station.Code, err)
				return result
			}
			dayIDs[rec.Station.Code] = id
			touched[rec.Station.Code] = true
		}

		rec.Observation.StationID = id
		batch = append(batch, rec.Observation)
	}

	stats := rows.Stats()
	result.RowErrors = stats.Dropped
	metrics.RowParseErrors.Add(float64(stats.Dropped))

	inserted, err := imp.store.InsertObservations(batch)
	if err != nil {
		result.Err = fmt.Errorf("insert observations: %w", err)
		return result
	}

	result.Inserted = inserted
	result.Duplicates = int64(len(batch)) - inserted
	metrics.ObservationsInserted.Add(float64(result.Inserted))
	metrics.DuplicatesSkipped.Add(float64(result.Duplicates))
	return result
}
