package importer

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrEmptyStore means backfill has no anchor: nothing has ever been
// imported, so there is no "latest observation" to resume from.
var ErrEmptyStore = errors.New("importer: no observations to backfill from")

// latestSource is the one store read the planner needs.
type latestSource interface {
	LatestObservationTime() (sql.NullTime, error)
}

// Planner decides which calendar dates an import run should cover. Dates
// are local days in the source timezone; the newest plannable day is
// yesterday, since the source publishes complete files one day behind.
type Planner struct {
	store latestSource
	clock clockwork.Clock
	loc   *time.Location
}

func NewPlanner(store latestSource, clock clockwork.Clock, loc *time.Location) *Planner {
	return &Planner{store: store, clock: clock, loc: loc}
}

func (p *Planner) yesterday() time.Time {
	now := p.clock.Now().In(p.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc).AddDate(0, 0, -1)
}

// Range plans every date in [start, end] inclusive. A zero end means
// yesterday. Start after end is a planning error, not an empty plan.
func (p *Planner) Range(start, end time.Time) ([]time.Time, error) {
	start = p.truncate(start)
	if end.IsZero() {
		end = p.yesterday()
	} else {
		end = p.truncate(end)
	}

	if start.After(end) {
		return nil, fmt.Errorf("importer: start date %s after end date %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

// TrailingWindow plans the n most recent complete days, ending yesterday.
func (p *Planner) TrailingWindow(n int) ([]time.Time, error) {
	if n < 1 {
		return nil, fmt.Errorf("importer: trailing window must be at least 1 day, got %d", n)
	}
	end := p.yesterday()
	return p.Range(end.AddDate(0, 0, -(n-1)), end)
}

// Backfill plans from the day after the newest stored observation through
// yesterday. An empty plan means the store is already up to date.
func (p *Planner) Backfill() ([]time.Time, error) {
	latest, err := p.store.LatestObservationTime()
	if err != nil {
		return nil, fmt.Errorf("importer: read latest observation: %w", err)
	}
	if !latest.Valid {
		return nil, ErrEmptyStore
	}

	start := p.truncate(latest.Time.In(p.loc)).AddDate(0, 0, 1)
	end := p.yesterday()
	if start.After(end) {
		return nil, nil
	}
	return p.Range(start, end)
}

func (p *Planner) truncate(t time.Time) time.Time {
	t = t.In(p.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, p.loc)
}
