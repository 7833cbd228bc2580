package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/firewx/bcfireweather/internal/api"
	"github.com/firewx/bcfireweather/internal/datamart"
	"github.com/firewx/bcfireweather/internal/importer"
	"github.com/firewx/bcfireweather/internal/logging"
	"github.com/firewx/bcfireweather/internal/store"
	"github.com/firewx/bcfireweather/internal/wfs"
)

type cli struct {
	DB        string `kong:"default='data/bcfireweather.db',env=DB_PATH,help='Path to the SQLite database.'"`
	BaseURL   string `kong:"env=DATAMART_BASE_URL,help='Override the Data Mart base URL.'"`
	Timezone  string `kong:"default='America/Vancouver',env=SOURCE_TIMEZONE,help='Civil timezone of source timestamps.'"`
	LogLevel  string `kong:"default='info',env=LOG_LEVEL,help='Log level: debug, info, warn, error.'"`
	LogFormat string `kong:"default='text',env=LOG_FORMAT,help='Log format: text or json.'"`

	SMTPAddr string   `kong:"env=SMTP_ADDR,help='SMTP host:port for failure mail.'"`
	MailFrom string   `kong:"env=MAIL_FROM,help='Failure mail sender address.'"`
	MailTo   []string `kong:"env=MAIL_TO,help='Failure mail recipients.'"`

	Serve           serveCmd           `kong:"cmd,help='Run the query API with scheduled updates.'"`
	Import          importCmd          `kong:"cmd,help='Import one date or an explicit date range.'"`
	Update          updateCmd          `kong:"cmd,help='Import the trailing window, or backfill from the newest stored observation.'"`
	ImportLocations importLocationsCmd `kong:"cmd,name=import-locations,help='Refresh station locations from the provincial WFS layer.'"`
}

// app carries the shared wiring every subcommand needs.
type app struct {
	store    *store.Store
	importer *importer.Importer
	planner  *importer.Planner
	wfs      *wfs.Client
	loc      *time.Location
	logger   *slog.Logger
}

type serveCmd struct {
	Port         string `kong:"default='8080',env=PORT,help='HTTP listen port.'"`
	UpdateCron   string `kong:"default='0 6 * * *',env=UPDATE_CRON,help='Cron schedule for the in-process update.'"`
	UpdateWindow int    `kong:"default=7,env=UPDATE_WINDOW_DAYS,help='Days covered by each scheduled update.'"`
}

func (c *serveCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New(cron.WithLocation(a.loc))
	_, err := scheduler.AddFunc(c.UpdateCron, func() {
		dates, err := a.planner.TrailingWindow(c.UpdateWindow)
		if err != nil {
			a.logger.Error("scheduled update planning failed", "error", err)
			return
		}
		if _, err := a.importer.Run(ctx, dates); err != nil {
			a.logger.Error("scheduled update failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule update %q: %w", c.UpdateCron, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	a.logger.Info("update scheduled", "cron", c.UpdateCron, "window_days", c.UpdateWindow)

	server := api.NewServer(a.store, a.loc, c.Port, a.logger)
	return server.Run(ctx)
}

type importCmd struct {
	Date      string `kong:"help='Single date to import (YYYY-MM-DD).'"`
	StartDate string `kong:"name=start-date,help='First date of the range (YYYY-MM-DD).'"`
	EndDate   string `kong:"name=end-date,help='Last date of the range, defaults to yesterday.'"`
}

func (c *importCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var start, end time.Time
	switch {
	case c.Date != "":
		if c.StartDate != "" || c.EndDate != "" {
			return fmt.Errorf("--date and --start-date/--end-date are mutually exclusive")
		}
		d, err := parseDate(c.Date, a.loc)
		if err != nil {
			return err
		}
		start, end = d, d
	case c.StartDate != "":
		d, err := parseDate(c.StartDate, a.loc)
		if err != nil {
			return err
		}
		start = d
		if c.EndDate != "" {
			if end, err = parseDate(c.EndDate, a.loc); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("either --date or --start-date is required")
	}

	dates, err := a.planner.Range(start, end)
	if err != nil {
		return err
	}
	_, err = a.importer.Run(ctx, dates)
	return err
}

type updateCmd struct {
	DaysBack int    `kong:"name=days-back,default=7,help='Trailing window size in days.'"`
	Backfill bool   `kong:"help='Import from the newest stored observation through yesterday instead.'"`
	Notify   string `kong:"help='Send a failure summary to this address, overriding MAIL_TO.'"`
}

func (c *updateCmd) Run(a *app, root *cli) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.Notify != "" {
		a.importer.WithNotifier(&importer.MailNotifier{
			Addr: root.SMTPAddr,
			From: root.MailFrom,
			To:   []string{c.Notify},
		})
	}

	var (
		dates []time.Time
		err   error
	)
	if c.Backfill {
		dates, err = a.planner.Backfill()
	} else {
		dates, err = a.planner.TrailingWindow(c.DaysBack)
	}
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		a.logger.Info("already up to date")
		return nil
	}

	_, err = a.importer.Run(ctx, dates)
	return err
}

type importLocationsCmd struct {
	DryRun bool `kong:"name=dry-run,help='Fetch and report without writing.'"`
}

func (c *importLocationsCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stations, err := a.wfs.FetchStations(ctx)
	if err != nil {
		return err
	}

	if c.DryRun {
		for _, st := range stations {
			a.logger.Info("would upsert station", "code", st.Code, "name", st.Name)
		}
		a.logger.Info("dry run complete", "stations", len(stations))
		return nil
	}

	for _, st := range stations {
		if _, err := a.store.UpsertStation(st); err != nil {
			return fmt.Errorf("upsert station %s: %w", st.Code, err)
		}
	}
	a.logger.Info("station locations refreshed", "stations", len(stations))
	return nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

func main() {
	var root cli
	kctx := kong.Parse(&root,
		kong.Name("bcfireweather"),
		kong.Description("BC Wildfire Service fire weather importer and query API."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.UsageOnError(),
	)

	level, err := logging.ParseLevel(root.LogLevel)
	kctx.FatalIfErrorf(err)
	logger := logging.New(level, root.LogFormat)

	loc, err := time.LoadLocation(root.Timezone)
	if err != nil {
		logger.Warn("timezone unavailable, using UTC", "timezone", root.Timezone, "error", err)
		loc = time.UTC
	}

	db, err := sql.Open("sqlite", root.DB)
	if err != nil {
		logger.Error("open database", "path", root.DB, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA foreign_keys=ON")

	st := store.New(db, loc, logger)
	if err := st.Migrate(); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	fetcher := datamart.NewClient(root.BaseURL, logger)
	imp := importer.New(fetcher, st, clock, loc, logger)
	if root.SMTPAddr != "" && len(root.MailTo) > 0 {
		imp.WithNotifier(&importer.MailNotifier{
			Addr: root.SMTPAddr,
			From: root.MailFrom,
			To:   root.MailTo,
		})
	}

	a := &app{
		store:    st,
		importer: imp,
		planner:  importer.NewPlanner(st, clock, loc),
		wfs:      wfs.NewClient("", logger),
		loc:      loc,
		logger:   logger,
	}

	kctx.FatalIfErrorf(kctx.Run(a, &root))
}
