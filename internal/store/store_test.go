package store

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/firewx/bcfireweather/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	loc, err := time.LoadLocation("America/Vancouver")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	store := New(db, loc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func obs(stationID int64, at time.Time) models.Observation {
	return models.Observation{
		StationID:   stationID,
		ObservedAt:  at,
		Temperature: nf(21.5),
	}
}

func TestUpsertStation_CreateAndLookup(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.UpsertStation(models.StationUpsert{
		Code:     "1021",
		Name:     "AFTON",
		Latitude: nf(50.68),
	})
	if err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero station id")
	}

	st, err := store.GetStationByCode("1021")
	if err != nil {
		t.Fatalf("GetStationByCode: %v", err)
	}
	if st == nil {
		t.Fatal("station not found after upsert")
	}
	if st.Name != "AFTON" {
		t.Errorf("Name = %q, want AFTON", st.Name)
	}
	if st.Province != "BC" {
		t.Errorf("Province = %q, want BC", st.Province)
	}
	if !st.Active {
		t.Error("new station should be active")
	}
}

func TestUpsertStation_NullNeverClears(t *testing.T) {
	store := setupTestStore(t)

	id1, err := store.UpsertStation(models.StationUpsert{
		Code:      "1021",
		Name:      "AFTON",
		Latitude:  nf(50.68),
		Longitude: nf(-120.49),
		Elevation: nf(701),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Second sighting carries no coordinates and no name.
	id2, err := store.UpsertStation(models.StationUpsert{Code: "1021"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("upsert returned new id %d, want %d", id2, id1)
	}

	st, err := store.GetStationByCode("1021")
	if err != nil {
		t.Fatalf("GetStationByCode: %v", err)
	}
	if st.Name != "AFTON" {
		t.Errorf("Name = %q, want AFTON preserved", st.Name)
	}
	if !st.Latitude.Valid || st.Latitude.Float64 != 50.68 {
		t.Errorf("Latitude = %+v, want 50.68 preserved", st.Latitude)
	}
	if !st.Elevation.Valid || st.Elevation.Float64 != 701 {
		t.Errorf("Elevation = %+v, want 701 preserved", st.Elevation)
	}
	if !st.LastUpdated.Valid {
		t.Error("LastUpdated should be set after upsert")
	}
}

func TestUpsertStation_NonNullOverwrites(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.UpsertStation(models.StationUpsert{Code: "1021", Name: "AFTON"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := store.UpsertStation(models.StationUpsert{Code: "1021", Name: "AFTON 2", Latitude: nf(50.7)}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	st, err := store.GetStationByCode("1021")
	if err != nil {
		t.Fatalf("GetStationByCode: %v", err)
	}
	if st.Name != "AFTON 2" {
		t.Errorf("Name = %q, want AFTON 2", st.Name)
	}
	if !st.Latitude.Valid || st.Latitude.Float64 != 50.7 {
		t.Errorf("Latitude = %+v, want 50.7", st.Latitude)
	}
}

func TestUpsertStation_ActivateRestoresDeactivated(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.UpsertStation(models.StationUpsert{Code: "1021", Name: "AFTON"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := store.db.Exec(`UPDATE stations SET active = FALSE WHERE code = '1021'`); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// A day-file sighting does not reactivate.
	if _, err := store.UpsertStation(models.StationUpsert{Code: "1021"}); err != nil {
		t.Fatalf("csv upsert: %v", err)
	}
	st, err := store.GetStationByCode("1021")
	if err != nil {
		t.Fatalf("GetStationByCode: %v", err)
	}
	if st.Active {
		t.Error("day-file upsert should not reactivate a deactivated station")
	}

	// The authoritative station layer does.
	if _, err := store.UpsertStation(models.StationUpsert{Code: "1021", Activate: true}); err != nil {
		t.Fatalf("location upsert: %v", err)
	}
	st, err = store.GetStationByCode("1021")
	if err != nil {
		t.Fatalf("GetStationByCode: %v", err)
	}
	if !st.Active {
		t.Error("authoritative upsert should reactivate the station")
	}
}

func TestInsertObservations_SkipsDuplicates(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.UpsertStation(models.StationUpsert{Code: "1021"})
	if err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}

	at := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	inserted, err := store.InsertObservations([]models.Observation{
		obs(id, at),
		obs(id, at.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("InsertObservations: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("inserted = %d, want 2", inserted)
	}

	// Re-importing the same batch plus one new row inserts only the new row.
	inserted, err = store.InsertObservations([]models.Observation{
		obs(id, at),
		obs(id, at.Add(time.Hour)),
		obs(id, at.Add(2*time.Hour)),
	})
	if err != nil {
		t.Fatalf("InsertObservations again: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("inserted = %d, want 1", inserted)
	}

	total, err := store.CountObservations()
	if err != nil {
		t.Fatalf("CountObservations: %v", err)
	}
	if total != 3 {
		t.Fatalf("CountObservations = %d, want 3", total)
	}
}

func TestInsertObservations_DuplicateKeepsOriginal(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.UpsertStation(models.StationUpsert{Code: "1021"})
	if err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}

	at := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	first := obs(id, at)
	first.Temperature = nf(21.5)
	if _, err := store.InsertObservations([]models.Observation{first}); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := obs(id, at)
	second.Temperature = nf(99)
	if _, err := store.InsertObservations([]models.Observation{second}); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	got, err := store.ListObservations(ObservationFilter{StationID: id})
	if err != nil {
		t.Fatalf("ListObservations: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Temperature.Float64 != 21.5 {
		t.Errorf("Temperature = %v, want original 21.5", got[0].Temperature.Float64)
	}
}

func TestLatestObservationTime_ReturnsNewest(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.UpsertStation(models.StationUpsert{Code: "1021"})
	if err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}

	at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	if _, err := store.InsertObservations([]models.Observation{
		obs(id, at),
		obs(id, at.Add(2*time.Hour)),
		obs(id, at.Add(time.Hour)),
	}); err != nil {
		t.Fatalf("InsertObservations: %v", err)
	}

	latest, err := store.LatestObservationTime()
	if err != nil {
		t.Fatalf("LatestObservationTime: %v", err)
	}
	if !latest.Valid {
		t.Fatal("expected valid NullTime")
	}
	if !latest.Time.UTC().Equal(at.Add(2 * time.Hour)) {
		t.Errorf("latest = %v, want %v", latest.Time.UTC(), at.Add(2*time.Hour))
	}
}

func TestLatestObservationTime_EmptyStore(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.LatestObservationTime()
	if err != nil {
		t.Fatalf("LatestObservationTime: %v", err)
	}
	if latest.Valid {
		t.Errorf("expected invalid NullTime for empty store, got %v", latest.Time)
	}
}

func TestListStations_Filters(t *testing.T) {
	store := setupTestStore(t)

	id1, err := store.UpsertStation(models.StationUpsert{Code: "1021", Name: "AFTON"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.UpsertStation(models.StationUpsert{Code: "1032", Name: "SPARKS LAKE"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	at := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	if _, err := store.InsertObservations([]models.Observation{obs(id1, at)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	all, err := store.ListStations(StationFilter{})
	if err != nil {
		t.Fatalf("ListStations: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	withData, err := store.ListStations(StationFilter{HasData: true})
	if err != nil {
		t.Fatalf("ListStations has_data: %v", err)
	}
	if len(withData) != 1 || withData[0].Code != "1021" {
		t.Fatalf("has_data filter returned %+v, want only 1021", withData)
	}

	found, err := store.ListStations(StationFilter{Search: "sparks"})
	if err != nil {
		t.Fatalf("ListStations search: %v", err)
	}
	if len(found) != 1 || found[0].Code != "1032" {
		t.Fatalf("search returned %+v, want only 1032", found)
	}
}

func TestGetStation_DetailAndMissing(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.UpsertStation(models.StationUpsert{Code: "1021", Name: "AFTON"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	at := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	if _, err := store.InsertObservations([]models.Observation{obs(id, at), obs(id, at.Add(time.Hour))}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	detail, err := store.GetStation(id)
	if err != nil {
		t.Fatalf("GetStation: %v", err)
	}
	if detail == nil {
		t.Fatal("GetStation returned nil")
	}
	if detail.ObservationCount != 2 {
		t.Errorf("ObservationCount = %d, want 2", detail.ObservationCount)
	}
	if !detail.LatestObservation.Valid {
		t.Error("LatestObservation should be set")
	}

	missing, err := store.GetStation(9999)
	if err != nil {
		t.Fatalf("GetStation missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown station, got %+v", missing)
	}
}

func TestLatestPerStation(t *testing.T) {
	store := setupTestStore(t)

	id1, _ := store.UpsertStation(models.StationUpsert{Code: "1021"})
	id2, _ := store.UpsertStation(models.StationUpsert{Code: "1032"})
	if _, err := store.UpsertStation(models.StationUpsert{Code: "1040"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	_, err := store.InsertObservations([]models.Observation{
		obs(id1, at),
		obs(id1, at.Add(3*time.Hour)),
		obs(id2, at.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	latest, err := store.LatestPerStation()
	if err != nil {
		t.Fatalf("LatestPerStation: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("len(latest) = %d, want 2 (station without data excluded)", len(latest))
	}
	if got := latest["1021"].ObservedAt.UTC(); !got.Equal(at.Add(3 * time.Hour)) {
		t.Errorf("latest for 1021 = %v, want %v", got, at.Add(3*time.Hour))
	}
}

func TestRecentObservations_PerStationLimit(t *testing.T) {
	store := setupTestStore(t)

	id1, _ := store.UpsertStation(models.StationUpsert{Code: "1021"})
	id2, _ := store.UpsertStation(models.StationUpsert{Code: "1032"})

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	_, err := store.InsertObservations([]models.Observation{
		obs(id1, base),
		obs(id1, base.Add(time.Hour)),
		obs(id1, base.Add(2*time.Hour)),
		obs(id2, base.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	recent, err := store.RecentObservations(base, 1)
	if err != nil {
		t.Fatalf("RecentObservations: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2 (one per station)", len(recent))
	}
	if !recent[0].ObservedAt.UTC().Equal(base.Add(2 * time.Hour)) {
		t.Errorf("first = %v, want newest overall", recent[0].ObservedAt)
	}

	recent, err = store.RecentObservations(base, 2)
	if err != nil {
		t.Fatalf("RecentObservations: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len = %d, want 3", len(recent))
	}
}

func TestStationStatistics(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.UpsertStation(models.StationUpsert{Code: "1021"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	o1 := obs(id, base)
	o1.Temperature = nf(10)
	o1.Precipitation = nf(1.5)
	o1.RelativeHumidity = sql.NullInt64{Int64: 40, Valid: true}
	o2 := obs(id, base.Add(time.Hour))
	o2.Temperature = nf(20)
	o2.Precipitation = nf(0.5)
	o2.RelativeHumidity = sql.NullInt64{Int64: 60, Valid: true}
	if _, err := store.InsertObservations([]models.Observation{o1, o2}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stats, err := store.StationStatistics(id, base.Add(-time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("StationStatistics: %v", err)
	}
	if stats.TotalObservations != 2 {
		t.Fatalf("TotalObservations = %d, want 2", stats.TotalObservations)
	}
	if !stats.AvgTemperature.Valid || stats.AvgTemperature.Float64 != 15 {
		t.Errorf("AvgTemperature = %+v, want 15", stats.AvgTemperature)
	}
	if !stats.TotalPrecipitation.Valid || stats.TotalPrecipitation.Float64 != 2 {
		t.Errorf("TotalPrecipitation = %+v, want 2", stats.TotalPrecipitation)
	}
	if !stats.MinHumidity.Valid || stats.MinHumidity.Int64 != 40 {
		t.Errorf("MinHumidity = %+v, want 40", stats.MinHumidity)
	}
}

func TestStationStatistics_EmptyWindow(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.UpsertStation(models.StationUpsert{Code: "1021"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stats, err := store.StationStatistics(id, start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("StationStatistics: %v", err)
	}
	if stats.TotalObservations != 0 {
		t.Errorf("TotalObservations = %d, want 0", stats.TotalObservations)
	}
	if stats.AvgTemperature.Valid {
		t.Errorf("AvgTemperature = %+v, want null", stats.AvgTemperature)
	}
	if stats.TotalPrecipitation.Valid {
		t.Errorf("TotalPrecipitation = %+v, want null", stats.TotalPrecipitation)
	}
}

func TestSaveImportRun(t *testing.T) {
	store := setupTestStore(t)

	run := models.ImportRun{
		ID:                   "run-1",
		StartedAt:            time.Now().UTC(),
		FinishedAt:           time.Now().UTC(),
		DaysAttempted:        3,
		DaysSucceeded:        2,
		DaysErrored:          1,
		ObservationsInserted: 140,
		DuplicatesSkipped:    4,
		RowErrors:            1,
		StationsTouched:      70,
	}
	if err := store.SaveImportRun(run); err != nil {
		t.Fatalf("SaveImportRun: %v", err)
	}
}
