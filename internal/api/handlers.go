package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/firewx/bcfireweather/internal/store"
)

func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.StationFilter{Search: q.Get("search")}

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			s.error(w, http.StatusBadRequest, fmt.Sprintf("invalid active value %q", v))
			return
		}
		filter.Active = &active
	}
	if v := q.Get("has_data"); v != "" {
		hasData, err := strconv.ParseBool(v)
		if err != nil {
			s.error(w, http.StatusBadRequest, fmt.Sprintf("invalid has_data value %q", v))
			return
		}
		filter.HasData = hasData
	}

	stations, err := s.store.ListStations(filter)
	if err != nil {
		s.internalError(w, "list stations", err)
		return
	}

	out := make([]stationJSON, 0, len(stations))
	for _, st := range stations {
		out = append(out, toStationJSON(st))
	}
	s.json(w, http.StatusOK, out)
}

func (s *Server) handleGetStation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.stationID(w, r)
	if !ok {
		return
	}

	detail, err := s.store.GetStation(id)
	if err != nil {
		s.internalError(w, "get station", err)
		return
	}
	if detail == nil {
		s.error(w, http.StatusNotFound, "station not found")
		return
	}

	s.json(w, http.StatusOK, stationDetailJSON{
		stationJSON:       toStationJSON(detail.Station),
		ObservationCount:  detail.ObservationCount,
		LatestObservation: nullTime(detail.LatestObservation),
	})
}

func (s *Server) handleStationWithObservations(w http.ResponseWriter, r *http.Request) {
	id, ok := s.stationID(w, r)
	if !ok {
		return
	}

	hours, err := queryInt(r, "hours", 24)
	if err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := s.store.GetStation(id)
	if err != nil {
		s.internalError(w, "get station", err)
		return
	}
	if detail == nil {
		s.error(w, http.StatusNotFound, "station not found")
		return
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	observations, err := s.store.StationObservations(id, start, end, 0)
	if err != nil {
		s.internalError(w, "station observations", err)
		return
	}

	s.json(w, http.StatusOK, stationWithObservationsJSON{
		stationJSON:  toStationJSON(detail.Station),
		Observations: toObservationListJSON(observations),
	})
}

func (s *Server) handleStationStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := s.stationID(w, r)
	if !ok {
		return
	}

	detail, err := s.store.GetStation(id)
	if err != nil {
		s.internalError(w, "get station", err)
		return
	}
	if detail == nil {
		s.error(w, http.StatusNotFound, "station not found")
		return
	}

	// The window always ends now unless end_date narrows it; the start
	// comes from start_date, or from the trailing days count.
	q := r.URL.Query()
	end := time.Now().UTC()
	if v := q.Get("end_date"); v != "" {
		end, err = s.parseDate(v)
		if err != nil {
			s.error(w, http.StatusBadRequest, err.Error())
			return
		}
		// An end date covers its whole day.
		end = end.AddDate(0, 0, 1).Add(-time.Second)
	}

	var start time.Time
	if v := q.Get("start_date"); v != "" {
		start, err = s.parseDate(v)
		if err != nil {
			s.error(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		days, err := queryInt(r, "days", 7)
		if err != nil {
			s.error(w, http.StatusBadRequest, err.Error())
			return
		}
		start = end.AddDate(0, 0, -days)
	}

	stats, err := s.store.StationStatistics(id, start, end)
	if err != nil {
		s.internalError(w, "station statistics", err)
		return
	}

	s.json(w, http.StatusOK, toStatisticsJSON(detail.Station, stats))
}

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ObservationFilter{StationCode: q.Get("station_code")}

	if v := q.Get("station"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.error(w, http.StatusBadRequest, fmt.Sprintf("invalid station id %q", v))
			return
		}
		filter.StationID = id
	}

	if v := q.Get("hours"); v != "" {
		hours, err := queryInt(r, "hours", 0)
		if err != nil {
			s.error(w, http.StatusBadRequest, err.Error())
			return
		}
		start := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		filter.Start = &start
	} else {
		if v := q.Get("start_date"); v != "" {
			start, err := s.parseDate(v)
			if err != nil {
				s.error(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Start = &start
		}
		if v := q.Get("end_date"); v != "" {
			end, err := s.parseDate(v)
			if err != nil {
				s.error(w, http.StatusBadRequest, err.Error())
				return
			}
			end = end.AddDate(0, 0, 1).Add(-time.Second)
			filter.End = &end
		}
	}

	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	filter.Limit = limit

	observations, err := s.store.ListObservations(filter)
	if err != nil {
		s.internalError(w, "list observations", err)
		return
	}
	s.json(w, http.StatusOK, toObservationListJSON(observations))
}

func (s *Server) handleLatestObservations(w http.ResponseWriter, _ *http.Request) {
	latest, err := s.store.LatestPerStation()
	if err != nil {
		s.internalError(w, "latest observations", err)
		return
	}

	out := make(map[string]observationJSON, len(latest))
	for code, o := range latest {
		out[code] = toObservationJSON(o)
	}
	s.json(w, http.StatusOK, out)
}

func (s *Server) handleRecentObservations(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 1)
	if err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}
	perStation, err := queryInt(r, "limit", 1)
	if err != nil {
		s.error(w, http.StatusBadRequest, err.Error())
		return
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	observations, err := s.store.RecentObservations(since, perStation)
	if err != nil {
		s.internalError(w, "recent observations", err)
		return
	}
	s.json(w, http.StatusOK, toObservationListJSON(observations))
}

func (s *Server) stationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.error(w, http.StatusBadRequest, fmt.Sprintf("invalid station id %q", raw))
		return 0, false
	}
	return id, true
}

// parseDate reads a YYYY-MM-DD query value as midnight in the source
// timezone.
func (s *Server) parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing date parameter")
	}
	t, err := time.ParseInLocation("2006-01-02", value, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s value %q", name, v)
	}
	return n, nil
}
