package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/schedscope/schedscope/pkg/acquire"
	"github.com/schedscope/schedscope/pkg/navigator"
	"github.com/schedscope/schedscope/pkg/schedule"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// pathParam returns the decoded URL parameter. chi routes on the raw path
// when the client escaped it unusually.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (s *Server) handleInstitutes(w http.ResponseWriter, r *http.Request) {
	institutes, err := s.Catalog.Institutes(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, institutes)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	institute := pathParam(r, "institute")
	course := 0
	if c := r.URL.Query().Get("course"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("course must be a positive number"))
			return
		}
		course = n
	}

	groups, err := s.Catalog.Groups(r.Context(), institute, course)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if len(groups) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no groups found for "+institute))
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

type scheduleResponse struct {
	Group     string               `json:"group"`
	Category  string               `json:"category,omitempty"`
	Variant   string               `json:"variant,omitempty"`
	Week      string               `json:"week,omitempty"`
	Window    *schedule.WeekWindow `json:"window,omitempty"`
	FromCache bool                 `json:"from_cache"`
	Records   []schedule.Record    `json:"records"`
	Warnings  []schedule.Warning   `json:"warnings,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	q := schedule.Query{
		Group: pathParam(r, "group"),
		Date:  r.URL.Query().Get("date"),
	}
	if wk := r.URL.Query().Get("week"); wk != "" {
		n, err := strconv.Atoi(wk)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("week must be a positive number"))
			return
		}
		q.Week = n
	}

	res, err := s.Fetcher.Fetch(r.Context(), q)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func toResponse(res *acquire.Result) scheduleResponse {
	records := res.Records
	if records == nil {
		records = []schedule.Record{}
	}
	return scheduleResponse{
		Group:     res.Query.Group,
		Category:  res.Category,
		Variant:   res.Variant,
		Week:      res.Week,
		Window:    res.Window,
		FromCache: res.FromCache,
		Records:   records,
		Warnings:  res.Warnings,
	}
}

func statusFor(err error) int {
	switch {
	case navigator.IsKind(err, navigator.BadDateFormat):
		return http.StatusBadRequest
	case navigator.IsKind(err, navigator.GroupNotFound), navigator.IsKind(err, navigator.WeekNotFound):
		return http.StatusNotFound
	case navigator.IsKind(err, navigator.Timeout), navigator.IsKind(err, navigator.FormNotReady):
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, acquire.ErrInvalidQuery) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, http.StatusNotFound, errors.New("no database configured"))
		return
	}
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
