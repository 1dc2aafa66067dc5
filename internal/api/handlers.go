package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/flow"
	"github.com/BTreeMap/VisitDesk/internal/models"
)

// todayPatient is the JSON shape of one row of the today report.
type todayPatient struct {
	FullName  string `json:"full_name"`
	BirthDate string `json:"birth_date"`
}

// weekdayCount is the JSON shape of one bucket of the weekly report.
type weekdayCount struct {
	Weekday int    `json:"weekday"`
	Day     string `json:"day"`
	Count   int    `json:"count"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(s.logger, w, http.StatusOK, models.Success(nil))
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	writeJSONResponse(s.logger, w, http.StatusTooManyRequests, models.Error("rate limit exceeded"))
}

func (s *Server) todayHandler(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	rows, err := s.store.GetTodayPatients(r.Context(), owner)
	if err != nil {
		s.logger.Error("Server todayHandler query failed", zap.Int64("owner_id", owner), zap.Error(err))
		writeJSONResponse(s.logger, w, http.StatusInternalServerError, models.Error("failed to load today's patients"))
		return
	}
	out := make([]todayPatient, 0, len(rows))
	for _, p := range rows {
		out = append(out, todayPatient{FullName: p.FullName, BirthDate: p.BirthDate.Format(models.DateLayout)})
	}
	writeJSONResponse(s.logger, w, http.StatusOK, models.Success(out))
}

func (s *Server) weekHandler(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	rows, err := s.store.GetWeeklyStats(r.Context(), owner)
	if err != nil {
		s.logger.Error("Server weekHandler query failed", zap.Int64("owner_id", owner), zap.Error(err))
		writeJSONResponse(s.logger, w, http.StatusInternalServerError, models.Error("failed to load weekly stats"))
		return
	}
	out := make([]weekdayCount, 0, len(rows))
	for _, c := range rows {
		out = append(out, weekdayCount{Weekday: c.Weekday, Day: flow.WeekdayName(c.Weekday), Count: c.Count})
	}
	writeJSONResponse(s.logger, w, http.StatusOK, models.Success(out))
}
