package web

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/promise4all/visit-management/internal/dashboard"
)

func (s *Server) dashboardRoutes(api *mux.Router) {
	api.HandleFunc("/kpis", s.apiKPIs).Methods(http.MethodGet)
	api.HandleFunc("/overdue/count", s.apiOverdueCount).Methods(http.MethodGet)
	api.HandleFunc("/overdue/report", s.apiOverdueReport).Methods(http.MethodGet)
}

type kpiQuery struct {
	Mode    string `json:"mode" validate:"omitempty,oneof=my team"`
	User    string `json:"user" validate:"omitempty,email"`
	Period  string `json:"period" validate:"omitempty,oneof=today week month quarter year custom"`
	From    string `json:"from_date" validate:"omitempty,datetime=2006-01-02"`
	To      string `json:"to_date" validate:"omitempty,datetime=2006-01-02"`
	Overdue string `json:"overdue_within_period" validate:"omitempty,boolean"`
}

func (s *Server) apiKPIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kq := kpiQuery{
		Mode:    q.Get("mode"),
		User:    q.Get("user"),
		Period:  q.Get("period"),
		From:    q.Get("from_date"),
		To:      q.Get("to_date"),
		Overdue: q.Get("overdue_within_period"),
	}
	if !s.check(w, r, &kq) {
		return
	}
	within, _ := strconv.ParseBool(kq.Overdue)

	kpis, err := s.dashboard.KPIs(r.Context(), actor(r), dashboard.KPIRequest{
		Mode:                kq.Mode,
		User:                kq.User,
		Period:              kq.Period,
		From:                kq.From,
		To:                  kq.To,
		OverdueWithinPeriod: within,
	})
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, kpis, http.StatusOK)
}

func (s *Server) apiOverdueCount(w http.ResponseWriter, r *http.Request) {
	card, err := s.dashboard.FrequencyOverdueCount(r.Context())
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, card, http.StatusOK)
}

func (s *Server) apiOverdueReport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.frequency.Report(r.Context(), s.now())
	if err != nil {
		apiFail(w, r, err)
		return
	}
	if r.URL.Query().Get("overdue") == "1" {
		filtered := rows[:0]
		for _, row := range rows {
			if row.Overdue {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	apiJSON(w, rows, http.StatusOK)
}
