package web

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/promise4all/visit-management/internal/schedule"
)

func (s *Server) scheduleRoutes(api *mux.Router) {
	api.HandleFunc("/schedules/week", s.apiWeekRows).Methods(http.MethodGet)
	api.HandleFunc("/schedules/plan", s.apiPlanVisits).Methods(http.MethodPost)
	api.HandleFunc("/schedules", s.apiSaveSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id:[0-9]+}", s.apiGetSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{id:[0-9]+}/approve", s.apiApproveRows).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id:[0-9]+}/create-visits", s.apiCreateScheduleVisits).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{id:[0-9]+}/reject", s.apiRejectSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedule-rows/{id:[0-9]+}/approve", s.apiApproveRow).Methods(http.MethodPost)
}

type weekQuery struct {
	User      string `json:"user" validate:"omitempty,email"`
	WeekStart string `json:"week_start" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) apiWeekRows(w http.ResponseWriter, r *http.Request) {
	q := weekQuery{User: r.URL.Query().Get("user"), WeekStart: r.URL.Query().Get("week_start")}
	if !s.check(w, r, &q) {
		return
	}
	rows, err := s.schedules.WeekRows(r.Context(), actor(r), q.User, q.WeekStart)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, rows, http.StatusOK)
}

func (s *Server) apiPlanVisits(w http.ResponseWriter, r *http.Request) {
	var q weekQuery
	if !decode(w, r, &q) || !s.check(w, r, &q) {
		return
	}
	res, err := s.schedules.CreatePlannedVisits(r.Context(), actor(r), q.User, q.WeekStart)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

func (s *Server) apiSaveSchedule(w http.ResponseWriter, r *http.Request) {
	var ws schedule.WeeklySchedule
	if !decode(w, r, &ws) {
		return
	}
	saved, err := s.schedules.Save(r.Context(), actor(r), &ws)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, saved, http.StatusOK)
}

func (s *Server) apiGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ws, err := s.schedules.Get(r.Context(), actor(r), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, ws, http.StatusOK)
}

type approveRequest struct {
	Rows         []int64 `json:"rows" validate:"dive,gt=0"`
	CreateVisits *bool   `json:"create_visits"`
}

func (s *Server) apiApproveRows(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decode(w, r, &req) || !s.check(w, r, &req) {
		return
	}
	res, err := s.schedules.ApproveRows(r.Context(), actor(r), id, req.Rows, req.CreateVisits)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

func (s *Server) apiApproveRow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.schedules.ApproveWeeklyRow(r.Context(), actor(r), id, req.CreateVisits)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

func (s *Server) apiCreateScheduleVisits(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.schedules.CreateVisitsForApprovedRows(r.Context(), actor(r), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

func (s *Server) apiRejectSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ws, err := s.schedules.Reject(r.Context(), actor(r), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, ws, http.StatusOK)
}
