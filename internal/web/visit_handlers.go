package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/crm"
	"github.com/promise4all/visit-management/internal/db"
	"github.com/promise4all/visit-management/internal/visit"
)

func (s *Server) visitRoutes(api *mux.Router) {
	api.HandleFunc("/visits", s.apiListVisits).Methods(http.MethodGet)
	api.HandleFunc("/visits", s.apiCreateVisit).Methods(http.MethodPost)
	api.HandleFunc("/visits/{id:[0-9]+}", s.apiGetVisit).Methods(http.MethodGet)
	api.HandleFunc("/visits/{id:[0-9]+}", s.apiUpdateVisit).Methods(http.MethodPut)
	api.HandleFunc("/visits/{id:[0-9]+}", s.apiDeleteVisit).Methods(http.MethodDelete)
	api.HandleFunc("/visits/{id:[0-9]+}/check-in", s.apiCheckIn).Methods(http.MethodPost)
	api.HandleFunc("/visits/{id:[0-9]+}/check-out", s.apiCheckOut).Methods(http.MethodPost)
	api.HandleFunc("/visits/{id:[0-9]+}/cancel", s.apiCancelVisit).Methods(http.MethodPost)
	api.HandleFunc("/visits/{id:[0-9]+}/maintenance-visit", s.apiMaintenanceVisit).Methods(http.MethodPost)
	api.HandleFunc("/clients/{type}/{id}/default-address", s.apiDefaultAddress).Methods(http.MethodGet)
	api.HandleFunc("/assignees", s.apiAssignees).Methods(http.MethodGet)
}

func (s *Server) apiListVisits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := visit.Filter{AssignedTo: q.Get("assigned_to")}

	if raw := q.Get("status"); raw != "" {
		st, ok := visit.ParseStatus(raw)
		if !ok {
			apiFail(w, r, apperr.FieldValidation([]string{"status"}, "Unknown status %q.", raw))
			return
		}
		f.Status = st
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
		end  bool
	}{{"from", &f.From, false}, {"to", &f.To, true}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(db.DateLayout, raw)
		if err != nil {
			apiFail(w, r, apperr.FieldValidation([]string{p.name}, "%s must be a date (YYYY-MM-DD).", p.name))
			return
		}
		if p.end {
			t = t.Add(24*time.Hour - time.Second)
		}
		*p.dst = &t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apiFail(w, r, apperr.FieldValidation([]string{"limit"}, "limit must be a positive number."))
			return
		}
		f.Limit = n
	}

	visits, err := s.visits.List(r.Context(), f)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	if visits == nil {
		visits = []*visit.Visit{}
	}
	apiJSON(w, visits, http.StatusOK)
}

func (s *Server) apiCreateVisit(w http.ResponseWriter, r *http.Request) {
	var v visit.Visit
	if !decode(w, r, &v) {
		return
	}
	if v.AssignedTo == "" {
		v.AssignedTo = actor(r)
	}
	created, err := s.visits.Create(r.Context(), actor(r), &v)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, created, http.StatusCreated)
}

func (s *Server) apiGetVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := s.visits.Get(r.Context(), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, v, http.StatusOK)
}

// apiUpdateVisit applies the body on top of the stored visit, so callers
// send only the fields they change.
func (s *Server) apiUpdateVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := s.visits.Get(r.Context(), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	if !decode(w, r, v) {
		return
	}
	v.ID = id

	updated, err := s.visits.Update(r.Context(), actor(r), v)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, updated, http.StatusOK)
}

func (s *Server) apiDeleteVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.visits.Delete(r.Context(), actor(r), id); err != nil {
		apiFail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiCheckIn(w http.ResponseWriter, r *http.Request) {
	s.apiCheck(w, r, s.visits.CheckIn)
}

func (s *Server) apiCheckOut(w http.ResponseWriter, r *http.Request) {
	s.apiCheck(w, r, s.visits.CheckOut)
}

type checkFunc func(ctx context.Context, actor string, id int64, in visit.CheckInput) (*visit.CheckResult, error)

func (s *Server) apiCheck(w http.ResponseWriter, r *http.Request, fn checkFunc) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in visit.CheckInput
	if !decode(w, r, &in) {
		return
	}
	res, err := fn(r.Context(), actor(r), id, in)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

func (s *Server) apiCancelVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := s.visits.Cancel(r.Context(), actor(r), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, v, http.StatusOK)
}

func (s *Server) apiMaintenanceVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	mv, err := s.visits.CreateMaintenanceVisitNow(r.Context(), actor(r), id)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, map[string]int64{"maintenance_visit": mv}, http.StatusCreated)
}

func (s *Server) apiDefaultAddress(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, err := s.visits.ClientDefaultAddress(r.Context(), crm.Ref{Kind: crm.Kind(vars["type"]), ID: vars["id"]})
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, map[string]string{"address": addr}, http.StatusOK)
}

func (s *Server) apiAssignees(w http.ResponseWriter, r *http.Request) {
	users, err := s.dashboard.Assignees(r.Context())
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, users, http.StatusOK)
}
