package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/promise4all/visit-management/internal/dashboard"
	"github.com/promise4all/visit-management/internal/schedule"
	"github.com/promise4all/visit-management/internal/visit"
)

func jsonServer(t *testing.T, check func(r *http.Request), resp any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer testkey" {
			t.Error("expected Bearer testkey")
		}
		check(r)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListVisits(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		if r.URL.Path != "/api/visits" {
			t.Errorf("path = %q, want /api/visits", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("status") != "Planned" || q.Get("assigned_to") != "rep@example.com" || q.Get("limit") != "5" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
	}, []*visit.Visit{{ID: 1, Client: "CUST-1"}})

	c := New(srv.URL, "testkey")
	visits, err := c.ListVisits(ListOptions{AssignedTo: "rep@example.com", Status: "Planned", Limit: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visits) != 1 || visits[0].Client != "CUST-1" {
		t.Errorf("visits = %+v", visits)
	}
}

func TestCreateVisit(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/visits" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var v visit.Visit
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			t.Errorf("decode: %v", err)
		}
		if v.Subject != "Demo" {
			t.Errorf("subject = %q", v.Subject)
		}
	}, visit.Visit{ID: 7, Subject: "Demo", Status: visit.Planned})

	c := New(srv.URL, "testkey")
	v, err := c.CreateVisit(&visit.Visit{ClientType: "Customer", Client: "CUST-1", Subject: "Demo"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.ID != 7 || v.Status != visit.Planned {
		t.Errorf("visit = %+v", v)
	}
}

func TestCheckIn(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		if r.URL.Path != "/api/visits/3/check-in" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var in visit.CheckInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		if in.Location != "1,2" {
			t.Errorf("location = %q", in.Location)
		}
	}, visit.CheckResult{Visit: 3, Employee: "EMP-1"})

	c := New(srv.URL, "testkey")
	res, err := c.CheckIn(3, visit.CheckInput{Location: "1,2"})
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if res.Employee != "EMP-1" {
		t.Errorf("employee = %q", res.Employee)
	}
}

func TestApproveRows(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		if r.URL.Path != "/api/schedules/4/approve" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body struct {
			Rows         []int64 `json:"rows"`
			CreateVisits *bool   `json:"create_visits"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body.Rows) != 2 || body.CreateVisits == nil || *body.CreateVisits {
			t.Errorf("body = %+v", body)
		}
	}, schedule.ApproveResult{Approved: 2, Status: schedule.Approved})

	c := New(srv.URL, "testkey")
	create := false
	res, err := c.ApproveRows(4, []int64{1, 2}, &create)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if res.Approved != 2 || res.Status != schedule.Approved {
		t.Errorf("result = %+v", res)
	}
}

func TestWeekRowsQuery(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		if r.URL.Path != "/api/schedules/week" || r.URL.Query().Get("week_start") != "2026-02-02" {
			t.Errorf("request = %s", r.URL)
		}
		if r.URL.Query().Has("user") {
			t.Error("user should be omitted")
		}
	}, []schedule.RowView{{Name: 1, Day: "Monday"}})

	c := New(srv.URL, "testkey")
	rows, err := c.WeekRows("", "2026-02-02")
	if err != nil {
		t.Fatalf("week rows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows", len(rows))
	}
}

func TestKPIs(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		q := r.URL.Query()
		if q.Get("mode") != "team" || q.Get("period") != "week" || q.Get("overdue_within_period") != "true" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
	}, dashboard.KPIs{Planned: 3, EffectiveMode: "team"})

	c := New(srv.URL, "testkey")
	k, err := c.KPIs(dashboard.KPIRequest{Mode: "team", Period: "week", OverdueWithinPeriod: true})
	if err != nil {
		t.Fatalf("kpis: %v", err)
	}
	if k.Planned != 3 {
		t.Errorf("planned = %d", k.Planned)
	}
}

func TestOverdueCount(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) {
		if r.URL.Path != "/api/overdue/count" {
			t.Errorf("path = %q", r.URL.Path)
		}
	}, dashboard.NumberCard{Value: 4, FieldType: "Int"})

	n, err := New(srv.URL, "testkey").OverdueCount()
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"Client is required.","fields":["client"]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "testkey").CreateVisit(&visit.Visit{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Message != "Client is required." {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if len(apiErr.Fields) != 1 || apiErr.Fields[0] != "client" {
		t.Errorf("fields = %v", apiErr.Fields)
	}
}

func TestAPIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, "testkey").DeleteVisit(1)
	if err == nil || err.Error() != "server error: Bad Gateway" {
		t.Errorf("err = %v", err)
	}
}
