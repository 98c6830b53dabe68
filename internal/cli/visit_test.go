package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/promise4all/visit-management/internal/visit"
)

// apiStub records the last request and answers with resp.
type apiStub struct {
	method string
	path   string
	body   map[string]any
}

func stubServer(t *testing.T, resp any) *apiStub {
	t.Helper()
	stub := &apiStub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.method, stub.path = r.Method, r.URL.Path
		stub.body = nil
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&stub.body)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VISITS_SERVER_URL", srv.URL)
	t.Setenv("VISITS_API_KEY", "vm_test")
	return stub
}

func TestVisitCreateSendsFields(t *testing.T) {
	stub := stubServer(t, visit.Visit{ID: 5, Status: visit.Planned})

	_, err := executeCommand("visit", "create", "CUST-1", "--subject", "Demo", "--at", "2026-02-04 14:30")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if stub.method != http.MethodPost || stub.path != "/api/visits" {
		t.Fatalf("request = %s %s", stub.method, stub.path)
	}
	if stub.body["client"] != "CUST-1" || stub.body["client_type"] != "Customer" || stub.body["subject"] != "Demo" {
		t.Errorf("body = %v", stub.body)
	}
	want := time.Date(2026, 2, 4, 14, 30, 0, 0, time.UTC).Format(time.RFC3339)
	if stub.body["scheduled_time"] != want {
		t.Errorf("scheduled_time = %v, want %s", stub.body["scheduled_time"], want)
	}
}

func TestVisitCheckOutSendsPhotoAndOutcome(t *testing.T) {
	stub := stubServer(t, visit.CheckResult{Visit: 9, CheckOutTime: ptrTime(time.Now())})
	photo := filepath.Join(t.TempDir(), "door.jpg")
	if err := os.WriteFile(photo, []byte("jpeg"), 0o600); err != nil {
		t.Fatalf("write photo: %v", err)
	}

	_, err := executeCommand("visit", "check-out", "9", "--photo", photo, "--outcome", "Interested", "--summary", "ok")
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if stub.path != "/api/visits/9/check-out" {
		t.Fatalf("path = %s", stub.path)
	}
	if stub.body["photo_data"] != "anBlZw==" || stub.body["photo_filename"] != "door.jpg" {
		t.Errorf("photo = %v / %v", stub.body["photo_data"], stub.body["photo_filename"])
	}
	if stub.body["visit_outcome"] != "Interested" || stub.body["report_summary"] != "ok" {
		t.Errorf("body = %v", stub.body)
	}
}

func TestScheduleApproveFlags(t *testing.T) {
	stub := stubServer(t, map[string]any{"approved": 2, "status": "Approved"})

	if _, err := executeCommand("schedule", "approve", "3", "--rows", "1,2", "--create-visits=false"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if stub.path != "/api/schedules/3/approve" {
		t.Fatalf("path = %s", stub.path)
	}
	if rows, _ := stub.body["rows"].([]any); len(rows) != 2 {
		t.Errorf("rows = %v", stub.body["rows"])
	}
	if stub.body["create_visits"] != false {
		t.Errorf("create_visits = %v, want false", stub.body["create_visits"])
	}

	if _, err := executeCommand("schedule", "approve", "3"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, set := stub.body["create_visits"]; set {
		t.Error("create_visits should be left to server policy")
	}
}

func TestOverdueReportJSON(t *testing.T) {
	stub := stubServer(t, []map[string]any{{"client": "CUST-1", "client_visit_overdue": true}})

	if _, err := executeCommand("overdue", "--report", "--format", "json"); err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if stub.path != "/api/overdue/report" {
		t.Errorf("path = %s", stub.path)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
