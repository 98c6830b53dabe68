// Package client provides an HTTP client for the visit management API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/dashboard"
	"github.com/promise4all/visit-management/internal/frequency"
	"github.com/promise4all/visit-management/internal/schedule"
	"github.com/promise4all/visit-management/internal/visit"
)

// Client is an HTTP client for the visit management API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []string
}

func (e *APIError) Error() string {
	return e.Message
}

// ListOptions controls filtering for ListVisits.
type ListOptions struct {
	AssignedTo string
	Status     string
	From       string // YYYY-MM-DD
	To         string // YYYY-MM-DD
	Limit      int
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.AssignedTo != "" {
		q.Set("assigned_to", o.AssignedTo)
	}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.From != "" {
		q.Set("from", o.From)
	}
	if o.To != "" {
		q.Set("to", o.To)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListVisits returns visits, optionally filtered.
func (c *Client) ListVisits(opts ListOptions) ([]*visit.Visit, error) {
	var visits []*visit.Visit
	if err := c.get("/api/visits"+opts.query(), &visits); err != nil {
		return nil, err
	}
	return visits, nil
}

// GetVisit returns a visit with its log.
func (c *Client) GetVisit(id int64) (*visit.Visit, error) {
	var v visit.Visit
	if err := c.get(fmt.Sprintf("/api/visits/%d", id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVisit creates a visit.
func (c *Client) CreateVisit(v *visit.Visit) (*visit.Visit, error) {
	var created visit.Visit
	if err := c.send(http.MethodPost, "/api/visits", v, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateVisit applies fields on top of the stored visit.
func (c *Client) UpdateVisit(id int64, fields map[string]any) (*visit.Visit, error) {
	var updated visit.Visit
	if err := c.send(http.MethodPut, fmt.Sprintf("/api/visits/%d", id), fields, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteVisit removes an unsubmitted visit.
func (c *Client) DeleteVisit(id int64) error {
	return c.send(http.MethodDelete, fmt.Sprintf("/api/visits/%d", id), nil, nil)
}

// CheckIn records arrival at a visit.
func (c *Client) CheckIn(id int64, in visit.CheckInput) (*visit.CheckResult, error) {
	var res visit.CheckResult
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/visits/%d/check-in", id), in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CheckOut records departure and completes the visit.
func (c *Client) CheckOut(id int64, in visit.CheckInput) (*visit.CheckResult, error) {
	var res visit.CheckResult
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/visits/%d/check-out", id), in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CancelVisit cancels a visit. Managers only.
func (c *Client) CancelVisit(id int64) (*visit.Visit, error) {
	var v visit.Visit
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/visits/%d/cancel", id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateMaintenanceVisit links a new maintenance visit to a completed
// maintenance visit and returns its id.
func (c *Client) CreateMaintenanceVisit(id int64) (int64, error) {
	var resp struct {
		MaintenanceVisit int64 `json:"maintenance_visit"`
	}
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/visits/%d/maintenance-visit", id), nil, &resp); err != nil {
		return 0, err
	}
	return resp.MaintenanceVisit, nil
}

// DefaultAddress returns the default address of a client.
func (c *Client) DefaultAddress(clientType, client string) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	path := fmt.Sprintf("/api/clients/%s/%s/default-address", url.PathEscape(clientType), url.PathEscape(client))
	if err := c.get(path, &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

// Assignees returns users with visits assigned.
func (c *Client) Assignees() ([]string, error) {
	var users []string
	if err := c.get("/api/assignees", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// WeekRows returns the rows of user's schedule for weekStart. Empty values
// mean the caller and the current week.
func (c *Client) WeekRows(user, weekStart string) ([]schedule.RowView, error) {
	var rows []schedule.RowView
	if err := c.get("/api/schedules/week"+weekQuery(user, weekStart), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func weekQuery(user, weekStart string) string {
	q := url.Values{}
	if user != "" {
		q.Set("user", user)
	}
	if weekStart != "" {
		q.Set("week_start", weekStart)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// GetSchedule returns a weekly schedule with its rows.
func (c *Client) GetSchedule(id int64) (*schedule.WeeklySchedule, error) {
	var ws schedule.WeeklySchedule
	if err := c.get(fmt.Sprintf("/api/schedules/%d", id), &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// SaveSchedule creates or replaces a weekly schedule.
func (c *Client) SaveSchedule(ws *schedule.WeeklySchedule) (*schedule.WeeklySchedule, error) {
	var saved schedule.WeeklySchedule
	if err := c.send(http.MethodPost, "/api/schedules", ws, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// ApproveRows approves rows of a schedule, all rows when rows is empty.
// A nil createVisits uses the server policy.
func (c *Client) ApproveRows(id int64, rows []int64, createVisits *bool) (*schedule.ApproveResult, error) {
	body := map[string]any{"rows": rows}
	if createVisits != nil {
		body["create_visits"] = *createVisits
	}
	var res schedule.ApproveResult
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/schedules/%d/approve", id), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ApproveRow approves a single schedule row.
func (c *Client) ApproveRow(rowID int64, createVisit *bool) (*schedule.ApproveResult, error) {
	body := map[string]any{}
	if createVisit != nil {
		body["create_visits"] = *createVisit
	}
	var res schedule.ApproveResult
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/schedule-rows/%d/approve", rowID), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateScheduleVisits creates visits for approved rows that have none.
func (c *Client) CreateScheduleVisits(id int64) (*schedule.CreateResult, error) {
	var res schedule.CreateResult
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/schedules/%d/create-visits", id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RejectSchedule rejects a weekly schedule.
func (c *Client) RejectSchedule(id int64) (*schedule.WeeklySchedule, error) {
	var ws schedule.WeeklySchedule
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/schedules/%d/reject", id), nil, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// PlanVisits creates visits for the approved rows of user's schedule.
func (c *Client) PlanVisits(user, weekStart string) (*schedule.CreateResult, error) {
	body := map[string]string{"user": user, "week_start": weekStart}
	var res schedule.CreateResult
	if err := c.send(http.MethodPost, "/api/schedules/plan", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// KPIs returns the visit KPIs for req.
func (c *Client) KPIs(req dashboard.KPIRequest) (*dashboard.KPIs, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"mode":      req.Mode,
		"user":      req.User,
		"period":    req.Period,
		"from_date": req.From,
		"to_date":   req.To,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if req.OverdueWithinPeriod {
		q.Set("overdue_within_period", "true")
	}
	path := "/api/kpis"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var k dashboard.KPIs
	if err := c.get(path, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// OverdueCount returns the number of clients overdue for a visit.
func (c *Client) OverdueCount() (int, error) {
	var card dashboard.NumberCard
	if err := c.get("/api/overdue/count", &card); err != nil {
		return 0, err
	}
	return card.Value, nil
}

// OverdueReport returns the visit-frequency report, only overdue rows when
// onlyOverdue is set.
func (c *Client) OverdueReport(onlyOverdue bool) ([]frequency.Row, error) {
	path := "/api/overdue/report"
	if onlyOverdue {
		path += "?overdue=1"
	}
	var rows []frequency.Row
	if err := c.get(path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// get performs a GET request and decodes the response.
// Health checks that the server is up. It needs no API key.
func (c *Client) Health() error {
	return c.get("/health", nil)
}

func (c *Client) get(path string, result any) error {
	return c.send(http.MethodGet, path, nil, result)
}

// send performs a request with an optional JSON body and decodes the
// response.
func (c *Client) send(method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, result)
}

// do executes an HTTP request with auth header and handles errors.
func (c *Client) do(req *http.Request, result any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Printf("warning: closing response body: %v\n", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: "server error: " + http.StatusText(resp.StatusCode)}
		var errResp struct {
			Error  string   `json:"error"`
			Fields []string `json:"fields"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			apiErr.Message, apiErr.Fields = errResp.Error, errResp.Fields
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
