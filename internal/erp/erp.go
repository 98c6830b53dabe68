// Package erp creates maintenance records in the ERP tables and resolves
// the company and service person they need.
package erp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/promise4all/visit-management/internal/db"
)

// SalesTeam is the root sales person used as a fallback service person.
const SalesTeam = "Sales Team"

const maxTextLen = 1000

// MaintenanceVisit is an ERP maintenance record.
type MaintenanceVisit struct {
	ID               int64     `json:"id"`
	Customer         string    `json:"customer"`
	Company          string    `json:"company,omitempty"`
	Date             string    `json:"mntc_date"` // YYYY-MM-DD
	MaintenanceType  string    `json:"maintenance_type"`
	CompletionStatus string    `json:"completion_status"`
	CustomerAddress  string    `json:"customer_address,omitempty"`
	Purposes         []Purpose `json:"purposes,omitempty"`
}

// Purpose is one line of work on a maintenance visit.
type Purpose struct {
	ItemCode      string `json:"item_code,omitempty"`
	SerialNo      string `json:"serial_no,omitempty"`
	Description   string `json:"description,omitempty"`
	WorkDone      string `json:"work_done,omitempty"`
	ServicePerson string `json:"service_person,omitempty"`
}

// Repository provides ERP data access.
type Repository struct {
	q db.Querier
}

// NewRepository creates an ERP repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// AddCompany registers a company.
func (r *Repository) AddCompany(ctx context.Context, name string, enabled bool) error {
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO companies (name, enabled) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET enabled = excluded.enabled",
		name, enabled,
	)
	if err != nil {
		return fmt.Errorf("inserting company: %w", err)
	}
	return nil
}

// AddSalesPerson registers a sales person, optionally linked to an employee.
func (r *Repository) AddSalesPerson(ctx context.Context, name, employee string) error {
	var emp sql.NullString
	if employee != "" {
		emp = sql.NullString{String: employee, Valid: true}
	}
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO sales_persons (name, employee) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET employee = excluded.employee",
		name, emp,
	)
	if err != nil {
		return fmt.Errorf("inserting sales person: %w", err)
	}
	return nil
}

// DefaultCompany returns configured when set, else the first enabled
// company by name, else "".
func (r *Repository) DefaultCompany(ctx context.Context, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return r.firstName(ctx, "SELECT name FROM companies WHERE enabled = 1 ORDER BY name LIMIT 1")
}

// ServicePerson resolves who performed the work: the sales person linked
// to employee, else the Sales Team root, else any sales person, else "".
func (r *Repository) ServicePerson(ctx context.Context, employee string) (string, error) {
	if employee != "" {
		name, err := r.firstName(ctx, "SELECT name FROM sales_persons WHERE employee = ? ORDER BY name LIMIT 1", employee)
		if err != nil || name != "" {
			return name, err
		}
	}
	name, err := r.firstName(ctx, "SELECT name FROM sales_persons WHERE name = ?", SalesTeam)
	if err != nil || name != "" {
		return name, err
	}
	return r.firstName(ctx, "SELECT name FROM sales_persons ORDER BY name LIMIT 1")
}

func (r *Repository) firstName(ctx context.Context, query string, args ...any) (string, error) {
	var name string
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying name: %w", err)
	}
	return name, nil
}

// CreateMaintenanceVisit inserts mv with its purposes and returns its id.
func (r *Repository) CreateMaintenanceVisit(ctx context.Context, mv *MaintenanceVisit) (int64, error) {
	if mv.Customer == "" {
		return 0, fmt.Errorf("maintenance visit customer is required")
	}
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO maintenance_visits (customer, company, mntc_date, maintenance_type, completion_status, customer_address)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		mv.Customer, nullable(mv.Company), mv.Date, mv.MaintenanceType, mv.CompletionStatus, nullable(mv.CustomerAddress),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting maintenance visit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting maintenance visit id: %w", err)
	}

	for _, p := range mv.Purposes {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO maintenance_visit_purposes (maintenance_visit, item_code, serial_no, description, work_done, service_person)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, nullable(p.ItemCode), nullable(p.SerialNo), nullable(clip(p.Description)), nullable(clip(p.WorkDone)), nullable(p.ServicePerson),
		); err != nil {
			return 0, fmt.Errorf("inserting maintenance purpose: %w", err)
		}
	}

	mv.ID = id
	return id, nil
}

// GetMaintenanceVisit returns a maintenance visit with its purposes.
func (r *Repository) GetMaintenanceVisit(ctx context.Context, id int64) (mv *MaintenanceVisit, err error) {
	var m MaintenanceVisit
	var company, address sql.NullString
	err = r.q.QueryRowContext(ctx,
		`SELECT id, customer, company, mntc_date, maintenance_type, completion_status, customer_address
		 FROM maintenance_visits WHERE id = ?`, id,
	).Scan(&m.ID, &m.Customer, &company, &m.Date, &m.MaintenanceType, &m.CompletionStatus, &address)
	if err != nil {
		return nil, fmt.Errorf("getting maintenance visit %d: %w", id, err)
	}
	m.Company, m.CustomerAddress = company.String, address.String

	rows, err := r.q.QueryContext(ctx,
		`SELECT item_code, serial_no, description, work_done, service_person
		 FROM maintenance_visit_purposes WHERE maintenance_visit = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing purposes: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()
	for rows.Next() {
		var item, serial, desc, work, person sql.NullString
		if err := rows.Scan(&item, &serial, &desc, &work, &person); err != nil {
			return nil, fmt.Errorf("scanning purpose: %w", err)
		}
		m.Purposes = append(m.Purposes, Purpose{
			ItemCode: item.String, SerialNo: serial.String, Description: desc.String,
			WorkDone: work.String, ServicePerson: person.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating purposes: %w", err)
	}
	return &m, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func clip(s string) string {
	r := []rune(s)
	if len(r) > maxTextLen {
		return string(r[:maxTextLen])
	}
	return s
}

// dateOf formats the calendar date of t.
func dateOf(t time.Time) string {
	return t.Format(db.DateLayout)
}
