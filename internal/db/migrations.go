package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// migrations is an ordered list of SQL statements to run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		email      TEXT    PRIMARY KEY,
		full_name  TEXT    NOT NULL DEFAULT '',
		enabled    INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		email TEXT NOT NULL,
		role  TEXT NOT NULL,
		PRIMARY KEY (email, role)
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		name         TEXT     NOT NULL,
		key_prefix   TEXT     NOT NULL,
		key_hash     TEXT     NOT NULL UNIQUE,
		email        TEXT     NOT NULL DEFAULT '',
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id                      INTEGER PRIMARY KEY AUTOINCREMENT,
		client_type             TEXT    NOT NULL,
		client_id               TEXT    NOT NULL,
		client_name             TEXT    NOT NULL DEFAULT '',
		requires_regular_visits INTEGER NOT NULL DEFAULT 0,
		visit_frequency         TEXT    NOT NULL DEFAULT '',
		last_visit_date         DATETIME,
		UNIQUE (client_type, client_id)
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT    NOT NULL UNIQUE,
		client_type TEXT    NOT NULL,
		client_id   TEXT    NOT NULL,
		address     TEXT    NOT NULL DEFAULT '',
		is_primary  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id         TEXT PRIMARY KEY,
		user_email TEXT NOT NULL DEFAULT '',
		name       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		employee        TEXT    NOT NULL REFERENCES employees(id),
		attendance_date TEXT    NOT NULL,
		status          TEXT    NOT NULL DEFAULT 'Present',
		in_time         DATETIME,
		out_time        DATETIME,
		UNIQUE (employee, attendance_date)
	)`,
	`CREATE TABLE IF NOT EXISTS employee_checkins (
		id         INTEGER  PRIMARY KEY AUTOINCREMENT,
		employee   TEXT     NOT NULL REFERENCES employees(id),
		log_type   TEXT     NOT NULL,
		time       DATETIME NOT NULL,
		device_id  TEXT     NOT NULL DEFAULT '',
		visit_id   INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		name    TEXT    PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS sales_persons (
		name     TEXT PRIMARY KEY,
		employee TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS maintenance_visits (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		customer          TEXT    NOT NULL,
		company           TEXT,
		mntc_date         TEXT    NOT NULL,
		maintenance_type  TEXT    NOT NULL,
		completion_status TEXT    NOT NULL,
		customer_address  TEXT,
		created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS maintenance_visit_purposes (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		maintenance_visit  INTEGER NOT NULL REFERENCES maintenance_visits(id) ON DELETE CASCADE,
		item_code          TEXT,
		serial_no          TEXT,
		description        TEXT,
		work_done          TEXT,
		service_person     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		client_type            TEXT    NOT NULL,
		client                 TEXT    NOT NULL,
		contact                TEXT    NOT NULL DEFAULT '',
		subject                TEXT    NOT NULL DEFAULT '',
		address                TEXT    NOT NULL DEFAULT '',
		brief                  TEXT    NOT NULL DEFAULT '',
		assigned_to            TEXT    NOT NULL DEFAULT '',
		scheduled_time         DATETIME,
		check_in_time          DATETIME,
		check_out_time         DATETIME,
		visit_duration_minutes INTEGER,
		status                 TEXT    NOT NULL DEFAULT 'Planned',
		docstatus              INTEGER NOT NULL DEFAULT 0,
		visit_outcome          TEXT    NOT NULL DEFAULT '',
		check_in_photo         TEXT    NOT NULL DEFAULT '',
		check_out_photo        TEXT    NOT NULL DEFAULT '',
		location               TEXT,
		check_in_location      TEXT    NOT NULL DEFAULT '',
		check_out_location     TEXT    NOT NULL DEFAULT '',
		report_summary         TEXT    NOT NULL DEFAULT '',
		report_attachment      TEXT    NOT NULL DEFAULT '',
		competitor_info        TEXT    NOT NULL DEFAULT '',
		existing_fleet         TEXT    NOT NULL DEFAULT '',
		requirements_received  TEXT    NOT NULL DEFAULT '',
		future_prospects       TEXT    NOT NULL DEFAULT '',
		product_target         TEXT    NOT NULL DEFAULT '',
		customer_feedback      TEXT    NOT NULL DEFAULT '',
		support_issue          TEXT    NOT NULL DEFAULT '',
		maintenance_details    TEXT    NOT NULL DEFAULT '',
		maintenance_visit      INTEGER REFERENCES maintenance_visits(id),
		mv_item                TEXT    NOT NULL DEFAULT '',
		mv_serial_no           TEXT    NOT NULL DEFAULT '',
		mv_problem_reported    TEXT    NOT NULL DEFAULT '',
		mv_work_done           TEXT    NOT NULL DEFAULT '',
		created_at             DATETIME DEFAULT CURRENT_TIMESTAMP,
		modified_at            DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visits_client ON visits (client_type, client, status)`,
	`CREATE INDEX IF NOT EXISTS idx_visits_assigned ON visits (assigned_to, scheduled_time)`,
	`CREATE TABLE IF NOT EXISTS visit_logs (
		id        INTEGER  PRIMARY KEY AUTOINCREMENT,
		visit_id  INTEGER  NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
		timestamp DATETIME NOT NULL,
		activity  TEXT     NOT NULL,
		user      TEXT     NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS weekly_schedules (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user        TEXT    NOT NULL,
		week_start  TEXT    NOT NULL,
		status      TEXT    NOT NULL DEFAULT 'Draft',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		modified_at DATETIME,
		UNIQUE (user, week_start)
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_details (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		schedule_id         INTEGER NOT NULL REFERENCES weekly_schedules(id) ON DELETE CASCADE,
		idx                 INTEGER NOT NULL DEFAULT 0,
		day                 TEXT    NOT NULL DEFAULT '',
		time                TEXT    NOT NULL DEFAULT '',
		client_type         TEXT    NOT NULL DEFAULT '',
		client              TEXT    NOT NULL DEFAULT '',
		purpose             TEXT    NOT NULL DEFAULT '',
		notes               TEXT    NOT NULL DEFAULT '',
		support_issue       TEXT    NOT NULL DEFAULT '',
		maintenance_details TEXT    NOT NULL DEFAULT '',
		approved            INTEGER NOT NULL DEFAULT 0,
		approved_by         TEXT,
		approved_on         DATETIME,
		visit_id            INTEGER REFERENCES visits(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		file_key     TEXT    NOT NULL UNIQUE,
		file_name    TEXT    NOT NULL,
		file_url     TEXT    NOT NULL,
		content_type TEXT    NOT NULL DEFAULT '',
		size         INTEGER NOT NULL DEFAULT 0,
		doctype      TEXT    NOT NULL,
		docname      TEXT    NOT NULL,
		fieldname    TEXT    NOT NULL DEFAULT '',
		is_private   INTEGER NOT NULL DEFAULT 1,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	// Column additions (idempotent, checks if column exists first)
	columnMigrations := []struct {
		table, column, definition string
	}{
		{"visits", "additional_notes", "TEXT NOT NULL DEFAULT ''"},
	}

	for _, cm := range columnMigrations {
		if _, err := addColumnIfNotExists(db, cm.table, cm.column, cm.definition); err != nil {
			return fmt.Errorf("adding %s.%s: %w", cm.table, cm.column, err)
		}
	}

	if err := moveLegacyNotes(db); err != nil {
		return fmt.Errorf("moving legacy notes: %w", err)
	}
	if err := normalizeLocations(db); err != nil {
		return fmt.Errorf("normalizing locations: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
// Reports whether the column was added.
func addColumnIfNotExists(db *sql.DB, table, column, definition string) (bool, error) {
	exists, err := hasColumn(db, table, column)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err == nil, err
}

func hasColumn(db *sql.DB, table, column string) (found bool, err error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("checking table info: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scanning column info: %w", err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterating columns: %w", err)
	}
	return found, nil
}

// moveLegacyNotes copies visits.notes (older schema) into additional_notes
// where the latter is still empty.
func moveLegacyNotes(db *sql.DB) error {
	legacy, err := hasColumn(db, "visits", "notes")
	if err != nil || !legacy {
		return err
	}
	_, err = db.Exec(`UPDATE visits SET additional_notes = notes
		WHERE COALESCE(notes, '') != '' AND additional_notes = ''`)
	return err
}

// normalizeLocations rewrites every visits.location into the canonical
// {"lat":..,"lng":..} form, or NULL when it cannot be parsed.
func normalizeLocations(db *sql.DB) error {
	type pending struct {
		id  int64
		val sql.NullString
	}

	rows, err := db.Query("SELECT id, location FROM visits WHERE location IS NOT NULL")
	if err != nil {
		return fmt.Errorf("querying locations: %w", err)
	}
	var updates []pending
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scanning location: %w", err)
		}
		canonical, ok := NormalizeLocation(raw)
		if ok && canonical == raw {
			continue
		}
		updates = append(updates, pending{id: id, val: sql.NullString{String: canonical, Valid: ok}})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterating locations: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("closing rows: %w", err)
	}

	for _, u := range updates {
		if _, err := db.Exec("UPDATE visits SET location = ? WHERE id = ?", u.val, u.id); err != nil {
			return fmt.Errorf("updating location for visit %d: %w", u.id, err)
		}
	}
	return nil
}

var kvLocation = regexp.MustCompile(`^\s*lat\s*=\s*(-?[0-9.]+)\s*[,;]\s*(?:lng|lon|long)\s*=\s*(-?[0-9.]+)\s*$`)

// NormalizeLocation parses a stored geolocation payload and returns its
// canonical compact JSON form. Accepts JSON objects, dict literals written
// with single quotes, and "lat=..,lng=.." pairs.
func NormalizeLocation(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	var lat, lng float64
	if m := kvLocation.FindStringSubmatch(s); m != nil {
		var err1, err2 error
		lat, err1 = strconv.ParseFloat(m[1], 64)
		lng, err2 = strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			return "", false
		}
	} else {
		if strings.HasPrefix(s, "{") && strings.Contains(s, "'") {
			s = strings.ReplaceAll(s, "'", `"`)
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return "", false
		}
		var ok1, ok2 bool
		lat, ok1 = coordinate(obj, "lat", "latitude")
		lng, ok2 = coordinate(obj, "lng", "lon", "longitude")
		if !ok1 || !ok2 {
			return "", false
		}
	}

	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", false
	}

	out, err := json.Marshal(struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}{lat, lng})
	if err != nil {
		return "", false
	}
	return string(out), true
}

func coordinate(obj map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case float64:
			return v, true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
