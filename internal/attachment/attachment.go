// Package attachment stores uploaded files and links them to records.
package attachment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/db"
)

// Attachment is a stored file linked to a record field.
type Attachment struct {
	ID          int64     `json:"id"`
	Key         string    `json:"file_key"`
	FileName    string    `json:"file_name"`
	FileURL     string    `json:"file_url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	DocType     string    `json:"doctype"`
	DocName     string    `json:"docname"`
	FieldName   string    `json:"fieldname,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
}

// Request describes an upload.
type Request struct {
	FileName  string `json:"filename"`
	FileData  string `json:"filedata"`
	DocType   string `json:"doctype"`
	DocName   string `json:"docname"`
	FieldName string `json:"fieldname,omitempty"`
	IsPrivate bool   `json:"is_private"`
}

// Service stores attachments and keeps at most one live file per field.
type Service struct {
	db          *sql.DB
	store       Storage
	compression Compression
	now         func() time.Time
}

// NewService creates an attachment service.
func NewService(d *sql.DB, store Storage, c Compression) *Service {
	return &Service{db: d, store: store, compression: c, now: time.Now}
}

// Attach stores the payload and inserts its row. Older attachments on the
// same field are purged only after the new one is in place.
func (s *Service) Attach(ctx context.Context, req Request) (*Attachment, error) {
	a, err := s.Store(ctx, req)
	if err != nil {
		return nil, err
	}
	s.Commit(ctx, a)
	return a, nil
}

// Store saves the payload and inserts its row without touching older
// attachments on the field. Callers finish with Commit or Discard.
func (s *Service) Store(ctx context.Context, req Request) (*Attachment, error) {
	var missing []string
	if strings.TrimSpace(req.FileName) == "" {
		missing = append(missing, "filename")
	}
	if strings.TrimSpace(req.FileData) == "" {
		missing = append(missing, "filedata")
	}
	if strings.TrimSpace(req.DocType) == "" {
		missing = append(missing, "doctype")
	}
	if strings.TrimSpace(req.DocName) == "" {
		missing = append(missing, "docname")
	}
	if len(missing) > 0 {
		return nil, apperr.FieldValidation(missing, "Missing required upload fields: %s.", strings.Join(missing, ", "))
	}

	data, contentType, err := DecodePayload(req.FileData)
	if err != nil {
		return nil, apperr.Validation("Invalid file data: %v.", err)
	}

	data, err = compress(data, contentType, s.compression)
	if err != nil {
		return nil, apperr.Validation("Could not process image: %v.", err)
	}

	key := objectKey(req.DocType, req.DocName, req.FileName)
	if err := s.store.Put(ctx, key, contentType, data); err != nil {
		return nil, fmt.Errorf("storing %s: %w", req.FileName, err)
	}

	a := &Attachment{
		Key:         key,
		FileName:    req.FileName,
		FileURL:     s.store.URL(key),
		ContentType: contentType,
		Size:        int64(len(data)),
		DocType:     req.DocType,
		DocName:     req.DocName,
		FieldName:   req.FieldName,
		IsPrivate:   req.IsPrivate,
		CreatedAt:   db.Timestamp(s.now()),
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (file_key, file_name, file_url, content_type, size, doctype, docname, fieldname, is_private, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Key, a.FileName, a.FileURL, a.ContentType, a.Size, a.DocType, a.DocName, a.FieldName, a.IsPrivate, a.CreatedAt,
	)
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			slog.Warn("removing orphaned upload", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("inserting attachment: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("getting insert id: %w", err)
	}
	return a, nil
}

// Commit makes a the only attachment on its field by purging the others.
// Failures are logged; a is already live.
func (s *Service) Commit(ctx context.Context, a *Attachment) {
	if a == nil || a.FieldName == "" {
		return
	}
	stale, err := s.list(ctx,
		"WHERE doctype = ? AND docname = ? AND fieldname = ? AND id != ?",
		a.DocType, a.DocName, a.FieldName, a.ID)
	if err != nil {
		slog.Warn("listing stale attachments", "doctype", a.DocType, "docname", a.DocName, "error", err)
		return
	}
	for _, old := range stale {
		if err := s.store.Delete(ctx, old.Key); err != nil {
			slog.Warn("deleting stale attachment file", "key", old.Key, "error", err)
			continue
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", old.ID); err != nil {
			slog.Warn("deleting stale attachment row", "id", old.ID, "error", err)
		}
	}
}

// Discard removes a stored but unused attachment, file and row.
func (s *Service) Discard(ctx context.Context, a *Attachment) {
	if a == nil {
		return
	}
	if err := s.store.Delete(ctx, a.Key); err != nil {
		slog.Warn("deleting discarded attachment file", "key", a.Key, "error", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", a.ID); err != nil {
		slog.Warn("deleting discarded attachment row", "id", a.ID, "error", err)
	}
}

// ListFor returns attachments on a record, newest first.
func (s *Service) ListFor(ctx context.Context, docType, docName string) ([]*Attachment, error) {
	return s.list(ctx, "WHERE doctype = ? AND docname = ?", docType, docName)
}

func (s *Service) list(ctx context.Context, where string, args ...any) (_ []*Attachment, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_key, file_name, file_url, content_type, size, doctype, docname, fieldname, is_private, created_at
		 FROM attachments `+where+` ORDER BY id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	var out []*Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.Key, &a.FileName, &a.FileURL, &a.ContentType, &a.Size,
			&a.DocType, &a.DocName, &a.FieldName, &a.IsPrivate, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attachments: %w", err)
	}
	return out, nil
}

// objectKey builds "<doctype>/<docname>/<yyyymmdd>-<uuid>-<name>".
func objectKey(docType, docName, fileName string) string {
	return path.Join(
		sanitizeFilename(strings.ToLower(docType)),
		sanitizeFilename(docName),
		time.Now().Format("20060102")+"-"+uuid.New().String()+"-"+sanitizeFilename(fileName),
	)
}
