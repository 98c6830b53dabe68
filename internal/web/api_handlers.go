package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/promise4all/visit-management/internal/apperr"
	"github.com/promise4all/visit-management/internal/attachment"
	"github.com/promise4all/visit-management/internal/auth"
)

const maxBodyBytes = 20 << 20 // photos arrive base64-encoded

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	apiJSON(w, errorResponse{Error: msg}, code)
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// apiFail maps a service error onto its HTTP status. Unclassified errors
// are logged and hidden from the caller.
func apiFail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		apiError(w, "internal error", code)
		return
	}
	apiJSON(w, errorResponse{Error: err.Error(), Fields: apperr.FieldsOf(err)}, code)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindConfiguration:
		return http.StatusPreconditionFailed
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		apiError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// check runs struct validation and writes a 422 naming the failed fields.
func (s *Server) check(w http.ResponseWriter, r *http.Request, v any) bool {
	err := s.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		apiFail(w, r, err)
		return false
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	apiFail(w, r, apperr.FieldValidation(fields, "Invalid value for %s.", fields[0]))
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		apiError(w, "invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func actor(r *http.Request) string {
	return auth.ActorFrom(r.Context())
}

type attachRequest struct {
	FileName  string `json:"filename" validate:"required"`
	FileData  string `json:"filedata" validate:"required"`
	DocType   string `json:"doctype" validate:"required"`
	DocName   string `json:"docname" validate:"required"`
	FieldName string `json:"fieldname"`
	IsPrivate bool   `json:"is_private"`
}

// apiAttach stores an upload. Photos for a visit's check-in or check-out
// field are also linked onto the visit.
func (s *Server) apiAttach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if !decode(w, r, &req) || !s.check(w, r, &req) {
		return
	}

	var visitID int64
	linksVisit := req.DocType == "Visit" && (req.FieldName == "check_in_photo" || req.FieldName == "check_out_photo")
	if linksVisit {
		id, err := strconv.ParseInt(req.DocName, 10, 64)
		if err != nil {
			apiFail(w, r, apperr.FieldValidation([]string{"docname"}, "Visit %q not found.", req.DocName))
			return
		}
		if _, err := s.visits.Get(r.Context(), id); err != nil {
			apiFail(w, r, err)
			return
		}
		visitID = id
	}

	a, err := s.files.Store(r.Context(), attachment.Request(req))
	if err != nil {
		apiFail(w, r, err)
		return
	}
	if linksVisit {
		if err := s.visits.SetPhoto(r.Context(), actor(r), visitID, req.FieldName, a.FileURL); err != nil {
			s.files.Discard(r.Context(), a)
			apiFail(w, r, fmt.Errorf("linking photo: %w", err))
			return
		}
	}
	s.files.Commit(r.Context(), a)
	apiJSON(w, a, http.StatusCreated)
}
