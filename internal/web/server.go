// Package web serves the visit management JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promise4all/visit-management/internal/attachment"
	"github.com/promise4all/visit-management/internal/auth"
	"github.com/promise4all/visit-management/internal/dashboard"
	"github.com/promise4all/visit-management/internal/frequency"
	"github.com/promise4all/visit-management/internal/logging"
	"github.com/promise4all/visit-management/internal/metrics"
	"github.com/promise4all/visit-management/internal/schedule"
	"github.com/promise4all/visit-management/internal/visit"
)

// Deps are the services the API exposes.
type Deps struct {
	Visits    *visit.Service
	Schedules *schedule.Service
	Dashboard *dashboard.Service
	Frequency *frequency.Aggregator
	Files     *attachment.Service
	APIKeys   *auth.APIKeyStore

	// FilesDir, when set, is served under /files/ for local attachments.
	FilesDir string
	Now      func() time.Time
}

// Server is the API HTTP server.
type Server struct {
	visits    *visit.Service
	schedules *schedule.Service
	dashboard *dashboard.Service
	frequency *frequency.Aggregator
	files     *attachment.Service
	apiKeys   *auth.APIKeyStore
	validate  *validator.Validate
	now       func() time.Time
	handler   http.Handler
}

// NewServer builds the router and middleware chain.
func NewServer(d Deps) *Server {
	s := &Server{
		visits:    d.Visits,
		schedules: d.Schedules,
		dashboard: d.Dashboard,
		frequency: d.Frequency,
		files:     d.Files,
		apiKeys:   d.APIKeys,
		validate:  newValidator(),
		now:       d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := mux.NewRouter()
	r.Use(metrics.Middleware)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if d.FilesDir != "" {
		r.PathPrefix("/files/").Handler(http.StripPrefix("/files/", http.FileServer(http.Dir(d.FilesDir))))
	}

	api := r.PathPrefix("/api").Subrouter()
	s.visitRoutes(api)
	s.scheduleRoutes(api)
	s.dashboardRoutes(api)
	api.HandleFunc("/attachments", s.apiAttach).Methods(http.MethodPost)
	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apiError(w, "not found", http.StatusNotFound)
	})

	s.handler = logging.RequestLogger(auth.RequireAPIKey(d.APIKeys, r))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}
