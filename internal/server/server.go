// Package server is the HTTP endpoint that collects uploaded crash reports.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// maxReportBytes bounds an upload body.
const maxReportBytes = 16 << 20

// Server serves the report collection API.
type Server struct {
	router chi.Router
	store  *Store
	token  string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithToken requires "Authorization: Bearer <token>" on the report API.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// New creates a server storing reports in store.
func New(store *Store, opts ...Option) *Server {
	s := &Server{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1/reports", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleListReports)
		r.Post("/", s.handleCreateReport)
		r.Get("/{reportID}", s.handleGetReport)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			respondError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReportBytes)

	var report Report
	if err := json.NewDecoder(r.Body).Decode(&report.Payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "report too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(report.Report) == "" {
		respondError(w, http.StatusUnprocessableEntity, "report is required")
		return
	}
	report.ReceivedAt = s.now().UTC()
	report.RemoteAddr = r.RemoteAddr

	if err := s.store.Save(report); err != nil {
		if errors.Is(err, ErrInvalidID) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("saving report failed", "id", report.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "saving report failed")
		return
	}

	s.logger.Info("report received", "id", report.ID, "tag", report.Tag)
	respondJSON(w, http.StatusCreated, map[string]string{"id": report.ID})
}

func (s *Server) handleListReports(w http.ResponseWriter, _ *http.Request) {
	reports, err := s.store.List()
	if err != nil {
		s.logger.Error("listing reports failed", "error", err)
		respondError(w, http.StatusInternalServerError, "listing reports failed")
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.Get(chi.URLParam(r, "reportID"))
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidID):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("reading report failed", "error", err)
		respondError(w, http.StatusInternalServerError, "reading report failed")
	default:
		respondJSON(w, http.StatusOK, report)
	}
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting collection server", "addr", addr, "dir", s.store.Dir())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
