package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tcsched/internal/apperr"
	"tcsched/internal/config"
	appLog "tcsched/internal/log"
	"tcsched/internal/metrics"
	"tcsched/internal/teacher"
)

const (
	headerAPIKey    = "api-key"
	headerRequestID = "X-Request-ID"
)

const (
	msgUp            = "The endpoint is up"
	msgUnauthorized  = "Unauthorized"
	msgBadRequest    = "Bad Request"
	msgUnknown       = "Unknown Error"
	msgCalendar      = "Teacher Availability Calendar"
	msgNoSchedule    = "No teachers found for the given schedule"
	msgScheduleFound = "Schedule is found"
)

// Server provides the scheduling HTTP API.
type Server struct {
	cfg      *config.Config
	teachers teacher.Directory
	metrics  *metrics.Metrics
	mux      *http.ServeMux
	validate *validator.Validate

	// seeds separates time-based random sources created in the same instant.
	seeds atomic.Int64
}

// NewServer constructs a new Server. m may be nil.
func NewServer(cfg *config.Config, teachers teacher.Directory, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		teachers: teachers,
		metrics:  m,
		mux:      http.NewServeMux(),
		validate: validator.New(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the routed handler wrapped in request logging, metrics and
// panic recovery.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.recoverer(s.mux))
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, teachers teacher.Directory, m *metrics.Metrics) error {
	s := NewServer(cfg, teachers, m)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "web_root", cfg.WebRoot, "auth", cfg.APIKey != "")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("stopping HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	root := s.cfg.WebRoot
	if root == "/" {
		root = ""
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.HandleFunc("POST "+root+"/ping", s.authorized(s.handlePing))
	s.mux.HandleFunc("POST "+root+"/calendar", s.authorized(s.handleCalendar))
	s.mux.HandleFunc("POST "+root+"/schedule", s.authorized(s.handleSchedule))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, envelope{Success: true, Message: msgUp})
}

// authorized checks the api-key header. No configured key means open access.
func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.cfg.APIKey
		if key != "" && !secureCompare(r.Header.Get(headerAPIKey), key) {
			s.writeError(w, r, apperr.ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type ctxKey struct{}

// RequestID returns the id assigned to the request by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latency := time.Since(start)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		s.metrics.ObserveHTTPRequest(r.Method, path, rec.status, latency)
		appLog.Info("http_request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"latency", latency,
			"ip", r.RemoteAddr,
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				err, ok := v.(error)
				if !ok {
					err = errors.New(panicText(v))
				}
				appLog.Error("handler panic", err, "request_id", RequestID(r.Context()), "path", r.URL.Path)
				s.writeError(w, r, err)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func panicText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "panic"
	}
	return string(b)
}

// envelope is the response body of every API route. Failures are still
// answered with HTTP 200.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"Message"`
	Result  any    `json:"Result,omitempty"`
	Details any    `json:"Details,omitempty"`
}

type errorDetails struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.FromError(err)
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		writeJSON(w, envelope{Message: msgUnauthorized})
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrBadRequest):
		appLog.Warn("bad request", "request_id", RequestID(r.Context()), "reason", err.Error())
		writeJSON(w, envelope{
			Message: msgBadRequest,
			Details: errorDetails{Type: "request", Code: appErr.Code, Message: err.Error()},
		})
	default:
		appLog.Error("request failed", err, "request_id", RequestID(r.Context()))
		writeJSON(w, envelope{
			Message: msgUnknown,
			Details: errorDetails{Type: "internal", Code: appErr.Code, Message: err.Error()},
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

// decode reads a JSON body into v. Malformed bodies are bad requests.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(err, apperr.ErrBadRequest.Code, apperr.ErrBadRequest.Status, "malformed request body")
	}
	return nil
}
