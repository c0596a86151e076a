package remotestub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"backoffice/internal/entity"
)

// Server HTTP-обвязка над Storage по REST-контракту remote.Service.
type Server struct {
	store *Storage
	token string
	log   *slog.Logger
	down  atomic.Bool
}

type Option func(*Server)

// WithToken требовать "Authorization: Bearer <token>".
func WithToken(token string) Option { return func(s *Server) { s.token = token } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func NewServer(store *Storage, opts ...Option) *Server {
	if store == nil {
		store = NewStorage()
	}
	s := &Server{store: store, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Storage() *Storage { return s.store }

// SetDown переключатель отказа: все запросы получают 503.
func (s *Server) SetDown(down bool) { s.down.Store(down) }

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogger, s.failSwitch, s.auth)

	r.HandleFunc("/{kind}", s.list).Methods(http.MethodGet)
	r.HandleFunc("/{kind}", s.create).Methods(http.MethodPost)
	r.HandleFunc("/{kind}/{id}", s.update).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/{kind}/{id}", s.remove).Methods(http.MethodDelete)
	return r
}

// ==== Middleware ====

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		switch {
		case sw.status >= 500:
			level = slog.LevelError
		case sw.status >= 400:
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "stub request",
			"method", r.Method, "path", r.URL.Path, "status", sw.status,
			"duration", time.Since(started), "request_id", r.Header.Get("X-Request-ID"))
	})
}

func (s *Server) failSwitch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.down.Load() {
			jsonError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if got != s.token {
				jsonError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ==== Handlers ====

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	items, _ := s.store.List(r.Context(), kind)
	jsonResponse(w, http.StatusOK, map[string]any{kind: items})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	attrs, ok := decodeAttrs(w, r)
	if !ok {
		return
	}
	e, _ := s.store.Create(r.Context(), kind, attrs)
	jsonResponse(w, http.StatusCreated, e)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	attrs, ok := decodeAttrs(w, r)
	if !ok {
		return
	}
	e, err := s.store.Update(r.Context(), vars["kind"], vars["id"], attrs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, e)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.store.Delete(r.Context(), vars["kind"], vars["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeAttrs(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var attrs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid JSON")
		return nil, false
	}
	return attrs, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	var re *entity.RemoteError
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		jsonError(w, http.StatusNotFound, "not found")
		return
	}
	jsonError(w, http.StatusInternalServerError, err.Error())
}

func jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]any{"error": msg})
}
