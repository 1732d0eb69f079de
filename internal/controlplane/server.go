package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/store"
)

// Server provides the HTTP API for timereports.
type Server struct {
	service *Service
	store   *store.Store
	addr    string
	logger  *slog.Logger
	server  *http.Server
	// PollerRunning is reported by /health when set.
	PollerRunning func() bool
}

// NewServer creates a new HTTP server. st is only used for health checks.
func NewServer(service *Service, st *store.Store, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service: service,
		store:   st,
		addr:    addr,
		logger:  logger.With("component", "api"),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/alarms", s.handleAlarms)
	mux.HandleFunc("/alarms/", s.handleAlarmByID)
	mux.HandleFunc("/boot", s.handleBoot)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/audit", s.handleAudit)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Start listens on addr and serves until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves the API on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleAlarms handles POST /alarms and GET /alarms
func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.addAlarm(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.service.ListAlarms(r.Context()))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAlarmByID handles /alarms/{id} and /alarms/{id}/{action}
func (s *Server) handleAlarmByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/alarms/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "alarm id required", http.StatusBadRequest)
		return
	}

	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		s.removeAlarm(w, r, id)
	case action == "rearm" && r.Method == http.MethodPost:
		s.rearmAlarm(w, r, id)
	case action == "fire" && r.Method == http.MethodPost:
		s.fireAlarm(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// --- Alarm Handlers ---

type addAlarmRequest struct {
	Time string `json:"time"`
	Type string `json:"type"`
}

func (s *Server) addAlarm(w http.ResponseWriter, r *http.Request) {
	var req addAlarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid json")
		return
	}

	res, err := s.service.AddAlarm(r.Context(), req.Time, req.Type)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) removeAlarm(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.RemoveAlarm(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "id": id})
}

func (s *Server) rearmAlarm(w http.ResponseWriter, r *http.Request, id string) {
	res, err := s.service.RearmAlarm(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type fireRequest struct {
	Trigger string `json:"trigger"`
}

func (s *Server) fireAlarm(w http.ResponseWriter, r *http.Request, id string) {
	var req fireRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid json")
			return
		}
	}

	res, err := s.service.FireAlarm(r.Context(), id, dispatch.Trigger(req.Trigger))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Feed Handlers ---

func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Recover(r.Context()))
}

// EventsResponse is returned by GET /events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "after must be a sequence number")
			return
		}
		after = n
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: s.service.Events(after)})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.service.Audit(limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []models.PDREntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	OK         bool   `json:"ok"`
	DB         string `json:"db"`
	Version    string `json:"version"`
	Time       string `json:"time"`
	Capability string `json:"capability"`
	Degraded   bool   `json:"degraded"`
	Poller     bool   `json:"poller"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	capability, degraded := s.service.Capability()
	resp := HealthResponse{
		OK:         true,
		DB:         "ok",
		Version:    Version,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Capability: capability,
		Degraded:   degraded,
	}
	if s.PollerRunning != nil {
		resp.Poller = s.PollerRunning()
	}

	status := http.StatusOK
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			resp.OK = false
			resp.DB = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// apiError is the JSON body of every failed alarm request.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
