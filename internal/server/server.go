// Package server exposes the control API: health and stats probes,
// runtime detection configuration and the live event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"sitewatch/internal/auth"
	"sitewatch/internal/delivery"
	"sitewatch/internal/pipeline"
	"sitewatch/internal/storage"
	"sitewatch/internal/ws"
)

// Server is the control API server
type Server struct {
	httpServer    *http.Server
	pipeline      *pipeline.Pipeline
	detector      pipeline.Detector
	counters      *delivery.Counters
	backlog       *storage.Backlog
	hub           *ws.Hub
	authenticator *auth.Authenticator
	startedAt     time.Time
}

// New creates a control API server listening on addr
func New(addr string, p *pipeline.Pipeline, detector pipeline.Detector, counters *delivery.Counters, backlog *storage.Backlog, hub *ws.Hub, authenticator *auth.Authenticator) *Server {
	s := &Server{
		pipeline:      p,
		detector:      detector,
		counters:      counters,
		backlog:       backlog,
		hub:           hub,
		authenticator: authenticator,
		startedAt:     time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /config/detection", s.handleGetDetectionConfig)
	mux.Handle("PUT /config/detection", RequireAuth(authenticator, http.HandlerFunc(s.handlePutDetectionConfig)))
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.Handle("GET /ws/events", ws.NewHandler(hub))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	log.Printf("[Server] Control API listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status        string  `json:"status"`
	Running       bool    `json:"running"`
	EngineHealthy bool    `json:"engine_healthy"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Running:       s.pipeline.Running(),
		EngineHealthy: s.detector.IsHealthy(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}
	if !resp.EngineHealthy {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	Frames    pipeline.Stats `json:"frames"`
	Processed uint64         `json:"processed"`
	Delivered uint64         `json:"delivered"`
	Backlog   int            `json:"backlog"`
	Clients   bool           `json:"stream_clients"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	backlogged, err := s.backlog.Count()
	if err != nil {
		log.Printf("[Server] Backlog count error: %v", err)
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Frames:    s.pipeline.Stats(),
		Processed: s.counters.Processed.Load(),
		Delivered: s.counters.Delivered.Load(),
		Backlog:   backlogged,
		Clients:   s.hub.HasClients(),
	})
}

func (s *Server) handleGetDetectionConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Config().Current())
}

func (s *Server) handlePutDetectionConfig(w http.ResponseWriter, r *http.Request) {
	var cfg pipeline.DetectionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid configuration body")
		return
	}
	if len(cfg.Classes) == 0 {
		writeError(w, http.StatusBadRequest, "at least one class is required")
		return
	}
	for name, tc := range cfg.Classes {
		t := tc.Threshold
		if t.IoU < 0 || t.IoU > 1 || t.Confidence < 0 || t.Confidence > 1 {
			writeError(w, http.StatusBadRequest, "thresholds for "+name+" must be within [0, 1]")
			return
		}
	}

	updated := s.pipeline.Config().Update(&cfg)
	log.Printf("[Server] Detection config updated to version %d", updated.Version)
	writeJSON(w, http.StatusOK, updated)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.authenticator.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAuthDisabled) {
			writeError(w, http.StatusNotFound, "authentication is disabled")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Server] Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
