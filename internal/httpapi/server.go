// Package httpapi implements the control plane's HTTP/JSON RPC surface:
// the policy/budget/monitor/settings/activate_policy endpoints, static file
// serving, an ambient health endpoint, and a WebSocket live push of the
// latest tick's result once per second.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/p1budget/internal/core"
	"github.com/devskill-org/p1budget/internal/corelog"
	"github.com/devskill-org/p1budget/internal/monitor"
	"github.com/devskill-org/p1budget/internal/settings"
)

// Server is the HTTP surface in front of the registry, settings store and
// monitor consumer.
type Server struct {
	registry *core.Registry
	settings *settings.Settings
	monitor  *monitor.Monitor

	docRoot   string
	latitude  float64
	longitude float64

	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    sync.Map
	broadcast  chan []byte
	done       chan struct{}
	startTime  time.Time

	log *corelog.Logger
}

// Config bundles the Server's constructor parameters.
type Config struct {
	Addr      string
	DocRoot   string
	Latitude  float64
	Longitude float64
}

// New builds a Server and its routes. Call Start to begin serving.
func New(cfg Config, registry *core.Registry, s *settings.Settings, mon *monitor.Monitor, log *corelog.Logger) *Server {
	srv := &Server{
		registry:  registry,
		settings:  s,
		monitor:   mon,
		docRoot:   cfg.DocRoot,
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		startTime: time.Now(),
		log:       log,
	}

	r := chi.NewRouter()
	r.Get("/api/policies", srv.handlePolicies)
	r.Get("/api/curcap", srv.handleCurcap)
	r.Get("/api/monitor", srv.handleMonitor)
	r.Get("/api/settings", srv.handleGetSettings)
	r.Post("/api/settings", srv.handlePostSettings)
	r.Post("/api/activate_policy", srv.handleActivatePolicy)
	r.Get("/api/health", srv.handleHealth)
	r.Get("/api/ws", srv.handleWebsocket)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadRequest, "method not allowed")
	})
	r.NotFound(srv.handleStatic)

	srv.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

// Handler returns the server's http.Handler, routing included, so callers
// (and tests) can dispatch requests through the exact chi router Start
// serves rather than calling a handler method directly.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving in the background.
func (s *Server) Start() {
	go s.broadcastLoop()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("httpapi: server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the HTTP server and closes any open sockets.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	s.clients.Range(func(key, _ any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.ListPolicies()
	out := make([]map[string]any, 0, len(infos))
	for _, p := range infos {
		out = append(out, map[string]any{
			"index":       p.Index,
			"name":        p.Name,
			"icon":        p.Icon,
			"label":       p.Label,
			"description": p.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCurcap(w http.ResponseWriter, r *http.Request) {
	budget, sit, _ := s.registry.SnapshotBudget()
	writeJSON(w, http.StatusOK, monitor.Curcap(budget, sit))
}

type monitorResponse struct {
	Budget    monitorBudget    `json:"budget"`
	Situation monitorSituation `json:"situation"`
}

type monitorBudget struct {
	Current float64 `json:"current"`
}

type monitorSituation struct {
	BatteryState   float64        `json:"battery_state"`
	InverterOutput float64        `json:"inverter_output"`
	BatteryOutput  float64        `json:"battery_output"`
	SolarOutput    float64        `json:"solar_output"`
	Consumption    float64        `json:"consumption"`
	Grid           []monitorPhase `json:"grid"`
}

type monitorPhase struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Power   float64 `json:"power"`
}

func toMonitorResponse(budget core.Budget, sit core.Situation) monitorResponse {
	phases := make([]monitorPhase, 0, len(sit.Grid))
	for _, p := range sit.Grid {
		phases = append(phases, monitorPhase{Voltage: p.Voltage, Current: p.Current, Power: p.Power()})
	}
	return monitorResponse{
		Budget: monitorBudget{Current: budget.Current},
		Situation: monitorSituation{
			BatteryState:   sit.BatteryState,
			InverterOutput: sit.InverterOutput,
			BatteryOutput:  sit.BatteryOutput,
			SolarOutput:    sit.SolarOutput(),
			Consumption:    sit.Consumption(),
			Grid:           phases,
		},
	}
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	budget, sit, _ := s.registry.SnapshotBudget()
	writeJSON(w, http.StatusOK, toMonitorResponse(budget, sit))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Snapshot())
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	result, err := s.settings.Apply(updates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(result.Rejected) > 0 {
		writeJSON(w, http.StatusOK, result)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivatePolicy(w http.ResponseWriter, r *http.Request) {
	var index int
	if err := json.NewDecoder(r.Body).Decode(&index); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	s.registry.SetActivePolicy(index)
	w.WriteHeader(http.StatusNoContent)
}

// handleStatic serves files under docRoot, rejecting any path containing
// "..", mapping "/" to "/index.html", and inferring content type from
// extension.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "unknown API endpoint")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusBadRequest, "method not allowed")
		return
	}
	reqPath := r.URL.Path
	if strings.Contains(reqPath, "..") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if reqPath == "/" {
		reqPath = "/index.html"
	}
	full := path.Join(s.docRoot, reqPath)
	w.Header().Set("Content-Type", mimeType(full))
	http.ServeFile(w, r, full)
}

func mimeType(p string) string {
	switch path.Ext(p) {
	case ".html":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buildStatus())
}

type statusPayload struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    string  `json:"uptime"`
	Sun       sunInfo `json:"sun"`
}

type sunInfo struct {
	SolarAngle float64 `json:"solar_angle"`
	Sunrise    string  `json:"sunrise"`
	Sunset     string  `json:"sunset"`
}

// buildStatus assembles the ambient health payload; the sun fields are
// informational only and never feed a policy decision.
func (s *Server) buildStatus() statusPayload {
	now := time.Now()
	sunTimes := suncalc.GetTimes(now, s.latitude, s.longitude)
	sunPos := suncalc.GetPosition(now, s.latitude, s.longitude)
	return statusPayload{
		Status:    "healthy",
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime:    formatUptime(time.Since(s.startTime)),
		Sun: sunInfo{
			SolarAngle: sunPos.Altitude * 180 / math.Pi,
			Sunrise:    sunTimes["sunrise"].Value.Format(time.RFC3339),
			Sunset:     sunTimes["sunset"].Value.Format(time.RFC3339),
		},
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("httpapi: websocket upgrade: %v", err)
		return
	}
	s.clients.Store(conn, true)
	s.sendSnapshot(conn)

	defer func() {
		s.clients.Delete(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) sendSnapshot(conn *websocket.Conn) {
	budget, sit, _ := s.registry.SnapshotBudget()
	if err := conn.WriteJSON(toMonitorResponse(budget, sit)); err != nil {
		s.log.Errorf("httpapi: websocket write: %v", err)
	}
}

// broadcastLoop pushes a fresh snapshot to every connected client once per
// second.
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			budget, sit, ok := s.registry.SnapshotBudget()
			if !ok {
				continue
			}
			payload, err := json.Marshal(toMonitorResponse(budget, sit))
			if err != nil {
				continue
			}
			s.clients.Range(func(key, _ any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					conn.Close()
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}
