// Package api provides the HTTP API for the heat mitigation planning session.
// GET endpoints are public (read-only observation for rendering and summary
// collaborators). POST endpoints require a bearer token (analyst control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avoin/heatplan/internal/mitigation"
	"github.com/avoin/heatplan/internal/observability"
	"github.com/avoin/heatplan/internal/persistence"
)

const maxSSEConns = 2

// Server serves the planning session over HTTP. The engine itself is
// single-threaded; the server's mutex serializes all session access because
// ApplyParkConversion mutates shared per-cell state non-idempotently.
type Server struct {
	Session  *mitigation.Session
	DB       *persistence.DB
	Metrics  *observability.Metrics
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey string // Bearer token for SSE stream endpoint. Empty = streaming disabled.

	mu sync.Mutex // guards Session

	// Active SSE connection count (atomic).
	sseConns int32

	// SSE subscribers receiving cell-update payloads.
	subMu sync.Mutex
	subs  map[chan []byte]struct{}
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	precomputeLimiter := NewRateLimiter(6, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/cells", s.handleCells)
	mux.HandleFunc("/api/v1/cell/", s.handleCellDetail)
	mux.HandleFunc("/api/v1/impacts", s.handleImpacts)
	mux.HandleFunc("/api/v1/cooling-centers", s.handleCoolingCenters)
	mux.HandleFunc("/api/v1/parks", s.handleParks)

	// SSE streaming endpoint (GET, requires bearer token — relay only).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/cooling-center", s.adminOnly(s.handleAddCoolingCenter))
	mux.HandleFunc("/api/v1/park", s.adminOnly(s.handleAddPark))
	mux.HandleFunc("/api/v1/reset", s.adminOnly(s.handleReset))
	mux.HandleFunc("/api/v1/optimised", s.adminOnly(s.handleOptimised))
	mux.HandleFunc("/api/v1/impacts/precompute",
		s.adminOnly(RateLimitMiddleware(precomputeLimiter, s.handlePrecompute)))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	// Prometheus metrics.
	mux.Handle("/metrics", promhttp.Handler())

	return corsMiddleware(mux)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no HEATPLAN_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r, s.AdminKey) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stats := s.Session.Stats()
	cells := s.Session.Registry().Count()
	id := s.Session.ID
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"name":                      "heatplan",
		"session":                   id,
		"cells":                     cells,
		"cooling_centers":           stats.CoolingCenters,
		"park_conversions":          stats.ParkConversions,
		"affected_cells":            stats.AffectedCells,
		"cumulative_cooling_area":   stats.CumulativeCoolingArea,
		"cumulative_heat_reduction": stats.CumulativeHeatReduction,
		"cooling_area_pretty":       humanize.Commaf(stats.CumulativeCoolingArea) + " m²",
		"optimised":                 stats.Optimised,
	})
}

type cellView struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Baseline  float64 `json:"baseline_heat_index"`
	Modified  float64 `json:"modified_heat_index"`
	Effective float64 `json:"effective_heat_index"`
	Affected  bool    `json:"affected"`
}

func (s *Server) handleCells(w http.ResponseWriter, r *http.Request) {
	affectedOnly := r.URL.Query().Get("affected") == "true"

	s.mu.Lock()
	reg := s.Session.Registry()
	result := make([]cellView, 0, reg.Count())
	for _, c := range reg.Cells() {
		affected := s.Session.Affected(c.ID)
		if affectedOnly && !affected {
			continue
		}
		modified, _ := reg.Modified(c.ID)
		effective, _ := s.Session.EffectiveHeatIndex(c.ID)
		result = append(result, cellView{
			ID:        c.ID,
			X:         c.X,
			Y:         c.Y,
			Baseline:  c.Baseline,
			Modified:  modified,
			Effective: effective,
			Affected:  affected,
		})
	}
	s.mu.Unlock()

	writeJSON(w, result)
}

func (s *Server) handleCellDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/cell/")
	if id == "" {
		http.Error(w, "cell id required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cell, ok := s.Session.Registry().Cell(id)
	if !ok {
		http.Error(w, fmt.Sprintf("grid cell %q not found", id), http.StatusNotFound)
		return
	}

	modified, _ := s.Session.Registry().Modified(id)
	effective, _ := s.Session.EffectiveHeatIndex(id)
	reduction, _ := s.Session.TotalReductionForCell(id)

	writeJSON(w, map[string]any{
		"id":                   cell.ID,
		"x":                    cell.X,
		"y":                    cell.Y,
		"baseline_heat_index":  cell.Baseline,
		"modified_heat_index":  modified,
		"effective_heat_index": effective,
		"point_reduction":      reduction,
		"affected":             s.Session.Affected(id),
		"cooling_center_count": s.Session.CoolingCenterCount(id),
		"cooling_capacity":     s.Session.CoolingCapacity(id),
		"grid_impact":          s.Session.GridImpact(id),
	})
}

func (s *Server) handleImpacts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	impacts := s.Session.GridImpacts()
	s.mu.Unlock()

	if len(impacts) == 0 {
		writeJSON(w, map[string]any{"impacts": map[string]float64{}, "precomputed": false})
		return
	}
	writeJSON(w, map[string]any{"impacts": impacts, "precomputed": true})
}

func (s *Server) handleCoolingCenters(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	centers := append([]mitigation.CoolingCenter(nil), s.Session.CoolingCenters()...)
	s.mu.Unlock()
	writeJSON(w, centers)
}

func (s *Server) handleParks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	conversions := append([]mitigation.ParkConversion(nil), s.Session.ParkConversions()...)
	s.mu.Unlock()
	writeJSON(w, conversions)
}

func (s *Server) handleAddCoolingCenter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
		GridID   string  `json:"grid_id,omitempty"`
		Capacity float64 `json:"capacity,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Capacity < 0 {
		http.Error(w, "capacity must not be negative", http.StatusBadRequest)
		return
	}

	center := mitigation.CoolingCenter{X: req.X, Y: req.Y, GridID: req.GridID, Capacity: req.Capacity}

	s.mu.Lock()
	s.Session.AddCoolingCenter(center)
	total := len(s.Session.CoolingCenters())
	s.mu.Unlock()

	if s.Metrics != nil {
		s.Metrics.CoolingCentersAdded.Inc()
	}
	s.broadcast(map[string]any{"type": "cooling_center", "center": center})

	writeJSON(w, map[string]any{"success": true, "total_centers": total})
}

func (s *Server) handleAddPark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceCellID    string  `json:"source_cell_id"`
		AreaConvertedM2 float64 `json:"area_converted_m2"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.SourceCellID == "" || req.AreaConvertedM2 <= 0 {
		http.Error(w, "source_cell_id and a positive area_converted_m2 required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	s.mu.Lock()
	result, err := s.Session.ApplyParkConversion(req.SourceCellID, req.AreaConvertedM2)
	var totals mitigation.SessionStats
	if err == nil {
		totals = s.Session.Stats()
	}
	s.mu.Unlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	if s.Metrics != nil {
		s.Metrics.ParkConversions.Inc()
		s.Metrics.ParkApplyDuration.Observe(time.Since(start).Seconds())
		s.Metrics.CumulativeCoolingArea.Set(totals.CumulativeCoolingArea)
		s.Metrics.CumulativeHeatReduction.Set(totals.CumulativeHeatReduction)
		s.Metrics.AffectedCells.Set(float64(totals.AffectedCells))
	}
	s.broadcast(map[string]any{"type": "park_conversion", "result": result})

	writeJSON(w, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.Session.Reset()
	s.mu.Unlock()

	if s.Metrics != nil {
		s.Metrics.SessionResets.Inc()
		s.Metrics.CumulativeCoolingArea.Set(0)
		s.Metrics.CumulativeHeatReduction.Set(0)
		s.Metrics.AffectedCells.Set(0)
	}
	s.broadcast(map[string]any{"type": "reset"})

	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleOptimised(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Optimised bool `json:"optimised"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.Session.SetOptimised(req.Optimised)
	s.mu.Unlock()

	writeJSON(w, map[string]any{"success": true, "optimised": req.Optimised})
}

func (s *Server) handlePrecompute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	s.mu.Lock()
	s.Session.PrecomputeGridImpacts()
	count := s.Session.Registry().Count()
	s.mu.Unlock()

	elapsed := time.Since(start)
	if s.Metrics != nil {
		s.Metrics.PrecomputeDuration.Observe(elapsed.Seconds())
	}

	writeJSON(w, map[string]any{
		"success":  true,
		"cells":    count,
		"duration": elapsed.String(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "persistence not available", http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	err := s.DB.SaveSession(s.Session)
	id := s.Session.ID
	s.mu.Unlock()

	if err != nil {
		slog.Error("snapshot failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true, "session": id})
}

// handleStream serves per-intervention updates over SSE so a rendering
// collaborator can recolor cells without polling.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no HEATPLAN_RELAY_KEY set)", http.StatusForbidden)
		return
	}
	if !s.checkBearerToken(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if atomic.LoadInt32(&s.sseConns) >= maxSSEConns {
		http.Error(w, "too many stream connections", http.StatusTooManyRequests)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	atomic.AddInt32(&s.sseConns, 1)
	defer atomic.AddInt32(&s.sseConns, -1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan []byte, 16)
	s.subMu.Lock()
	if s.subs == nil {
		s.subs = make(map[chan []byte]struct{})
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	defer func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case payload := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// broadcast sends an event to all SSE subscribers. Slow subscribers drop
// events rather than block a commit.
func (s *Server) broadcast(event map[string]any) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subs) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	for ch := range s.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
