// Package solver implements the femsolver HTTP service: the numbers
// endpoint the front API proxies, a mesh-building endpoint backed by
// internal/geometry, and health reporting.
package solver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/onlinefem/onlinefem/internal/geometry"
	"github.com/onlinefem/onlinefem/internal/lifecycle"
	"github.com/onlinefem/onlinefem/internal/models"
	"github.com/onlinefem/onlinefem/internal/observability"
)

// numbersName is the only name the solver has a number set registered under.
const numbersName = "numbers"

// defaultDivisions is the mesh grid used when /mesh gets no nx/ny.
const defaultDivisions = 32

// numbersPayload is the wire shape of a numbers answer. Method echoes the
// HTTP verb that produced it.
type numbersPayload struct {
	Numbers []int  `json:"numbers"`
	Method  string `json:"method"`
}

func digits() []int {
	return []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
}

// Config holds the solver handler settings.
type Config struct {
	WarmNX       int // warm-up mesh divisions, default 32
	WarmNY       int
	MaxDivisions int // /mesh clamp bound, default 512
}

// Handler serves the solver endpoints.
type Handler struct {
	logger       *zap.Logger
	maxDivisions int
	warmNX       int
	warmNY       int

	warmMu   sync.Mutex
	warmOK   bool
	warmStat models.MeshStats
}

// NewHandler returns a solver handler. Warm-up happens in WarmMesh, not here,
// so construction never fails.
func NewHandler(cfg Config, logger *zap.Logger) *Handler {
	if cfg.WarmNX <= 0 {
		cfg.WarmNX = defaultDivisions
	}
	if cfg.WarmNY <= 0 {
		cfg.WarmNY = defaultDivisions
	}
	if cfg.MaxDivisions <= 0 {
		cfg.MaxDivisions = 512
	}
	return &Handler{
		logger:       logger,
		maxDivisions: cfg.MaxDivisions,
		warmNX:       cfg.WarmNX,
		warmNY:       cfg.WarmNY,
	}
}

// WarmMesh builds the configured warm-up mesh once and records its stats for
// the health check. Call at startup before serving traffic.
func (h *Handler) WarmMesh() error {
	stats, err := h.buildMesh(h.warmNX, h.warmNY)
	h.warmMu.Lock()
	defer h.warmMu.Unlock()
	if err != nil {
		h.warmOK = false
		return err
	}
	h.warmOK = true
	h.warmStat = stats
	h.logger.Info("warm mesh built",
		zap.Int("nx", stats.NX),
		zap.Int("ny", stats.NY),
		zap.Int("nodes", stats.Nodes),
		zap.Int("triangles", stats.Triangles),
		zap.Float64("build_seconds", stats.BuildSeconds))
	return nil
}

func (h *Handler) buildMesh(nx, ny int) (models.MeshStats, error) {
	start := time.Now()
	mesh, err := geometry.RectangleMesh(1, 1, nx, ny)
	duration := time.Since(start)
	observability.RecordMeshBuild(err, duration)
	if err != nil {
		return models.MeshStats{}, err
	}
	return models.MeshStats{
		NX:           nx,
		NY:           ny,
		Nodes:        mesh.NodeCount(),
		Triangles:    mesh.CountType(geometry.ElementTriangle),
		BuildSeconds: duration.Seconds(),
	}, nil
}

// Numbers handles GET and POST on the solver root. GET answers the digit set
// directly. POST looks up the form name: the registered name answers the
// set, an unknown name answers JSON null, a missing name is a 400.
func (h *Handler) Numbers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, numbersPayload{Numbers: digits(), Method: http.MethodGet})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "MISSING_NAME", "malformed form body")
			return
		}
		names, ok := r.PostForm["name"]
		if !ok || len(names) == 0 {
			writeError(w, r, http.StatusBadRequest, "MISSING_NAME", "form field name is required")
			return
		}
		if names[0] != numbersName {
			// Nothing registered under that name.
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, numbersPayload{Numbers: digits(), Method: http.MethodPost})
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// BuildMesh handles GET /mesh?nx=&ny=. Divisions default to 32 and are
// clamped to [1, max_divisions].
func (h *Handler) BuildMesh(w http.ResponseWriter, r *http.Request) {
	nx := h.divisionsParam(r, "nx")
	ny := h.divisionsParam(r, "ny")

	stats, err := h.buildMesh(nx, ny)
	if err != nil {
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("mesh build failed", zap.Error(err))
		}
		writeError(w, r, http.StatusInternalServerError, "MESH_FAILURE", "mesh build failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) divisionsParam(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultDivisions
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultDivisions
	}
	if n < 1 {
		return 1
	}
	if n > h.maxDivisions {
		return h.maxDivisions
	}
	return n
}

// GetHealth handles GET /health. Shutting down wins over everything else;
// otherwise the warm mesh build decides between healthy and degraded.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.warmMu.Lock()
	warmOK := h.warmOK
	h.warmMu.Unlock()

	status := "healthy"
	httpStatus := http.StatusOK
	checks := map[string]string{"mesh": "healthy"}

	if !warmOK {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
		checks["mesh"] = "unhealthy"
	}
	if lifecycle.IsShuttingDown() {
		status = "shutting-down"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"service":   "femsolver",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
