package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mvasquez/taskpool/internal/dispatch"
	"github.com/mvasquez/taskpool/internal/logger"
	"github.com/mvasquez/taskpool/internal/worker"
)

// AdminHandler exposes the Dispatcher's pool/queue state and tunables
// over HTTP: no per-worker control surface exists, since a Worker is
// entirely the Dispatcher's own implementation detail.
type AdminHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(d *dispatch.Dispatcher) *AdminHandler {
	return &AdminHandler{dispatcher: d}
}

// HealthCheck handles GET /admin/health.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dispatcher.Stats(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to get dispatcher stats")
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	h.respondJSON(w, http.StatusOK, toStatsResponse(stats))
}

type statsResponse struct {
	Live        int `json:"live"`
	Spawning    int `json:"spawning"`
	Idle        int `json:"idle"`
	Busy        int `json:"busy"`
	QueueDepth  int `json:"queue_depth"`
	PendingSize int `json:"pending_size"`
}

func toStatsResponse(s dispatch.Stats) statsResponse {
	return statsResponse{
		Live:        s.Live,
		Spawning:    s.Spawning,
		Idle:        s.Idle,
		Busy:        s.Busy,
		QueueDepth:  s.QueueDepth,
		PendingSize: s.PendingSize,
	}
}

// GetOptions handles GET /admin/options.
func (h *AdminHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	opts := h.dispatcher.Options()
	h.respondJSON(w, http.StatusOK, toOptionsResponse(opts))
}

type optionsResponse struct {
	PoolSizeMin       int    `json:"pool_size_min"`
	PoolSizeMax       int    `json:"pool_size_max"`
	TaskTimeoutMs     int64  `json:"task_timeout_ms"`
	ExecLimit         int    `json:"exec_limit"`
	ThreadFlags       uint32 `json:"thread_flags"`
	IdleWorkerTimeout int64  `json:"idle_worker_timeout_ms"`
}

func toOptionsResponse(o dispatch.Options) optionsResponse {
	return optionsResponse{
		PoolSizeMin:       o.PoolSizeMin,
		PoolSizeMax:       o.PoolSizeMax,
		TaskTimeoutMs:     o.TaskTimeout.Milliseconds(),
		ExecLimit:         o.ExecLimit,
		ThreadFlags:       uint32(o.ThreadFlags),
		IdleWorkerTimeout: o.IdleWorkerTimeout.Milliseconds(),
	}
}

// PatchOptionsRequest sets a single Dispatcher tunable by name.
type PatchOptionsRequest struct {
	Option string `json:"option"`
	Value  int64  `json:"value"`
}

// PatchOptions handles POST /admin/options.
func (h *AdminHandler) PatchOptions(w http.ResponseWriter, r *http.Request) {
	var req PatchOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opt := dispatch.Option(req.Option)
	var value any
	switch opt {
	case dispatch.OptionPoolSizeMin, dispatch.OptionPoolSizeMax, dispatch.OptionExecLimit:
		value = int(req.Value)
	case dispatch.OptionTaskTimeout, dispatch.OptionIdleWorkerTimeout:
		value = time.Duration(req.Value) * time.Millisecond
	case dispatch.OptionThreadFlags:
		value = worker.ThreadFlags(uint32(req.Value))
	default:
		h.respondError(w, http.StatusBadRequest, "unrecognized option: "+req.Option)
		return
	}

	if err := h.dispatcher.SetOption(opt, value); err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, toOptionsResponse(h.dispatcher.Options()))
}

// Shutdown handles POST /admin/shutdown.
func (h *AdminHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.Stop(r.Context()); err != nil {
		h.respondError(w, http.StatusInternalServerError, "shutdown did not complete: "+err.Error())
		return
	}
	logger.Info().Msg("dispatcher stopped via admin API")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"message": "dispatcher stopped"})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
