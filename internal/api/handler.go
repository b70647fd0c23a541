// Package api provides the HTTP API handlers and routing for the tracker
// service.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"biketrack/internal/apperrors"
	"biketrack/internal/health"
	"biketrack/internal/job"
	"biketrack/internal/observability"
	"biketrack/internal/status"
	"biketrack/internal/telemetry"
)

// maxRequestBodySize limits request bodies to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// telemetryReadLimit is how many recent records a position or status read
// scans when looking for a valid fix.
const telemetryReadLimit = 10

// Handler contains HTTP handlers for the tracker API
type Handler struct {
	jobs       *job.Dispatcher
	source     telemetry.Source
	flags      *status.Flags
	thresholds status.Thresholds
	metrics    *observability.Metrics
	health     *health.Checker
	adminPIN   string
	now        func() time.Time
}

// HandlerConfig holds dependencies for the handler.
type HandlerConfig struct {
	Jobs       *job.Dispatcher
	Source     telemetry.Source
	Flags      *status.Flags
	Thresholds status.Thresholds
	Metrics    *observability.Metrics
	Health     *health.Checker
	AdminPIN   string
}

// NewHandler creates a new API handler
func NewHandler(cfg HandlerConfig) *Handler {
	th := cfg.Thresholds
	if th.StaleUpdate == 0 {
		th = status.DefaultThresholds
	}
	return &Handler{
		jobs:       cfg.Jobs,
		source:     cfg.Source,
		flags:      cfg.Flags,
		thresholds: th,
		metrics:    cfg.Metrics,
		health:     cfg.Health,
		adminPIN:   cfg.AdminPIN,
		now:        time.Now,
	}
}

// CreateJob handles POST /job
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req job.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.jobs.Create(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, &job.CreateResponse{JobID: created.ID})
}

// PollJob handles GET /job/poll - a worker asking for its next job.
// Responds with {"job": null} when nothing is queued for the target.
func (h *Handler) PollJob(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("pi_id")

	claimed, err := h.jobs.Poll(r.Context(), target)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &job.PollResponse{Job: claimed})
}

// ReportResult handles POST /job/result - a worker reporting a terminal
// status. Reports against an expired or unknown job are rejected.
func (h *Handler) ReportResult(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req job.ResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.jobs.ReportResult(r.Context(), &req); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &job.ResultResponse{OK: true})
}

// JobStatus handles GET /job/status. An expired or never-created job
// answers 200 with a null job; clients read that as their terminal
// not-found outcome.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")

	j, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &job.StatusResponse{Job: j})
}

// Position handles GET /position - the newest valid fix for a device.
func (h *Handler) Position(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	if device == "" {
		h.writeError(w, http.StatusBadRequest, "device parameter is required")
		return
	}

	points, err := h.source.Latest(r.Context(), device, telemetryReadLimit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	pos := telemetry.Resolve(points)
	if pos == nil {
		h.writeError(w, http.StatusNotFound, "no telemetry for device")
		return
	}

	h.writeJSON(w, http.StatusOK, pos)
}

// DeviceStatusResponse is the response of GET /status.
type DeviceStatusResponse struct {
	Device       string       `json:"device"`
	State        status.State `json:"state"`
	Label        string       `json:"label"`
	Alert        bool         `json:"alert"`
	Stolen       bool         `json:"stolen"`
	LastUpdateTS int64        `json:"last_update_ts,omitempty"`
	FixTS        int64        `json:"fix_ts,omitempty"`
}

// DeviceStatus handles GET /status - derived connectivity state plus the
// stolen flag for a device.
func (h *Handler) DeviceStatus(w http.ResponseWriter, r *http.Request) {
	device := r.URL.Query().Get("device")
	if device == "" {
		h.writeError(w, http.StatusBadRequest, "device parameter is required")
		return
	}

	points, err := h.source.Latest(r.Context(), device, telemetryReadLimit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	stolen, err := h.flags.Stolen(r.Context(), device)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	in := status.Input{
		Stolen: stolen,
		Now:    h.now().UnixMilli(),
	}
	if pos := telemetry.Resolve(points); pos != nil {
		in.LastUpdate = pos.LastUpdateTS
		in.FixTime = pos.TS
		in.Lat = pos.Lat
		in.Lon = pos.Lon
	}

	snap := status.Derive(in, h.thresholds)
	h.writeJSON(w, http.StatusOK, &DeviceStatusResponse{
		Device:       device,
		State:        snap.State,
		Label:        snap.Label,
		Alert:        snap.Alert,
		Stolen:       stolen,
		LastUpdateTS: in.LastUpdate,
		FixTS:        in.FixTime,
	})
}

// StolenRequest is the body of POST /stolen.
type StolenRequest struct {
	Device string `json:"device"`
	PIN    string `json:"pin"`
	Stolen bool   `json:"stolen"`
}

// SetStolen handles POST /stolen - flag or clear a device as stolen.
// Requires the admin PIN; the comparison is constant time.
func (h *Handler) SetStolen(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req StolenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if h.adminPIN == "" || subtle.ConstantTimeCompare([]byte(req.PIN), []byte(h.adminPIN)) != 1 {
		h.handleError(w, r, apperrors.Unauthorized("invalid PIN"))
		return
	}

	if err := h.flags.SetStolen(r.Context(), req.Device, req.Stolen); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"stolen": req.Stolen})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 while the store is unreachable or shutdown has begun.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	code := http.StatusOK
	if !response.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	h.writeJSON(w, code, map[string]string{"error": message})
}

// handleError maps service errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.HTTPStatus(err)
	if code >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", code)
	}
	h.writeError(w, code, err.Error())
}
