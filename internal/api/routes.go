package api

import (
	"net/http"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(cfg HandlerConfig) http.Handler {
	handler := NewHandler(cfg)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes)
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Job queue: controller side
	mux.HandleFunc("POST /job", handler.CreateJob)
	mux.HandleFunc("GET /job/status", handler.JobStatus)

	// Job queue: worker side
	mux.HandleFunc("GET /job/poll", handler.PollJob)
	mux.HandleFunc("POST /job/result", handler.ReportResult)

	// Device telemetry and state
	mux.HandleFunc("GET /position", handler.Position)
	mux.HandleFunc("GET /status", handler.DeviceStatus)
	mux.HandleFunc("POST /stolen", handler.SetStolen)

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
