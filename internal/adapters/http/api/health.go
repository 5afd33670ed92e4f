package api

import (
	"net/http"

	"github.com/okian/movers/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler serves the Prometheus exposition at /healthz. A scrape that
// succeeds doubles as a liveness check.
type HealthHandler struct {
	metrics http.Handler
}

// NewHealthHandler creates a health handler over the service registry.
func NewHealthHandler() *HealthHandler {
	return NewHealthHandlerFor(metrics.GetRegistry())
}

// NewHealthHandlerFor serves metrics gathered from g.
func NewHealthHandlerFor(g prometheus.Gatherer) *HealthHandler {
	return &HealthHandler{
		metrics: promhttp.HandlerFor(g, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}),
	}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
