package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/pkg/response"
)

// MonitoringHandler serves the local dashboard view: counters, readiness and where to scrape.
type MonitoringHandler struct {
	module      *monitoring.Module
	metricsPath string
}

// NewMonitoringHandler returns nil without a module. An empty metricsPath means Prometheus
// exposition is off.
func NewMonitoringHandler(module *monitoring.Module, metricsPath string) *MonitoringHandler {
	if module == nil {
		return nil
	}
	return &MonitoringHandler{module: module, metricsPath: metricsPath}
}

type prometheusInfo struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint,omitempty"`
}

type monitoringSummary struct {
	Summary    monitoring.Summary `json:"summary"`
	Readiness  monitoring.Status  `json:"readiness"`
	Prometheus prometheusInfo     `json:"prometheus"`
}

func (h *MonitoringHandler) Summary(c *gin.Context) {
	out := monitoringSummary{
		Summary:    h.module.Summary(),
		Readiness:  monitoring.StatusUp,
		Prometheus: prometheusInfo{Enabled: h.metricsPath != "", Endpoint: h.metricsPath},
	}
	if health := h.module.Health(); health != nil {
		out.Readiness = health.Evaluate(c.Request.Context(), monitoring.Readiness).Status
	}
	response.Success(c, http.StatusOK, out)
}
