package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/bdev"
)

// HealthHandler handles the unauthenticated probe endpoints.
type HealthHandler struct {
	fw        *accel.Framework
	bdevs     *bdev.Manager
	startTime time.Time
}

// NewHealthHandler creates a health handler. fw may be nil, in which case
// readiness reports unhealthy.
func NewHealthHandler(fw *accel.Framework, bdevs *bdev.Manager) *HealthHandler {
	return &HealthHandler{fw: fw, bdevs: bdevs, startTime: time.Now()}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "dittoaccel",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready. It succeeds once the framework has
// started and until it begins to finish.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.fw == nil || !h.fw.Started() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("accel framework not started"))
		return
	}

	data := map[string]any{
		"modules":       len(h.fw.Modules()),
		"crypto_keys":   len(h.fw.CryptoKeys()),
		"live_channels": h.fw.LiveChannels(),
	}
	if h.bdevs != nil {
		data["bdevs"] = len(h.bdevs.List())
	}
	writeJSON(w, http.StatusOK, healthyResponse(data))
}
