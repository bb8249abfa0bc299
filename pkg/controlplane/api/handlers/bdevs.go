package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/bdev"
	"github.com/marmos91/dittoaccel/pkg/bdev/crypto"
	"github.com/marmos91/dittoaccel/pkg/metrics"
)

// BdevHandler lists block devices and manages crypto bdevs.
type BdevHandler struct {
	fw      *accel.Framework
	mgr     *bdev.Manager
	metrics metrics.BdevMetrics
}

// NewBdevHandler creates a BdevHandler. m may be nil.
func NewBdevHandler(fw *accel.Framework, mgr *bdev.Manager, m metrics.BdevMetrics) *BdevHandler {
	return &BdevHandler{fw: fw, mgr: mgr, metrics: m}
}

// List handles GET /api/v1/bdevs.
func (h *BdevHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.mgr.List())
}

// CreateCrypto handles POST /api/v1/bdevs/crypto.
func (h *BdevHandler) CreateCrypto(w http.ResponseWriter, r *http.Request) {
	var opts crypto.Options
	if !decodeJSONBody(w, r, &opts) {
		return
	}
	if opts.Name == "" || opts.BaseBdev == "" {
		BadRequest(w, "name and base_bdev_name are required")
		return
	}

	d, err := crypto.Create(h.mgr, h.fw, opts, crypto.WithMetrics(h.metrics))
	if err != nil {
		WriteError(w, err)
		return
	}

	for _, info := range h.mgr.List() {
		if info.Name == d.Name() {
			WriteJSONCreated(w, info)
			return
		}
	}
	// Deleted concurrently.
	NotFound(w, "crypto bdev "+d.Name()+" was removed")
}

// DeleteCrypto handles DELETE /api/v1/bdevs/crypto/{name}. The response
// is written once the device has been closed.
func (h *BdevHandler) DeleteCrypto(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	result := make(chan error, 1)
	crypto.Delete(h.mgr, name, func(err error) { result <- err })

	select {
	case err := <-result:
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteNoContent(w)
	case <-r.Context().Done():
		logger.Warn("crypto bdev delete still running after request ended", logger.KeyBdev, name)
		ServiceUnavailable(w, "delete of "+name+" did not complete in time")
	}
}
