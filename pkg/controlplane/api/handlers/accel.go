package handlers

import (
	"net/http"

	"github.com/marmos91/dittoaccel/pkg/accel"
)

// AccelHandler serves the read-only framework views.
type AccelHandler struct {
	fw *accel.Framework
}

// NewAccelHandler creates an AccelHandler.
func NewAccelHandler(fw *accel.Framework) *AccelHandler {
	return &AccelHandler{fw: fw}
}

// AssignmentResponse is one row of GET /api/v1/accel/assignments.
type AssignmentResponse struct {
	Opcode   string `json:"opcode"`
	Module   string `json:"module"`
	Override bool   `json:"override"`
}

// Modules handles GET /api/v1/accel/modules.
func (h *AccelHandler) Modules(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.fw.Modules())
}

// Assignments handles GET /api/v1/accel/assignments. Rows follow opcode
// order; an unstarted framework answers 503.
func (h *AccelHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	if !h.fw.Started() {
		ServiceUnavailable(w, "accel framework not started")
		return
	}

	overrides := h.fw.Overrides()
	assigned := h.fw.Assignments()
	out := make([]AssignmentResponse, 0, len(assigned))
	for _, op := range accel.Opcodes() {
		name, ok := assigned[op.String()]
		if !ok {
			continue
		}
		_, override := overrides[op]
		out = append(out, AssignmentResponse{Opcode: op.String(), Module: name, Override: override})
	}
	WriteJSONOK(w, out)
}

// Config handles GET /api/v1/config. The response is the replayable
// configuration dump and includes key material.
func (h *AccelHandler) Config(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.fw.ConfigEntries())
}
