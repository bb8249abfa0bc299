package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/dittoaccel/pkg/accel"
)

// KeyHandler manages the crypto keyring.
type KeyHandler struct {
	fw *accel.Framework
}

// NewKeyHandler creates a KeyHandler.
func NewKeyHandler(fw *accel.Framework) *KeyHandler {
	return &KeyHandler{fw: fw}
}

// CreateKeyRequest is the body of POST /api/v1/accel/crypto-keys. An empty
// Module selects the module assigned to encrypt.
type CreateKeyRequest struct {
	Name   string `json:"name"`
	Cipher string `json:"cipher"`
	Key    string `json:"key"`
	Key2   string `json:"key2,omitempty"`
	Driver string `json:"driver,omitempty"`
	Module string `json:"module,omitempty"`
}

// KeyResponse describes a live key without its material.
type KeyResponse struct {
	Name   string `json:"name"`
	Cipher string `json:"cipher"`
	Module string `json:"module"`
	Driver string `json:"driver,omitempty"`
	XTS    bool   `json:"has_key2"`
}

func keyToResponse(k *accel.CryptoKey) KeyResponse {
	return KeyResponse{
		Name:   k.Name(),
		Cipher: k.Cipher(),
		Module: k.Module().Name(),
		Driver: k.Driver(),
		XTS:    k.HasKey2(),
	}
}

// List handles GET /api/v1/accel/crypto-keys.
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys := h.fw.CryptoKeys()
	out := make([]KeyResponse, len(keys))
	for i, k := range keys {
		out[i] = keyToResponse(k)
	}
	WriteJSONOK(w, out)
}

// Create handles POST /api/v1/accel/crypto-keys.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	key, err := h.fw.CreateCryptoKey(req.Module, accel.CryptoKeyParams{
		Name:   req.Name,
		Cipher: req.Cipher,
		Key:    req.Key,
		Key2:   req.Key2,
		Driver: req.Driver,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSONCreated(w, keyToResponse(key))
}

// Delete handles DELETE /api/v1/accel/crypto-keys/{name}.
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, err := h.fw.GetCryptoKey(chi.URLParam(r, "name"))
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.fw.DestroyCryptoKey(key); err != nil {
		WriteError(w, err)
		return
	}
	WriteNoContent(w)
}
