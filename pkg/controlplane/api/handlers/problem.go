// Package handlers provides the HTTP handlers of the dittoaccel API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/bdev"
)

// Problem represents an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type,omitempty"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// BadRequest writes a 400 Bad Request problem response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// NotFound writes a 404 Not Found problem response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", detail)
}

// Conflict writes a 409 Conflict problem response.
func Conflict(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusConflict, "Conflict", detail)
}

// NotImplemented writes a 501 Not Implemented problem response.
func NotImplemented(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotImplemented, "Not Implemented", detail)
}

// ServiceUnavailable writes a 503 Service Unavailable problem response.
func ServiceUnavailable(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusServiceUnavailable, "Service Unavailable", detail)
}

// InternalServerError writes a 500 Internal Server Error problem response.
func InternalServerError(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", detail)
}

// StatusForError maps framework and bdev errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, accel.ErrNotFound), errors.Is(err, bdev.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, accel.ErrExists), errors.Is(err, bdev.ErrExists), errors.Is(err, bdev.ErrClaimed):
		return http.StatusConflict
	case errors.Is(err, accel.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, accel.ErrShutdown), errors.Is(err, accel.ErrNotStarted),
		errors.Is(err, accel.ErrNoTask), errors.Is(err, bdev.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, accel.ErrInvalidArgument), errors.Is(err, bdev.ErrInvalidRange):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError writes err as a problem response with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	WriteProblem(w, status, http.StatusText(status), err.Error())
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

// WriteJSONOK writes a 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

// WriteJSONCreated writes a 201 Created JSON response.
func WriteJSONCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
