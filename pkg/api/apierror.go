// Package api exposes the governed substrate over HTTP.
package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the error response shape used across the API.
type errorBody struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusBadRequest, msg)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = "Not found"
	}
	WriteError(w, http.StatusNotFound, msg)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, msg string) {
	if msg == "" {
		msg = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, msg)
}

// WriteInternal writes a 500 error response without leaking internals.
func WriteInternal(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// WriteJSON writes a JSON success response.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
