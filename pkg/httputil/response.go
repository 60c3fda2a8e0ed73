// Package httputil provides HTTP handler utilities for the standard response
// envelope, error mapping, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/meridianhq/meridian/pkg/apperr"
)

// Envelope is the standard response body for every API endpoint.
type Envelope struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteSuccess writes a successful response (200 OK) wrapping data in the envelope
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// WriteSuccessMessage writes a success response with a message and no data
func WriteSuccessMessage(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message})
}

// WriteError maps a classified error to its status code and writes the
// envelope. Unclassified errors become a generic 500 without internal detail.
func WriteError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	body := Envelope{
		Success: false,
		Error:   string(kind),
		Message: apperr.ClientMessage(err),
		Fields:  apperr.FieldsOf(err),
	}
	WriteJSON(w, apperr.HTTPStatus(kind), body)
}

// WriteErrorKind writes an error envelope for a kind with a custom message.
func WriteErrorKind(w http.ResponseWriter, kind apperr.Kind, message string) {
	WriteJSON(w, apperr.HTTPStatus(kind), Envelope{
		Success: false,
		Error:   string(kind),
		Message: message,
	})
}
