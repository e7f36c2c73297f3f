// Package httpx provides HTTP response utilities shared by the JSON API
// handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the machine-readable error envelope returned to callers.
// Code is stable and safe to branch on; Detail is informational only.
type ErrorBody struct {
	Error    string   `json:"error"`
	Detail   string   `json:"detail,omitempty"`
	Required []string `json:"required,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an error envelope with a stable machine-readable code.
func Error(w http.ResponseWriter, status int, code, detail string) {
	JSON(w, status, ErrorBody{Error: code, Detail: detail})
}

// DecodeJSON decodes the JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
