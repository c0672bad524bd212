package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// ThrottledResponse is the structured 429 body.
type ThrottledResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	RetryAfter int64     `json:"retryAfter"` // seconds
	Timestamp  time.Time `json:"timestamp"`
}

// ConflictResponse is returned to the loser of a concurrent duplicate
// idempotent request.
type ConflictResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
