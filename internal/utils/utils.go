package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the body of every JSON response the API writes.
type Envelope struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

var now = time.Now

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to write JSON", "error", err)
	}
}

// WriteSuccess writes {status:"success", message, data, timestamp}. A nil
// data is left out of the body.
func WriteSuccess(w http.ResponseWriter, status int, msg string, data any) {
	WriteJSON(w, status, Envelope{
		Status:    StatusSuccess,
		Message:   msg,
		Data:      data,
		Timestamp: Timestamp(),
	})
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Envelope{
		Status:    StatusError,
		Error:     http.StatusText(status),
		Message:   msg,
		Timestamp: Timestamp(),
	})
}

// Timestamp is the current time in the ISO-8601 form used in response bodies.
func Timestamp() string {
	return now().UTC().Format("2006-01-02T15:04:05.000Z")
}
