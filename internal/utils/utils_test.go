package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fixClock(t *testing.T) {
	t.Helper()
	orig := now
	now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 250_000_000, time.FixedZone("WIB", 7*3600)) }
	t.Cleanup(func() { now = orig })
}

func TestWriteJSON(t *testing.T) {
	t.Run("sets content-type and status", func(t *testing.T) {
		w := httptest.NewRecorder()
		body := map[string]string{"key": "value"}
		WriteJSON(w, http.StatusOK, body)

		if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
		}
		if w.Code != http.StatusOK {
			t.Errorf("Code = %d; want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("encodes body as JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		body := map[string]string{"foo": "bar"}
		WriteJSON(w, http.StatusCreated, body)

		var got map[string]string
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got["foo"] != "bar" {
			t.Errorf("body[foo] = %q; want bar", got["foo"])
		}
	})
}

func TestWriteSuccess(t *testing.T) {
	fixClock(t)

	t.Run("includes data", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteSuccess(w, http.StatusOK, "Data fetched successfully", map[string]int{"n": 1})

		var got map[string]any
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got["status"] != "success" {
			t.Errorf("status = %v; want success", got["status"])
		}
		if got["message"] != "Data fetched successfully" {
			t.Errorf("message = %v", got["message"])
		}
		if got["timestamp"] != "2024-05-01T03:00:00.250Z" {
			t.Errorf("timestamp = %v; want UTC ISO-8601", got["timestamp"])
		}
		data, ok := got["data"].(map[string]any)
		if !ok || data["n"] != float64(1) {
			t.Errorf("data = %v", got["data"])
		}
		if _, ok := got["error"]; ok {
			t.Error("success body must not carry an error field")
		}
	})

	t.Run("omits nil data", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteSuccess(w, http.StatusOK, "ok", nil)

		var got map[string]any
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if _, ok := got["data"]; ok {
			t.Errorf("data should be omitted, got %v", got["data"])
		}
	})
}

func TestWriteError(t *testing.T) {
	fixClock(t)
	w := httptest.NewRecorder()
	status := http.StatusBadRequest
	msg := "invalid input"
	WriteError(w, status, msg)

	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
	}
	if w.Code != status {
		t.Errorf("Code = %d; want %d", w.Code, status)
	}

	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["status"] != "error" {
		t.Errorf("status = %q; want error", got["status"])
	}
	if got["error"] != http.StatusText(status) {
		t.Errorf("error = %q; want %q", got["error"], http.StatusText(status))
	}
	if got["message"] != msg {
		t.Errorf("message = %q; want %q", got["message"], msg)
	}
	if got["timestamp"] != "2024-05-01T03:00:00.250Z" {
		t.Errorf("timestamp = %q", got["timestamp"])
	}
}
