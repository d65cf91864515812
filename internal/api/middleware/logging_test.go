package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestLoggerProfileKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/state?key=group:devops", nil)
	rec := httptest.NewRecorder()
	RequestLogger(logger)(next).ServeHTTP(rec, req)

	var entry struct {
		Level      string `json:"level"`
		Path       string `json:"path"`
		Status     int    `json:"status"`
		ProfileKey string `json:"profile_key"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("разбор записи лога: %v", err)
	}
	if entry.Level != "INFO" || entry.Status != http.StatusNoContent {
		t.Errorf("entry = %+v", entry)
	}
	if entry.ProfileKey != "group:devops" {
		t.Errorf("profile_key = %q, хотели group:devops", entry.ProfileKey)
	}
}

func TestRequestLoggerErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	RequestLogger(logger)(next).ServeHTTP(rec, req)

	var entry struct {
		Level      string `json:"level"`
		ProfileKey string `json:"profile_key"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("разбор записи лога: %v", err)
	}
	if entry.Level != "ERROR" {
		t.Errorf("level = %q, хотели ERROR", entry.Level)
	}
	// Без query-параметра ключ в лог не попадает
	if entry.ProfileKey != "" {
		t.Errorf("profile_key = %q, хотели пустой", entry.ProfileKey)
	}
}
