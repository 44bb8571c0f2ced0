package actionwatch

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/actionwatch/shield"
)

func TestWriteJSON_EncodeErrorIsLogged(t *testing.T) {
	// WHAT: A value that cannot be encoded keeps the status and leaves a debug line.
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	req := httptest.NewRequest(http.MethodGet, "/v1/resolve", nil)
	req = req.WithContext(context.WithValue(req.Context(), shield.LoggerKey, logger))
	rec := httptest.NewRecorder()

	writeJSON(rec, req, http.StatusOK, map[string]any{"c": make(chan int)})

	if rec.Code != http.StatusOK {
		t.Errorf("status: %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "http: write response") || !strings.Contains(buf.String(), "/v1/resolve") {
		t.Errorf("log: %q", buf.String())
	}
}
