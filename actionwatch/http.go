package actionwatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/actionwatch/shield"
)

// Handler returns the HTTP API:
//
//	GET  /healthz
//	GET  /v1/resolve?url=...
//	POST /v1/scan      {"html": "...", "url": "...", "platform": "x"}
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.APIStack(s.logger) {
		r.Use(mw)
	}

	resolveEP := s.resolveEndpoint()
	scanEP := s.scanEndpoint()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := s.Init(r.Context()); err != nil {
			status = "degraded"
		}
		writeJSON(w, r, http.StatusOK, map[string]string{"status": status})
	})

	r.Get("/v1/resolve", func(w http.ResponseWriter, r *http.Request) {
		resp, err := resolveEP(r.Context(), &ResolveRequest{URL: r.URL.Query().Get("url")})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, resp)
	})

	r.Post("/v1/scan", func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
		resp, err := scanEP(r.Context(), &req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, resp)
	})

	return r
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, errBadRequest) {
		status = http.StatusBadRequest
	}
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

// writeJSON sends v with status. The header is already out when encoding
// fails, so the error is only logged.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		shield.GetLogger(r.Context()).Debug("http: write response", "path", r.URL.Path, "error", err)
	}
}
