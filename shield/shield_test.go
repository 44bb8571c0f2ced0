package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/actionwatch/idgen"
	"github.com/hazyhaar/actionwatch/kit"
)

func TestAPIStack(t *testing.T) {
	r := chi.NewRouter()
	for _, mw := range APIStack(nil) {
		r.Use(mw)
	}
	var gotID, gotTransport string
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		gotID = kit.GetRequestID(r.Context())
		gotTransport = kit.GetTransport(r.Context())
		io.WriteString(w, "pong")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD status: got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("security headers: %v", rec.Header())
	}
	if !strings.HasPrefix(gotID, "req_") || rec.Header().Get("X-Request-ID") != gotID {
		t.Errorf("request id: ctx %q header %q", gotID, rec.Header().Get("X-Request-ID"))
	}
	if gotTransport != "http" {
		t.Errorf("transport: %q", gotTransport)
	}
}

func TestMaxBody(t *testing.T) {
	var (
		called  bool
		readErr error
	)
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, readErr = io.ReadAll(r.Body)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if rec.Code != http.StatusRequestEntityTooLarge || called {
		t.Errorf("declared length: status %d, handler called %v", rec.Code, called)
	}

	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader("0123456789")))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !called || readErr == nil {
		t.Error("unknown length: expected body limit error")
	}
}

func TestRequestID_Logger(t *testing.T) {
	h := RequestID(idgen.Sequence("r"), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetLogger(r.Context()) == nil {
			t.Error("nil logger")
		}
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") != "r1" {
		t.Errorf("header: %q", rec.Header().Get("X-Request-ID"))
	}
}
