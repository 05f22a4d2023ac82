package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(allowed []string, method, origin string) *httptest.ResponseRecorder {
	h := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	r := httptest.NewRequest(method, "/api/health", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestCORS_AllowedOrigin(t *testing.T) {
	w := serveCORS([]string{"http://localhost:3000"}, http.MethodGet, "http://localhost:3000")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("expected request to reach handler, got %d", w.Code)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	w := serveCORS([]string{"http://localhost:3000"}, http.MethodGet, "https://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin %q", got)
	}
}

func TestCORS_WildcardWithoutCredentials(t *testing.T) {
	w := serveCORS([]string{"*"}, http.MethodGet, "https://any.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("credentials must not be set for wildcard, got %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	w := serveCORS([]string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173")
	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d", w.Code)
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://fmaa.vercel.app"}
	if !OriginAllowed(allowed, "") {
		t.Error("empty origin should be allowed")
	}
	if !OriginAllowed(allowed, "https://fmaa.vercel.app") {
		t.Error("listed origin rejected")
	}
	if OriginAllowed(allowed, "http://localhost:3000") {
		t.Error("unlisted origin allowed")
	}
}
