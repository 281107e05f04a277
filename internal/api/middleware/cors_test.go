package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRequest(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_AllowAllOrigins(t *testing.T) {
	w := corsRequest(CORSConfig{AllowAllOrigins: true}, http.MethodGet, "http://example.com")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	// Wildcard responses must not allow credentials
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "false" {
		t.Errorf("Allow-Credentials = %q, want false", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCORS_AllowedList(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"http://app.local"}}

	w := corsRequest(cfg, http.MethodGet, "http://app.local")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"http://app.local"}}

	w := corsRequest(cfg, http.MethodGet, "http://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want no CORS headers", got)
	}
	// The request itself is still served
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	w := corsRequest(CORSConfig{AllowAllOrigins: true}, http.MethodOptions, "http://example.com")

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("preflight should carry Allow-Methods")
	}
}

func TestAllowOrigin(t *testing.T) {
	tests := []struct {
		name   string
		cfg    CORSConfig
		origin string
		want   string
	}{
		{"allow all", CORSConfig{AllowAllOrigins: true}, "http://a", "*"},
		{"empty list echoes origin", CORSConfig{}, "http://a", "http://a"},
		{"listed origin", CORSConfig{AllowedOrigins: []string{"http://a"}}, "http://a", "http://a"},
		{"case insensitive", CORSConfig{AllowedOrigins: []string{"http://App.Local"}}, "http://app.local", "http://app.local"},
		{"wildcard entry", CORSConfig{AllowedOrigins: []string{"*"}}, "http://b", "http://b"},
		{"unlisted origin", CORSConfig{AllowedOrigins: []string{"http://a"}}, "http://b", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.allowOrigin(tt.origin); got != tt.want {
				t.Errorf("allowOrigin(%q) = %q, want %q", tt.origin, got, tt.want)
			}
		})
	}
}
