package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"teamchat/internal/testutil"
)

func TestCORS_AllowedOrigin(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		shouldAllow    bool
	}{
		{
			name:           "allowed origin",
			allowedOrigins: []string{"http://localhost:3000", "http://example.com"},
			requestOrigin:  "http://localhost:3000",
			shouldAllow:    true,
		},
		{
			name:           "allowed second origin",
			allowedOrigins: []string{"http://localhost:3000", "http://example.com"},
			requestOrigin:  "http://example.com",
			shouldAllow:    true,
		},
		{
			name:           "wildcard",
			allowedOrigins: []string{"*"},
			requestOrigin:  "https://any.site",
			shouldAllow:    true,
		},
		{
			name:           "disallowed origin",
			allowedOrigins: []string{"http://localhost:3000"},
			requestOrigin:  "http://malicious.com",
			shouldAllow:    false,
		},
		{
			name:           "no origin header",
			allowedOrigins: []string{"*"},
			requestOrigin:  "",
			shouldAllow:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORS(tt.allowedOrigins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			testutil.AssertStatusCode(t, w, http.StatusOK)
			if tt.shouldAllow {
				testutil.AssertHeader(t, w, "Access-Control-Allow-Origin", tt.requestOrigin)
				testutil.AssertHeader(t, w, "Access-Control-Allow-Credentials", "true")
			} else {
				testutil.AssertHeader(t, w, "Access-Control-Allow-Origin", "")
			}
		})
	}
}

func TestCORS_PreflightRequest(t *testing.T) {
	nextHandlerCalled := false
	handler := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextHandlerCalled = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/messages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertFalse(t, nextHandlerCalled, "preflight should not reach the next handler")
	testutil.AssertContains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
	testutil.AssertContains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:3000"}

	testutil.AssertTrue(t, OriginAllowed("http://localhost:3000", allowed), "exact match")
	testutil.AssertTrue(t, OriginAllowed("HTTP://LOCALHOST:3000", allowed), "case-insensitive match")
	testutil.AssertFalse(t, OriginAllowed("http://localhost:3001", allowed), "different port")
	testutil.AssertFalse(t, OriginAllowed("http://localhost:3000", nil), "empty allow list")
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"http://a.test", []string{"http://a.test"}},
		{"http://a.test, http://b.test ,", []string{"http://a.test", "http://b.test"}},
		{"*", []string{"*"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := ParseOrigins(tt.input)
		testutil.AssertEqual(t, len(got), len(tt.want))
		for i := range tt.want {
			testutil.AssertEqual(t, got[i], tt.want[i])
		}
	}
}
