package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamchat/api"
)

func TestOpenAPISpecIsValid(t *testing.T) {
	doc, _, err := LoadOpenAPISpec(api.OpenAPISpec)
	require.NoError(t, err)

	assert.Equal(t, "Teamchat API", doc.Info.Title)
	require.NotEmpty(t, doc.Servers)
	assert.Equal(t, "/api/v1", doc.Servers[0].URL)
}

func TestAllRoutesAreDocumentedInOpenAPI(t *testing.T) {
	doc, _, err := LoadOpenAPISpec(api.OpenAPISpec)
	require.NoError(t, err)

	implementedRoutes := []struct {
		method string
		path   string
	}{
		{"GET", "/channels"},
		{"POST", "/channels"},
		{"GET", "/channels/{id}"},
		{"PUT", "/channels/{id}"},
		{"DELETE", "/channels/{id}"},
		{"GET", "/channels/{id}/messages"},
		{"POST", "/messages"},
		{"PUT", "/messages/{id}"},
		{"DELETE", "/messages/{id}"},
	}

	assert.Len(t, doc.Paths.Map(), 5)

	for _, route := range implementedRoutes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			pathItem := doc.Paths.Find(route.path)
			require.NotNil(t, pathItem, "Path not found in OpenAPI spec: %s", route.path)

			operation := pathItem.GetOperation(route.method)
			require.NotNil(t, operation, "Operation not found in OpenAPI spec: %s %s", route.method, route.path)

			assert.NotEmpty(t, operation.OperationID, "OperationID should be set")
			assert.NotEmpty(t, operation.Tags, "Tags should be set")
		})
	}
}

func TestOpenAPISecuritySchemes(t *testing.T) {
	doc, _, err := LoadOpenAPISpec(api.OpenAPISpec)
	require.NoError(t, err)

	scheme := doc.Components.SecuritySchemes["bearerAuth"]
	require.NotNil(t, scheme)
	assert.Equal(t, "http", scheme.Value.Type)
	assert.Equal(t, "bearer", scheme.Value.Scheme)
	require.NotNil(t, doc.Security)
}

func TestShouldSkipPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/ready", true},
		{"/metrics", true},
		{"/ws", true},
		{"/healthz", false},
		{"/api/v1/channels", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, shouldSkipPath(tt.path, DefaultSkipPaths), tt.path)
	}
}

func TestOpenAPIMiddlewareWithInvalidSpec(t *testing.T) {
	_, err := OpenAPIValidator(OpenAPIValidatorConfig{Enabled: true, Spec: []byte("not: [valid")})
	assert.Error(t, err)
}

func TestOpenAPIMiddlewareDisabled(t *testing.T) {
	mw, err := OpenAPIValidator(OpenAPIValidatorConfig{Enabled: false})
	require.NoError(t, err)

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.True(t, called)
}

func TestOpenAPIMiddleware_ValidatesRequests(t *testing.T) {
	mw, err := OpenAPIValidator(OpenAPIValidatorConfig{Enabled: true, Spec: api.OpenAPISpec, SkipPaths: DefaultSkipPaths})
	require.NoError(t, err)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"valid create message", http.MethodPost, "/api/v1/messages", `{"channel_id":"c1","content":"hi"}`, http.StatusTeapot},
		{"missing content", http.MethodPost, "/api/v1/messages", `{"channel_id":"c1"}`, http.StatusBadRequest},
		{"content too long", http.MethodPost, "/api/v1/messages", `{"channel_id":"c1","content":"` + strings.Repeat("x", 4001) + `"}`, http.StatusBadRequest},
		{"page size over max", http.MethodGet, "/api/v1/channels/c1/messages?page_size=101", "", http.StatusBadRequest},
		{"page zero", http.MethodGet, "/api/v1/channels/c1/messages?page=0", "", http.StatusBadRequest},
		{"valid page", http.MethodGet, "/api/v1/channels/c1/messages?page=2&page_size=10", "", http.StatusTeapot},
		{"unknown path", http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
		{"skipped path", http.MethodGet, "/health/ready", "", http.StatusTeapot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}
