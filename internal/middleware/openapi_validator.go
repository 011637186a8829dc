package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"teamchat/internal/observability"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// Enabled controls whether validation is active
	Enabled bool
	// Spec is the raw OpenAPI document
	Spec []byte
	// SkipPaths are paths outside the documented surface (health, metrics, ws)
	SkipPaths []string
}

// DefaultSkipPaths are served outside the documented REST surface
var DefaultSkipPaths = []string{"/health", "/metrics", "/ws"}

// LoadOpenAPISpec parses and validates an OpenAPI document and builds a router
// for matching requests against it.
func LoadOpenAPISpec(spec []byte) (*openapi3.T, routers.Router, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OpenAPI router: %w", err)
	}
	return doc, router, nil
}

// OpenAPIValidator rejects requests that do not match the documented contract
// with a 400. Authentication is enforced separately by Auth.
func OpenAPIValidator(config OpenAPIValidatorConfig) (func(next http.Handler) http.Handler, error) {
	if !config.Enabled {
		slog.Info("OpenAPI validation disabled")
		return func(next http.Handler) http.Handler { return next }, nil
	}

	_, router, err := LoadOpenAPISpec(config.Spec)
	if err != nil {
		return nil, err
	}

	slog.Info("OpenAPI validation enabled")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || shouldSkipPath(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			logger := observability.FromContext(r.Context())

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				logger.Warn("request path not found in OpenAPI spec",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				writeValidationError(w, http.StatusNotFound, fmt.Sprintf("Path not found: %s %s", r.Method, r.URL.Path))
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
					MultiError:         false,
				},
			}

			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				logger.Warn("request validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeValidationError(w, http.StatusBadRequest, "Request validation failed: "+validationMessage(err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

// validationMessage keeps the client-facing reason short; the full error,
// which may echo the request body, is only logged.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return "invalid request"
	}
	if reqErr.Parameter != nil {
		return fmt.Sprintf("parameter %q %s", reqErr.Parameter.Name, firstLine(reqErr.Reason, reqErr.Err))
	}
	if reqErr.RequestBody != nil {
		return "request body " + firstLine(reqErr.Reason, reqErr.Err)
	}
	return firstLine(reqErr.Reason, reqErr.Err)
}

func firstLine(reason string, err error) string {
	if reason == "" && err != nil {
		reason = err.Error()
	}
	if reason == "" {
		return "is invalid"
	}
	if i := strings.IndexByte(reason, '\n'); i >= 0 {
		reason = reason[:i]
	}
	return reason
}

// shouldSkipPath matches a skip path exactly or as a path prefix
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath || strings.HasPrefix(path, strings.TrimSuffix(skipPath, "/")+"/") {
			return true
		}
	}
	return false
}

func writeValidationError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
