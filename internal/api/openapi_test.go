package api

import (
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	openapispec "github.com/quipubase/quipubase/api"
)

// openAPIDocument is a minimal representation of the OpenAPI spec for path extraction.
type openAPIDocument struct {
	Paths map[string]map[string]interface{} `yaml:"paths"`
}

// normalizeRoute removes trailing slashes from routes (except root "/").
func normalizeRoute(route string) string {
	if route == "/" {
		return route
	}
	return strings.TrimRight(route, "/")
}

// routeKey creates a comparable key from method and path.
func routeKey(method, path string) string {
	return method + " " + path
}

// getRouterRoutes walks the chi router and returns all registered method+path pairs.
func getRouterRoutes(t *testing.T, router chi.Routes) map[string]bool {
	t.Helper()

	routes := make(map[string]bool)
	err := chi.Walk(router, func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		normalized := normalizeRoute(route)
		routes[routeKey(method, normalized)] = true
		return nil
	})
	if err != nil {
		t.Fatalf("chi.Walk failed: %v", err)
	}
	return routes
}

// getSpecRoutes parses the embedded OpenAPI spec and returns all method+path pairs.
func getSpecRoutes(t *testing.T) map[string]bool {
	t.Helper()

	var doc openAPIDocument
	if err := yaml.Unmarshal(openapispec.OpenAPISpec, &doc); err != nil {
		t.Fatalf("Failed to parse OpenAPI spec: %v", err)
	}

	routes := make(map[string]bool)
	for path, methods := range doc.Paths {
		for method := range methods {
			upper := strings.ToUpper(method)
			// Skip non-HTTP-method keys (e.g. "parameters", "summary")
			switch upper {
			case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
				routes[routeKey(upper, path)] = true
			}
		}
	}
	return routes
}

// routesToSortedSlice converts a route set to a sorted slice for readable output.
func routesToSortedSlice(routes map[string]bool) []string {
	result := make([]string, 0, len(routes))
	for r := range routes {
		result = append(result, r)
	}
	sort.Strings(result)
	return result
}

// TestOpenAPISpecMatchesRoutes validates that every chi route exists in the OpenAPI spec
// and every OpenAPI spec path exists as a chi route. This prevents spec drift in either
// direction.
func TestOpenAPISpecMatchesRoutes(t *testing.T) {
	server := setupTestServer(t)
	router := server.router

	routerRoutes := getRouterRoutes(t, router)
	specRoutes := getSpecRoutes(t)

	t.Run("every router route exists in OpenAPI spec", func(t *testing.T) {
		var missing []string
		for route := range routerRoutes {
			if !specRoutes[route] {
				missing = append(missing, route)
			}
		}
		sort.Strings(missing)
		if len(missing) > 0 {
			t.Errorf("Routes registered in router but missing from OpenAPI spec:\n  %s",
				strings.Join(missing, "\n  "))
		}
	})

	t.Run("every OpenAPI spec route exists in router", func(t *testing.T) {
		var missing []string
		for route := range specRoutes {
			if !routerRoutes[route] {
				missing = append(missing, route)
			}
		}
		sort.Strings(missing)
		if len(missing) > 0 {
			t.Errorf("Routes in OpenAPI spec but not registered in router:\n  %s",
				strings.Join(missing, "\n  "))
		}
	})

	t.Run("route counts match", func(t *testing.T) {
		t.Logf("Router routes: %d, Spec routes: %d", len(routerRoutes), len(specRoutes))
		if len(routerRoutes) != len(specRoutes) {
			t.Logf("Router routes:\n  %s", strings.Join(routesToSortedSlice(routerRoutes), "\n  "))
			t.Logf("Spec routes:\n  %s", strings.Join(routesToSortedSlice(specRoutes), "\n  "))
		}
	})
}

// TestOpenAPISpecIsValidYAML ensures the embedded spec is valid YAML.
func TestOpenAPISpecIsValidYAML(t *testing.T) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(openapispec.OpenAPISpec, &doc); err != nil {
		t.Fatalf("OpenAPI spec is not valid YAML: %v", err)
	}

	if doc["openapi"] == nil {
		t.Error("OpenAPI spec missing 'openapi' version field")
	}
	if doc["info"] == nil {
		t.Error("OpenAPI spec missing 'info' field")
	}
	if doc["paths"] == nil {
		t.Error("OpenAPI spec missing 'paths' field")
	}
}
