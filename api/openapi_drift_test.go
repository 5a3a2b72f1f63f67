package api

import (
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths map[string]map[string]any `yaml:"paths"`
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TestOpenAPIDrift fails when the router and openapi.yaml disagree on the
// set of METHOD PATH pairs.
func TestOpenAPIDrift(t *testing.T) {
	var doc openAPIDoc
	require.NoError(t, yaml.Unmarshal(openapiSpec, &doc))

	documented := make(map[string]bool)
	for path, ops := range doc.Paths {
		for method := range ops {
			if method == "parameters" || strings.HasPrefix(method, "x-") {
				continue
			}
			documented[strings.ToUpper(method)+" "+path] = true
		}
	}

	// Router only registers routes, so a zero API is enough.
	registered := make(map[string]bool)
	err := chi.Walk((&API{}).Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimRight(route, "/")
		if route == "/openapi.yaml" || strings.HasPrefix(route, "/docs") || strings.HasPrefix(route, "/redoc") {
			return nil
		}
		registered[method+" "+route] = true
		return nil
	})
	require.NoError(t, err)

	var undocumented, stale []string
	for _, route := range sortedKeys(registered) {
		if !documented[route] {
			undocumented = append(undocumented, route)
		}
	}
	for _, route := range sortedKeys(documented) {
		if !registered[route] {
			stale = append(stale, route)
		}
	}
	assert.Empty(t, undocumented, "routes missing from openapi.yaml")
	assert.Empty(t, stale, "openapi.yaml paths with no route")
}
