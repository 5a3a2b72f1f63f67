// Package api exposes the vault lifecycle service over HTTP.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/radumarias/rencfs-desktop/vault"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	registry *vault.Registry
	events   *eventLogger

	logger     *slog.Logger
	alertFn    AlertFunc
	webhookURL string
	webhookHdr string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for lifecycle events.
// If not set, a JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithWebhook forwards lifecycle events to url. authHeader, when set, has
// the form "Header: Value".
func WithWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookURL = url
		a.webhookHdr = authHeader
	}
}

// WithAlertFunc replaces the default alert handler, which logs a warning.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates an API serving the handlers in registry.
func New(registry *vault.Registry, opts ...Option) *API {
	a := &API{registry: registry}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.alertFn == nil {
		logger := a.logger
		a.alertFn = func(evt AlertEvent) {
			logger.Warn("alert", "type", evt.Type, "message", evt.Message,
				"count", evt.Count, "threshold", evt.Threshold)
		}
	}
	a.events = newEventLogger(a.logger)
	a.events.metrics = newMetricsCollector(a.alertFn)
	if a.webhookURL != "" {
		a.events.webhook = newEventWebhook(a.webhookURL, a.webhookHdr)
	}
	return a
}

// Close flushes pending webhook deliveries.
func (a *API) Close() {
	if a.events != nil && a.events.webhook != nil {
		a.events.webhook.close()
	}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/hello", a.Hello)

	r.Route("/vaults/{vaultID}", func(r chi.Router) {
		r.Get("/status", a.Status)
		r.Post("/lock", a.Lock)
		r.Post("/unlock", a.Unlock)
		r.Post("/mount-point", a.ChangeMountPoint)
		r.Post("/data-dir", a.ChangeDataDir)
	})

	return r
}
