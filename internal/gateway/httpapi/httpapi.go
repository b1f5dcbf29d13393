// Package httpapi implements the local JoyTrunk management gateway.
//
// It serves the owner/employee management API, per-employee configuration,
// chat dispatch, and a proxy to the hosted router. The gateway is a local,
// single-owner service: callers identify themselves with the X-Owner-Id
// header (or Authorization as a fallback); without a header the locally
// registered owner is assumed, created on first use.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/joytrunk/joytrunk/internal/config"
	"github.com/joytrunk/joytrunk/internal/dispatch"
	"github.com/joytrunk/joytrunk/internal/employee"
	"github.com/joytrunk/joytrunk/internal/observability"
	"github.com/joytrunk/joytrunk/internal/ratelimit"
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP gateway.
type Config struct {
	ListenAddr string // e.g., "localhost:32890"
	EnableDocs bool

	// RouterURL overrides the hosted router endpoint. Empty = use
	// JOYTRUNK_ROUTER_URL, then providers.joytrunk.apiBase.
	RouterURL string

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP management gateway.
type Gateway struct {
	config      Config
	configStore *config.Store
	employees   *employee.Store
	dispatcher  *dispatch.Dispatcher
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
	httpClient  *http.Client
	server      *http.Server
	okapi       *okapi.Okapi
	group       *okapi.Group
}

// NewGateway creates the HTTP management gateway.
func NewGateway(cfg Config, cs *config.Store, es *employee.Store, d *dispatch.Dispatcher, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	return &Gateway{
		config:      cfg,
		configStore: cs,
		employees:   es,
		dispatcher:  d,
		limiter:     rl,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		okapi:       okapi.New(),
	}
}

// WithHTTPClient replaces the client used for router proxying.
func (g *Gateway) WithHTTPClient(hc *http.Client) *Gateway {
	g.httpClient = hc
	return g
}

// WithOpenAPIDocs enables the generated OpenAPI documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "JoyTrunk",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	g.group = g.okapi.Group("/api")

	g.group.Get("/health", g.handleHealth,
		okapi.DocSummary("Gateway health check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	// Auth: registering creates the single local owner; logging in returns it.
	g.group.Post("/auth/register", g.handleRegister,
		okapi.DocSummary("Register the local owner"),
		okapi.DocTags("Auth"),
		okapi.DocRequestBody(RegisterRequest{}),
		okapi.DocResponse(http.StatusCreated, AuthResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Post("/auth/login", g.handleLogin,
		okapi.DocSummary("Return the registered owner"),
		okapi.DocTags("Auth"),
		okapi.DocResponse(AuthResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/owners/me", g.handleOwnersMe,
		okapi.DocSummary("Current owner"),
		okapi.DocTags("Owners"),
		okapi.DocResponse(employee.Owner{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Employee management, scoped to the current owner.
	g.group.Get("/employees", g.handleEmployeeList,
		okapi.DocSummary("List the owner's employees"),
		okapi.DocTags("Employees"),
		okapi.DocResponse([]employee.Employee{}),
	)
	g.group.Post("/employees", g.handleEmployeeCreate,
		okapi.DocSummary("Create an employee"),
		okapi.DocTags("Employees"),
		okapi.DocRequestBody(employee.CreateRequest{}),
		okapi.DocResponse(http.StatusCreated, employee.Employee{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/employees/{id}", g.handleEmployeeGet,
		okapi.DocSummary("Get an employee"),
		okapi.DocTags("Employees"),
		okapi.DocPathParam("id", "string", "Employee ID"),
		okapi.DocResponse(employee.Employee{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Patch("/employees/{id}", g.handleEmployeeUpdate,
		okapi.DocSummary("Update an employee"),
		okapi.DocTags("Employees"),
		okapi.DocPathParam("id", "string", "Employee ID"),
		okapi.DocRequestBody(employee.UpdateRequest{}),
		okapi.DocResponse(employee.Employee{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Per-employee configuration overrides.
	g.group.Get("/employees/{id}/config", g.handleEmployeeConfigGet,
		okapi.DocSummary("Get the employee's configuration override"),
		okapi.DocTags("Employees"),
		okapi.DocPathParam("id", "string", "Employee ID"),
		okapi.DocResponse(map[string]any{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Patch("/employees/{id}/config", g.handleEmployeeConfigPatch,
		okapi.DocSummary("Replace the employee's configuration override"),
		okapi.DocTags("Employees"),
		okapi.DocPathParam("id", "string", "Employee ID"),
		okapi.DocRequestBody(map[string]any{}),
		okapi.DocResponse(map[string]any{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Chat.
	g.group.Post("/employees/{id}/chat", g.handleChat,
		okapi.DocSummary("Send a message to an employee"),
		okapi.DocTags("Chat"),
		okapi.DocPathParam("id", "string", "Employee ID"),
		okapi.DocRequestBody(ChatRequest{}),
		okapi.DocResponse(ChatResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)

	// Hosted router proxy.
	g.group.Post("/llm/chat/completions", g.handleRouterProxy,
		okapi.DocSummary("Proxy a completion request to the JoyTrunk router"),
		okapi.DocTags("LLM"),
		okapi.DocResponse(map[string]any{}),
		okapi.DocResponse(http.StatusServiceUnavailable, ErrorBody{}),
		okapi.DocResponse(http.StatusBadGateway, ErrorBody{}),
	)

	// Team and global configuration.
	g.group.Get("/teams/current", g.handleTeamCurrent,
		okapi.DocSummary("Current owner and all their employees"),
		okapi.DocTags("Teams"),
		okapi.DocResponse(TeamResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Get("/config", g.handleConfigGet,
		okapi.DocSummary("Global configuration (credentials redacted)"),
		okapi.DocTags("Config"),
		okapi.DocResponse(map[string]any{}),
	)
	g.group.Patch("/config/custom-llm", g.handleCustomLLMPatch,
		okapi.DocSummary("Update the owner's custom LLM credentials"),
		okapi.DocTags("Config"),
		okapi.DocRequestBody(config.CustomLLMPayload{}),
		okapi.DocResponse(map[string]any{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Delete("/config/custom-llm", g.handleCustomLLMDelete,
		okapi.DocSummary("Clear the owner's custom LLM credentials"),
		okapi.DocTags("Config"),
		okapi.DocResponse(map[string]any{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Get("/usage", g.handleUsage,
		okapi.DocSummary("Token usage per source"),
		okapi.DocTags("Usage"),
		okapi.DocResponse(UsageResponse{}),
	)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("joytrunk gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("joytrunk gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// ownerID resolves the caller's owner identity: X-Owner-Id header, then
// Authorization, then the registered local owner, which is auto-created on
// first use so a fresh install works without any login step.
func (g *Gateway) ownerID(c *okapi.Context) string {
	r := c.Request()
	if id := r.Header.Get("X-Owner-Id"); id != "" {
		return id
	}
	if id := r.Header.Get("Authorization"); id != "" {
		return id
	}
	cfg := g.configStore.Load()
	if cfg.OwnerID != nil && *cfg.OwnerID != "" {
		return *cfg.OwnerID
	}
	id := uuid.NewString()
	if _, err := g.configStore.SetOwner(id); err != nil {
		g.logger.Error("auto-creating owner failed", slog.String("error", err.Error()))
	}
	return id
}

// currentOwner returns the owner record for id, or nil when id is not the
// registered owner.
func (g *Gateway) currentOwner(id string) *employee.Owner {
	cfg := g.configStore.Load()
	if !cfg.OwnedBy(id) {
		return nil
	}
	return &employee.Owner{ID: id, Name: "本地负责人"}
}
