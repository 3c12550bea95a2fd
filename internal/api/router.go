package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Tokens validates bearer tokens. Nil disables authentication (development only).
	Tokens      TokenValidator
	CORSOrigins string
	// TrustedProxies may set the requester IP through forwarding headers. Empty trusts nobody.
	TrustedProxies TrustedProxies
	// Readiness, if set, is served unauthenticated at /readyz.
	Readiness http.Handler
}

// NewRouter returns the operator API wrapped in OTel HTTP instrumentation.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(ClientInfo(cfg.TrustedProxies))
	r.Use(LimitBody)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "not found", Code: CodeNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Readiness != nil {
		r.Method(http.MethodGet, "/readyz", cfg.Readiness)
	}

	r.Group(func(r chi.Router) {
		r.Use(Auth(cfg.Tokens))
		r.Post("/api/mfa/actions", h.Enqueue)
		r.Post("/api/mfa/actions/bulk", h.BulkEnqueue)
		r.Get("/api/mfa/status", h.Status)
		r.Get("/api/mfa/results/{id}", h.Result)
		r.Get("/api/mfa/orphans", h.Orphans)
		r.Get("/api/audit", h.AuditLog)
	})

	return otelhttp.NewHandler(r, "mfa-orphans-api", otelhttp.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz" && r.URL.Path != "/readyz"
	}))
}
