package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Marketen/exitbus-verifier/internal/api/exits"
	"github.com/Marketen/exitbus-verifier/internal/api/gateways"
	"github.com/Marketen/exitbus-verifier/internal/api/headers"
	"github.com/Marketen/exitbus-verifier/internal/api/limits"
	"github.com/Marketen/exitbus-verifier/internal/api/proofs"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/application/services"
	"github.com/Marketen/exitbus-verifier/internal/metrics"
)

type Options struct {
	AllowedOrigins string
	EnableMetrics  bool
}

// Backend bundles the services served by the API. Beacon may be nil, in
// which case /headers is not mounted.
type Backend struct {
	Verifier      proofs.Verifier
	Beacon        ports.BeaconChainAdapter
	ExitBus       *services.ExitBus
	Trigger       *services.TriggerGateway
	Consolidation *services.ConsolidationGateway
}

// New return api router
func New(b Backend, opts Options) http.Handler {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	proofs.New(b.Verifier, b.ExitBus).
		Mount(router, "/proofs")
	if b.Beacon != nil {
		headers.New(b.Beacon).
			Mount(router, "/headers")
	}
	exits.New(b.ExitBus).
		Mount(router, "/exit-requests")
	limits.New(b.ExitBus, b.Trigger, b.Consolidation).
		Mount(router, "/limits")
	gateways.New(b.Trigger, b.Consolidation).
		Mount(router, "")

	if opts.EnableMetrics {
		metrics.Register()
		router.Path("/metrics").
			Methods(http.MethodGet).
			Name("metrics").
			Handler(metrics.Handler())
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut}),
	)(handler)

	return handler
}
