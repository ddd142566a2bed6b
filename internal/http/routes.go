package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/parlorchat/parlor/internal/observability/metrics"
)

// DefaultMaxBodyBytes caps JSON request bodies.
const DefaultMaxBodyBytes int64 = 64 << 10

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Session SessionService
	// Optional: request metrics and the /metrics endpoint.
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer

	Stream       StreamConfig
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewRouter creates the HTTP handler with middleware applied.
// Order, outermost first: Recover, Logging, Instrument, MaxBytes.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	registerSessionRoutes(mux, services, logger)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Session))
	if services.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(services.Gatherer))
	}

	maxBody := services.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}

	mws := []func(http.Handler) http.Handler{Recover(logger), Logging(logger)}
	if services.HTTPMetrics != nil {
		mws = append(mws, services.HTTPMetrics.Instrument)
	}
	mws = append(mws, MaxBytes(maxBody))
	return Chain(mux, mws...)
}

func registerSessionRoutes(mux *http.ServeMux, services RouterServices, logger *slog.Logger) {
	h := &SessionHandlers{Svc: services.Session}
	mux.HandleFunc("GET /api/session", h.Get)
	mux.HandleFunc("POST /api/session/login", h.Login)
	mux.HandleFunc("POST /api/session/register", h.Register)
	mux.HandleFunc("POST /api/session/logout", h.Logout)
	mux.Handle("GET /api/session/stream", NewStreamHandler(services.Session, services.Stream, logger))
}
