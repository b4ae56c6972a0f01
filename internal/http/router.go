package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router on the standard http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers a plain http.Handler (promhttp)
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterPowerRoutes chart history, export and instant value
func (r *Router) RegisterPowerRoutes(p *PowerHandler) {
	r.Handle("/api/v1/power/history", methodGuard(http.MethodGet, p.GetHistory))
	r.Handle("/api/v1/power/history/export", methodGuard(http.MethodGet, p.ExportHistory))
	r.Handle("/api/v1/power/instant", methodGuard(http.MethodGet, p.GetInstant))

	// path the original chart page loads
	r.Handle("/logs/pow_days.json", methodGuard(http.MethodGet, p.GetHistory))
}

func (r *Router) RegisterLiveRoutes(l *LiveHandler) {
	r.Handle("/ws/power", l.ServeWS)
}

// RegisterOpsRoutes health and Prometheus scrape endpoint
func (r *Router) RegisterOpsRoutes(health *HealthHandler, metrics http.Handler) {
	r.Handle("/healthz", methodGuard(http.MethodGet, health.GetHealth))
	if metrics != nil {
		r.HandleHandler("/metrics", metrics)
	}
}
