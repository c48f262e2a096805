package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/spxlab/internal/api/handlers"
	"github.com/wonny/spxlab/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter
type Handlers struct {
	Universe     *handlers.UniverseHandler
	Completeness *handlers.CompletenessHandler
	Tickers      *handlers.TickerHandler
}

// NewRouter creates and configures the HTTP router.
// A nil registry disables /metrics and request instrumentation.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, reg *prometheus.Registry, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Universe endpoints
	if h.Universe != nil {
		api.HandleFunc("/universe/members", h.Universe.GetMembers).Methods("GET")
		api.HandleFunc("/universe/historical", h.Universe.GetHistorical).Methods("GET")
		api.HandleFunc("/universe/intervals/{ticker}", h.Universe.GetIntervals).Methods("GET")
		api.HandleFunc("/universe/manifest", h.Universe.GetManifest).Methods("GET")
	}

	// Completeness endpoints
	if h.Completeness != nil {
		api.HandleFunc("/completeness/{ticker}", h.Completeness.GetCompleteness).Methods("GET")
	}

	// Ticker identity endpoints
	if h.Tickers != nil {
		api.HandleFunc("/tickers/transitions", h.Tickers.ListTransitions).Methods("GET")
		api.HandleFunc("/tickers/{symbol}/resolve", h.Tickers.Resolve).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	if reg != nil {
		r.Use(metricsMiddleware(reg))
	}

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "spxlab-api",
	})
}

// statusRecorder captures the response code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware counts requests by route template and status
func metricsMiddleware(reg prometheus.Registerer) mux.MiddlewareFunc {
	f := promauto.With(reg)
	requests := f.NewCounterVec(prometheus.CounterOpts{
		Name: "spxlab_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
	latency := f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spxlab_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
