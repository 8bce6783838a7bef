// v2
// internal/api/router.go
package api

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// HTTPObserver records per-route request metrics.
type HTTPObserver interface {
	ObserveHTTP(route string, status int, dur time.Duration)
}

// NewRouter registers the read-only surface plus the correction endpoint.
func NewRouter(h *Handlers, metricsHandler http.Handler, obs HTTPObserver) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/day", h.Day).Methods("GET")
	r.HandleFunc("/shift", h.Shift).Methods("GET")
	r.HandleFunc("/month", h.Month).Methods("GET")
	r.HandleFunc("/buckets", h.Buckets).Methods("GET")
	r.HandleFunc("/anomalies", h.Anomalies).Methods("GET")
	r.HandleFunc("/forecast", h.Forecast).Methods("GET")
	r.HandleFunc("/corrections", h.Corrections).Methods("POST")
	r.HandleFunc("/techmetrics/evaluate", h.TechMetrics).Methods("POST")
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}

	var out http.Handler = r
	if obs != nil {
		out = observe(obs, out)
	}
	out = handlers.CORS(
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(out)
	return handlers.LoggingHandler(os.Stdout, out)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func observe(obs HTTPObserver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		obs.ObserveHTTP(r.URL.Path, sr.status, time.Since(start))
	})
}
