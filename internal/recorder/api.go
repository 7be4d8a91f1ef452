// v0
// internal/recorder/api.go
package recorder

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"nrgchamp/greenhouse/internal/metrics"
)

// Reader renders stored data as JSON.
type Reader interface {
	SensorData(ctx context.Context) ([]byte, error)
	SensorStats(ctx context.Context) ([]byte, error)
}

func NewRouter(rd Reader, m *metrics.Metrics, log *slog.Logger) *mux.Router {
	if log == nil {
		log = slog.Default()
	}
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")
	r.Handle("/sensor-data", m.WrapHandler("/sensor-data", jsonHandler(log, rd.SensorData))).Methods("GET")
	r.Handle("/sensor-stats", m.WrapHandler("/sensor-stats", jsonHandler(log, rd.SensorStats))).Methods("GET")
	r.Handle("/metrics", m.Handler()).Methods("GET")
	return r
}

func jsonHandler(log *slog.Logger, load func(context.Context) ([]byte, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := load(r.Context())
		if err != nil {
			log.Error("query_failed", slog.String("path", r.URL.Path), slog.Any("err", err))
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}
