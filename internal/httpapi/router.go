// v0
// internal/httpapi/router.go
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"nrgchamp/greenhouse/internal/metrics"
	"nrgchamp/greenhouse/internal/override"
	"nrgchamp/greenhouse/internal/pipeline"
)

// StatusSource exposes the pipeline's observable state.
type StatusSource interface {
	State() pipeline.State
	LastSummary() (pipeline.Summary, bool)
}

// CommandSink accepts operator commands without blocking.
type CommandSink interface {
	TrySubmit(cmd override.Command) error
}

type Deps struct {
	Health   *HealthState
	Status   StatusSource
	Commands CommandSink
	Metrics  *metrics.Metrics
	// BreakerState reports the publisher's breaker, if any.
	BreakerState func() string
	Logger       *slog.Logger
}

type statusResponse struct {
	State   string            `json:"state"`
	Breaker string            `json:"breaker,omitempty"`
	Summary *pipeline.Summary `json:"lastSummary,omitempty"`
}

type api struct {
	d   Deps
	log *slog.Logger
}

func NewRouter(d Deps) *mux.Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Health == nil {
		d.Health = NewHealthState()
	}
	a := &api{d: d, log: d.Logger.With(slog.String("component", "http_api"))}

	r := mux.NewRouter()
	r.Handle("/health", d.Metrics.WrapHandler("/health", http.HandlerFunc(a.live))).Methods("GET")
	r.Handle("/health/live", d.Metrics.WrapHandler("/health/live", http.HandlerFunc(a.live))).Methods("GET")
	r.Handle("/health/ready", d.Metrics.WrapHandler("/health/ready", http.HandlerFunc(a.ready))).Methods("GET")
	r.Handle("/status", d.Metrics.WrapHandler("/status", http.HandlerFunc(a.status))).Methods("GET")
	r.Handle("/overrides/{command}", d.Metrics.WrapHandler("/overrides", http.HandlerFunc(a.postOverride))).Methods("POST")
	r.Handle("/metrics", d.Metrics.Handler()).Methods("GET")
	return r
}

// WithAccessLog wraps h with a combined-format access log written to w.
func WithAccessLog(w io.Writer, h http.Handler) http.Handler {
	return handlers.LoggingHandler(w, handlers.RecoveryHandler()(h))
}

func (a *api) live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (a *api) ready(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !a.d.Health.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("NOT_READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (a *api) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{State: pipeline.Idle.String()}
	if a.d.Status != nil {
		resp.State = a.d.Status.State().String()
		if sum, ok := a.d.Status.LastSummary(); ok {
			resp.Summary = &sum
		}
	}
	if a.d.BreakerState != nil {
		resp.Breaker = a.d.BreakerState()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) postOverride(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["command"]
	cmd, err := override.ParseCommand(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if a.d.Commands == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "overrides disabled"})
		return
	}
	if err := a.d.Commands.TrySubmit(cmd); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, override.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		a.log.Warn("override_rejected", slog.String("command", string(cmd)), slog.Any("err", err))
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	a.log.Info("override_command", slog.String("command", string(cmd)), slog.String("source", "http"))
	writeJSON(w, http.StatusAccepted, map[string]string{"accepted": string(cmd)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
