// v0
// internal/pipeline/summary.go
package pipeline

import (
	"log/slog"
	"time"

	"nrgchamp/greenhouse/internal/controller"
	"nrgchamp/greenhouse/internal/detector"
	"nrgchamp/greenhouse/internal/model"
	"nrgchamp/greenhouse/internal/override"
)

// Summary reports one cycle. It is emitted even when publishing was cut
// short by a transport fault or an interrupt.
type Summary struct {
	Cycle     uint64        `json:"cycle"`
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"durationNs"`

	Baseline          model.Baseline                  `json:"baseline"`
	Steps             model.Steps                     `json:"steps"`
	Commands          []override.Command              `json:"commands,omitempty"`
	ManualAdjustments []controller.ManualAdjustment   `json:"manualAdjustments,omitempty"`
	Corrections       []controller.Correction         `json:"corrections,omitempty"`
	Interventions     []controller.InterventionSignal `json:"interventions,omitempty"`

	Injected      int                           `json:"injectedAnomalies"`
	SingleAlerts  int                           `json:"singleAlerts"`
	FirstSingles  []detector.SingleAlert        `json:"firstSingles,omitempty"`
	AverageAlerts []detector.AverageAlert       `json:"averageAlerts,omitempty"`
	Warnings      []detector.DataQualityWarning `json:"warnings,omitempty"`

	Published int `json:"published"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Unsent    int `json:"unsent"`

	TransportError string `json:"transportError,omitempty"`
	Interrupted    bool   `json:"interrupted,omitempty"`
	Fault          string `json:"fault,omitempty"`
}

// averageKeys lists the alert labels, e.g. avg_temperature.
func (s Summary) averageKeys() []string {
	out := make([]string, 0, len(s.AverageAlerts))
	for _, a := range s.AverageAlerts {
		out = append(out, a.Key())
	}
	return out
}

func (s Summary) logAttrs() []any {
	attrs := []any{
		slog.Uint64("cycle", s.Cycle),
		slog.String("id", s.ID),
		slog.Time("ts", s.Timestamp),
		slog.Duration("took", s.Duration),
		slog.Float64("base_temp", s.Baseline.Temp),
		slog.Float64("base_hum", s.Baseline.Humidity),
		slog.Float64("base_soil", s.Baseline.Soil),
		slog.Int("injected", s.Injected),
		slog.Int("single_alerts", s.SingleAlerts),
		slog.Any("average_alerts", s.averageKeys()),
		slog.Int("interventions", len(s.Interventions)),
		slog.Int("warnings", len(s.Warnings)),
		slog.Int("published", s.Published),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Int("unsent", s.Unsent),
	}
	if !s.Steps.IsZero() {
		attrs = append(attrs, slog.Any("steps", s.Steps))
	}
	if s.TransportError != "" {
		attrs = append(attrs, slog.String("transport_error", s.TransportError))
	}
	if s.Interrupted {
		attrs = append(attrs, slog.Bool("interrupted", true))
	}
	if s.Fault != "" {
		attrs = append(attrs, slog.String("fault", s.Fault))
	}
	return attrs
}
