// v0
// internal/controller/controller.go
package controller

import (
	"math"

	"nrgchamp/greenhouse/internal/detector"
	"nrgchamp/greenhouse/internal/model"
)

// Limits caps the automatic correction applied to each baseline per cycle.
type Limits struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	Soil     float64 `json:"soil"`
}

// Get returns the cap for m.
func (l Limits) Get(m model.Metric) float64 {
	switch m {
	case model.Temperature:
		return l.Temp
	case model.Humidity:
		return l.Humidity
	case model.SoilMoisture:
		return l.Soil
	}
	return 0
}

// StepDefaults are the declared per-metric step tunables. Corrections are
// sized by the distance to the band, not by these values.
type StepDefaults struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	Soil     float64 `json:"soil"`
}

var (
	DefaultLimits       = Limits{Temp: 3.0, Humidity: 5.0, Soil: 20}
	DefaultStepDefaults = StepDefaults{Temp: 0.1, Humidity: 0.2, Soil: 2.0}
)

// InterventionSignal is raised when the correction a metric needs exceeds
// its per-cycle cap. The partial correction is still applied.
type InterventionSignal struct {
	Metric    model.Metric `json:"metric"`
	Required  float64      `json:"required"`
	Applied   float64      `json:"applied"`
	Remainder float64      `json:"remainder"`
}

// Correction describes the automatic adjustment of one baseline component.
type Correction struct {
	Metric    model.Metric `json:"metric"`
	Mean      float64      `json:"mean"`
	Bound     float64      `json:"bound"`
	Previous  float64      `json:"previous"`
	Next      float64      `json:"next"`
	Required  float64      `json:"required"`
	Applied   float64      `json:"applied"`
	Remainder float64      `json:"remainder"`
}

// Insufficient reports whether the cap left part of the correction undone.
func (c Correction) Insufficient() bool { return c.Remainder > 0 }

// Signal converts c into its advisory form.
func (c Correction) Signal() InterventionSignal {
	return InterventionSignal{Metric: c.Metric, Required: c.Required, Applied: c.Applied, Remainder: c.Remainder}
}

// Plan computes the correction for every average alert. Metrics are handled
// independently; a later alert for the same metric sees the baseline left by
// the earlier one. Alerts whose mean lies inside the band yield nothing.
func Plan(b model.Baseline, alerts []detector.AverageAlert, max Limits) (model.Baseline, []Correction) {
	var out []Correction
	for _, a := range alerts {
		band := detector.AverageRange(a.Metric)
		var required, bound, sign float64
		switch {
		case a.Mean > band.Max:
			bound, required, sign = band.Max, a.Mean-band.Max, -1
		case a.Mean < band.Min:
			bound, required, sign = band.Min, band.Min-a.Mean, 1
		default:
			continue
		}
		applied := math.Min(required, max.Get(a.Metric))
		prev := b.Get(a.Metric)
		next := prev + sign*applied
		b = b.With(a.Metric, next)
		out = append(out, Correction{
			Metric:    a.Metric,
			Mean:      a.Mean,
			Bound:     bound,
			Previous:  prev,
			Next:      next,
			Required:  required,
			Applied:   applied,
			Remainder: required - applied,
		})
	}
	return b, out
}

// Compensate returns the corrected baseline and an intervention signal for
// every metric whose required correction exceeded its cap. The step defaults
// are accepted for a step-limited mode and do not affect the result.
func Compensate(b model.Baseline, alerts []detector.AverageAlert, _ StepDefaults, max Limits) (model.Baseline, []InterventionSignal) {
	next, corrections := Plan(b, alerts, max)
	var signals []InterventionSignal
	for _, c := range corrections {
		if c.Insufficient() {
			signals = append(signals, c.Signal())
		}
	}
	return next, signals
}
