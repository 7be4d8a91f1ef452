// v0
// internal/controller/regulator.go
package controller

import (
	"nrgchamp/greenhouse/internal/detector"
	"nrgchamp/greenhouse/internal/model"
)

// ManualAdjustment records one operator step folded into the baseline.
type ManualAdjustment struct {
	Metric   model.Metric `json:"metric"`
	Step     float64      `json:"step"`
	Previous float64      `json:"previous"`
	Next     float64      `json:"next"`
}

// Outcome is the result of one automatic regulation pass.
type Outcome struct {
	Baseline      model.Baseline       `json:"baseline"`
	Corrections   []Correction         `json:"corrections,omitempty"`
	Interventions []InterventionSignal `json:"interventions,omitempty"`
}

// Regulator owns the baseline for the lifetime of a pipeline. It is used
// from a single goroutine and holds no lock.
type Regulator struct {
	baseline model.Baseline
	steps    StepDefaults
	limits   Limits
}

// NewRegulator starts regulation from initial.
func NewRegulator(initial model.Baseline, steps StepDefaults, limits Limits) *Regulator {
	return &Regulator{baseline: initial, steps: steps, limits: limits}
}

// Baseline returns the current set-points.
func (r *Regulator) Baseline() model.Baseline { return r.baseline }

// StepDefaults returns the declared step tunables.
func (r *Regulator) StepDefaults() StepDefaults { return r.steps }

// Limits returns the per-cycle correction caps.
func (r *Regulator) Limits() Limits { return r.limits }

// ApplySteps adds every nonzero step to its baseline component. Manual steps
// bypass the correction caps.
func (r *Regulator) ApplySteps(s model.Steps) []ManualAdjustment {
	var out []ManualAdjustment
	for _, m := range model.Metrics {
		step := s.Get(m)
		if step == 0 {
			continue
		}
		prev := r.baseline.Get(m)
		next := model.Round2(prev + step)
		r.baseline = r.baseline.With(m, next)
		out = append(out, ManualAdjustment{Metric: m, Step: step, Previous: prev, Next: next})
	}
	return out
}

// Regulate applies the bounded correction for alerts and adopts the result
// in one assignment.
func (r *Regulator) Regulate(alerts []detector.AverageAlert) Outcome {
	next, corrections := Plan(r.baseline, alerts, r.limits)
	out := Outcome{Baseline: next, Corrections: corrections}
	for _, c := range corrections {
		if c.Insufficient() {
			out.Interventions = append(out.Interventions, c.Signal())
		}
	}
	r.baseline = next
	return out
}
