// v0
// internal/controller/regulator_test.go
package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrgchamp/greenhouse/internal/detector"
	"nrgchamp/greenhouse/internal/model"
)

func TestRegulatorApplyStepsIsUnbounded(t *testing.T) {
	r := NewRegulator(base, DefaultStepDefaults, DefaultLimits)
	adj := r.ApplySteps(model.Steps{Temp: 10.3, Soil: -250})

	require.Len(t, adj, 2)
	assert.Equal(t, model.Temperature, adj[0].Metric)
	assert.Equal(t, 35.3, adj[0].Next)
	assert.Equal(t, model.SoilMoisture, adj[1].Metric)
	assert.Equal(t, 250.0, adj[1].Next)
	assert.Equal(t, model.Baseline{Temp: 35.3, Humidity: 60, Soil: 250}, r.Baseline())
}

func TestRegulatorApplyStepsRepeatsEveryCall(t *testing.T) {
	r := NewRegulator(base, DefaultStepDefaults, DefaultLimits)
	steps := model.Steps{Humidity: 0.2}
	for i := 0; i < 3; i++ {
		r.ApplySteps(steps)
	}
	assert.Equal(t, 60.6, r.Baseline().Humidity)
}

func TestRegulatorApplyZeroStepsDoesNothing(t *testing.T) {
	r := NewRegulator(base, DefaultStepDefaults, DefaultLimits)
	assert.Empty(t, r.ApplySteps(model.Steps{}))
	assert.Equal(t, base, r.Baseline())
}

func TestRegulatorRegulateAdoptsBaseline(t *testing.T) {
	r := NewRegulator(base, DefaultStepDefaults, DefaultLimits)
	out := r.Regulate([]detector.AverageAlert{
		{Metric: model.Temperature, Mean: 32.0},
		{Metric: model.Humidity, Mean: 77.0},
	})

	assert.InDelta(t, 22.0, r.Baseline().Temp, 1e-9)
	assert.InDelta(t, 58.0, r.Baseline().Humidity, 1e-9)
	assert.Equal(t, r.Baseline(), out.Baseline)
	assert.Len(t, out.Corrections, 2)
	require.Len(t, out.Interventions, 1)
	assert.Equal(t, model.Temperature, out.Interventions[0].Metric)

	before := r.Baseline()
	out = r.Regulate(nil)
	assert.Equal(t, before, r.Baseline())
	assert.Empty(t, out.Corrections)
}
