// v0
// internal/generator/generator.go
package generator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"nrgchamp/greenhouse/internal/model"
)

// Noise standard deviations around the baseline.
const (
	TempSigma     = 1.5
	HumiditySigma = 5.0
	SoilSigma     = 30.0
)

// AnomalyKind names one of the injected perturbations.
type AnomalyKind string

const (
	TempHigh    AnomalyKind = "temp_high"
	HumidityLow AnomalyKind = "humidity_low"
	SoilDry     AnomalyKind = "soil_dry"
)

var anomalyKinds = [...]AnomalyKind{TempHigh, HumidityLow, SoilDry}

var (
	ErrNonFiniteBaseline = errors.New("baseline is not finite")
	ErrSensorCount       = errors.New("sensor count must be positive")
	ErrAnomalyRate       = errors.New("anomaly rate must be within [0,1]")
)

// Generator produces synthetic batches. It is not safe for concurrent use;
// the pipeline owns one instance.
type Generator struct {
	rng   *rand.Rand
	clock func() time.Time
}

// New builds a generator around rng. A nil clock defaults to time.Now.
func New(rng *rand.Rand, clock func() time.Time) *Generator {
	if clock == nil {
		clock = time.Now
	}
	return &Generator{rng: rng, clock: clock}
}

// NewSeeded is a convenience for reproducible runs.
func NewSeeded(seed int64, clock func() time.Time) *Generator {
	return New(rand.New(rand.NewSource(seed)), clock)
}

// Generate samples one reading per sensor id 1..sensorCount around b. With
// probability anomalyRate a reading receives one directional perturbation
// and is flagged IsAnomaly.
func (g *Generator) Generate(b model.Baseline, sensorCount int, anomalyRate float64) (model.Batch, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonFiniteBaseline, err)
	}
	if sensorCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrSensorCount, sensorCount)
	}
	if math.IsNaN(anomalyRate) || anomalyRate < 0 || anomalyRate > 1 {
		return nil, fmt.Errorf("%w: %v", ErrAnomalyRate, anomalyRate)
	}

	ts := g.clock().UTC().Truncate(time.Second)
	batch := make(model.Batch, 0, sensorCount)
	for sid := 1; sid <= sensorCount; sid++ {
		t := b.Temp + g.rng.NormFloat64()*TempSigma
		h := b.Humidity + g.rng.NormFloat64()*HumiditySigma
		s := b.Soil + g.rng.NormFloat64()*SoilSigma

		anomalous := false
		if anomalyRate > 0 && g.rng.Float64() < anomalyRate {
			anomalous = true
			switch anomalyKinds[g.rng.Intn(len(anomalyKinds))] {
			case TempHigh:
				t += g.uniform(10, 15)
			case HumidityLow:
				h -= g.uniform(30, 50)
			case SoilDry:
				s -= g.uniform(200, 300)
			}
		}
		if s < 0 {
			s = 0
		}

		batch = append(batch, model.SensorReading{
			ID:           sid,
			SensorID:     sid,
			Timestamp:    ts,
			Temperature:  model.Round2(t),
			Humidity:     model.Round2(h),
			SoilMoisture: int(s),
			IsAnomaly:    anomalous,
		})
	}
	return batch, nil
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
