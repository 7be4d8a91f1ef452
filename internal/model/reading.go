// v0
// internal/model/reading.go
package model

import (
	"math"
	"time"
)

// Metric names one of the three quantities every sensor samples.
type Metric string

const (
	Temperature  Metric = "temperature"
	Humidity     Metric = "humidity"
	SoilMoisture Metric = "soil_moisture"
)

// Metrics lists the sampled quantities in the order they are evaluated.
var Metrics = []Metric{Temperature, Humidity, SoilMoisture}

// SensorReading is one simulated sample. Values are passed by copy and never
// modified after the generator returns them.
type SensorReading struct {
	ID           int
	SensorID     int
	Timestamp    time.Time
	Temperature  float64
	Humidity     float64
	SoilMoisture int
	IsAnomaly    bool
}

// Value returns the reading's value for m as a float.
func (r SensorReading) Value(m Metric) float64 {
	switch m {
	case Temperature:
		return r.Temperature
	case Humidity:
		return r.Humidity
	case SoilMoisture:
		return float64(r.SoilMoisture)
	}
	return math.NaN()
}

// Batch holds the readings of one cycle in ascending sensor id order.
type Batch []SensorReading

// Timestamp returns the shared generation time of the batch, or the zero
// time when the batch is empty.
func (b Batch) Timestamp() time.Time {
	if len(b) == 0 {
		return time.Time{}
	}
	return b[0].Timestamp
}

// Round2 rounds v to two decimal digits.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
