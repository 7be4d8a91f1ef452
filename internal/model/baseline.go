// v0
// internal/model/baseline.go
package model

import (
	"fmt"
	"math"
)

// Baseline is the regulation set-point triple. The generator samples around
// it and the controller nudges it back into the acceptable band.
type Baseline struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	Soil     float64 `json:"soil"`
}

// Get returns the component of the baseline that tracks m.
func (b Baseline) Get(m Metric) float64 {
	switch m {
	case Temperature:
		return b.Temp
	case Humidity:
		return b.Humidity
	case SoilMoisture:
		return b.Soil
	}
	return math.NaN()
}

// With returns a copy of b with the component for m replaced by v.
func (b Baseline) With(m Metric, v float64) Baseline {
	switch m {
	case Temperature:
		b.Temp = v
	case Humidity:
		b.Humidity = v
	case SoilMoisture:
		b.Soil = v
	}
	return b
}

// Validate reports the first non-finite component.
func (b Baseline) Validate() error {
	for _, m := range Metrics {
		v := b.Get(m)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("baseline %s is not finite: %v", m, v)
		}
	}
	return nil
}

// Steps holds the pending manual deltas added to the baseline every cycle
// until the operator resets them.
type Steps struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	Soil     float64 `json:"soil"`
}

// Get returns the step for m.
func (s Steps) Get(m Metric) float64 {
	switch m {
	case Temperature:
		return s.Temp
	case Humidity:
		return s.Humidity
	case SoilMoisture:
		return s.Soil
	}
	return 0
}

// IsZero reports whether no manual step is pending.
func (s Steps) IsZero() bool {
	return s.Temp == 0 && s.Humidity == 0 && s.Soil == 0
}
