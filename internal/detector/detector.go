// v0
// internal/detector/detector.go
package detector

import (
	"fmt"
	"math"

	"nrgchamp/greenhouse/internal/model"
)

// Range is an inclusive normal band; values strictly outside raise an alert.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the band.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

var singleRanges = map[model.Metric]Range{
	model.Temperature:  {Min: 15.0, Max: 30.0},
	model.Humidity:     {Min: 30.0, Max: 80.0},
	model.SoilMoisture: {Min: 100.0, Max: 700.0},
}

var averageRanges = map[model.Metric]Range{
	model.Temperature:  {Min: 17.0, Max: 28.0},
	model.Humidity:     {Min: 40.0, Max: 75.0},
	model.SoilMoisture: {Min: 200.0, Max: 600.0},
}

// SingleRange returns the per-reading normal band for m.
func SingleRange(m model.Metric) Range { return singleRanges[m] }

// AverageRange returns the batch-average normal band for m.
func AverageRange(m model.Metric) Range { return averageRanges[m] }

// SingleAlert flags one reading whose value left the single-reading band.
type SingleAlert struct {
	SensorID int          `json:"sensorId"`
	Metric   model.Metric `json:"metric"`
	Value    float64      `json:"value"`
}

// AverageAlert flags a batch mean outside the average band.
type AverageAlert struct {
	Metric model.Metric `json:"metric"`
	Mean   float64      `json:"mean"`
}

// Key returns the alert label used in summaries, e.g. "avg_temperature".
func (a AverageAlert) Key() string { return "avg_" + string(a.Metric) }

// DataQualityWarning records a reading that was left out of the averages
// because one of its values was missing.
type DataQualityWarning struct {
	SensorID int          `json:"sensorId"`
	Metric   model.Metric `json:"metric"`
	Reason   string       `json:"reason"`
}

func (w DataQualityWarning) String() string {
	return fmt.Sprintf("sensor %d %s: %s", w.SensorID, w.Metric, w.Reason)
}

// Result is the outcome of one detection pass.
type Result struct {
	Singles  []SingleAlert        `json:"singles"`
	Averages []AverageAlert       `json:"averages"`
	Warnings []DataQualityWarning `json:"warnings,omitempty"`
}

// Detect evaluates every reading against the single bands and the batch
// means against the average bands. It keeps no state between calls.
func Detect(batch model.Batch) Result {
	var res Result
	var sums [3]float64
	counted := 0

	for _, r := range batch {
		usable := true
		for _, m := range model.Metrics {
			v := r.Value(m)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				usable = false
				res.Warnings = append(res.Warnings, DataQualityWarning{SensorID: r.SensorID, Metric: m, Reason: "missing value"})
				continue
			}
			if !singleRanges[m].Contains(v) {
				res.Singles = append(res.Singles, SingleAlert{SensorID: r.SensorID, Metric: m, Value: v})
			}
		}
		if !usable {
			continue
		}
		for i, m := range model.Metrics {
			sums[i] += r.Value(m)
		}
		counted++
	}

	if counted == 0 {
		return res
	}
	for i, m := range model.Metrics {
		mean := sums[i] / float64(counted)
		if averageRanges[m].Contains(mean) {
			continue
		}
		if m == model.SoilMoisture {
			mean = math.Trunc(mean)
		} else {
			mean = model.Round2(mean)
		}
		res.Averages = append(res.Averages, AverageAlert{Metric: m, Mean: mean})
	}
	return res
}
