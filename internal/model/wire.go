// v0
// internal/model/wire.go
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEncode marks a reading that cannot be serialized for transport.
var ErrEncode = errors.New("reading cannot be encoded")

// TimestampLayout is the wire format of reading timestamps (second precision).
const TimestampLayout = time.RFC3339

// WireReading is the JSON document published once per reading.
type WireReading struct {
	ID           int     `json:"id"`
	SensorID     int     `json:"sensor_id"`
	Timestamp    string  `json:"timestamp"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture int     `json:"soil_moisture"`
	IsAnomaly    bool    `json:"is_anomaly"`
}

// ToWire converts r into its wire representation.
func ToWire(r SensorReading) WireReading {
	return WireReading{
		ID:           r.ID,
		SensorID:     r.SensorID,
		Timestamp:    r.Timestamp.UTC().Truncate(time.Second).Format(TimestampLayout),
		Temperature:  Round2(r.Temperature),
		Humidity:     Round2(r.Humidity),
		SoilMoisture: r.SoilMoisture,
		IsAnomaly:    r.IsAnomaly,
	}
}

// FromWire parses a wire document back into a reading.
func FromWire(w WireReading) (SensorReading, error) {
	ts, err := time.Parse(TimestampLayout, w.Timestamp)
	if err != nil {
		return SensorReading{}, fmt.Errorf("timestamp %q: %w", w.Timestamp, err)
	}
	return SensorReading{
		ID:           w.ID,
		SensorID:     w.SensorID,
		Timestamp:    ts.UTC(),
		Temperature:  w.Temperature,
		Humidity:     w.Humidity,
		SoilMoisture: w.SoilMoisture,
		IsAnomaly:    w.IsAnomaly,
	}, nil
}

// EncodeReading serializes r as a single JSON object. Non-finite values are
// rejected by encoding/json and surface as ErrEncode.
func EncodeReading(r SensorReading) ([]byte, error) {
	b, err := json.Marshal(ToWire(r))
	if err != nil {
		return nil, fmt.Errorf("%w: sensor %d: %v", ErrEncode, r.SensorID, err)
	}
	return b, nil
}

// DecodeReading parses one published message.
func DecodeReading(payload []byte) (SensorReading, error) {
	var w WireReading
	if err := json.Unmarshal(payload, &w); err != nil {
		return SensorReading{}, fmt.Errorf("decode reading: %w", err)
	}
	if w.SensorID <= 0 {
		return SensorReading{}, fmt.Errorf("decode reading: sensor_id must be positive, got %d", w.SensorID)
	}
	return FromWire(w)
}
