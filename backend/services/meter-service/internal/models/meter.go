package models

import "encoding/json"

// RawIntervalRow is one line of an SDAT interval-consumption export.
type RawIntervalRow struct {
	Timestamp string
	MeterID   string
	Value     float64
}

// RawRegisterRow is one line of an ESL cumulative-register export.
type RawRegisterRow struct {
	Timestamp string
	Value     float64
}

// MergedRecord pairs the consumption of one interval with the register reading at the same timestamp.
// Timestamp is kept exactly as it appeared in the source.
type MergedRecord struct {
	Timestamp    string  `json:"timestamp"`
	ID           string  `json:"id"`
	Verbrauch    float64 `json:"verbrauch"`
	Zaehlerstand float64 `json:"zaehlerstand"`
}

// MeterResponse is the structured payload produced by the upstream backend, grouped by meter.
type MeterResponse struct {
	Meters []MeterGroup `json:"meters"`
}

// MeterGroup holds the measurements of one sensor.
type MeterGroup struct {
	SensorID     string        `json:"sensorId"`
	Measurements []Measurement `json:"measurements"`
}

// Measurement carries the relative (interval) and absolute (register) value at one timestamp.
// Absolute is nil when the backend could not compute a register reading.
type Measurement struct {
	Timestamp string   `json:"timestamp"`
	Relative  float64  `json:"relative"`
	Absolute  *float64 `json:"absolute"`
}

// UnmarshalJSON accepts both the generic "meters" key and the legacy "allMeterData" key.
func (r *MeterResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Meters       []MeterGroup `json:"meters"`
		AllMeterData []MeterGroup `json:"allMeterData"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Meters = raw.Meters
	if r.Meters == nil {
		r.Meters = raw.AllMeterData
	}
	return nil
}

// UnmarshalJSON accepts both the generic value keys and the legacy relativeValue/absoluteValue keys.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp     string   `json:"timestamp"`
		Relative      *float64 `json:"relative"`
		Absolute      *float64 `json:"absolute"`
		RelativeValue *float64 `json:"relativeValue"`
		AbsoluteValue *float64 `json:"absoluteValue"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Timestamp = raw.Timestamp
	m.Relative = 0
	switch {
	case raw.Relative != nil:
		m.Relative = *raw.Relative
	case raw.RelativeValue != nil:
		m.Relative = *raw.RelativeValue
	}
	m.Absolute = raw.Absolute
	if m.Absolute == nil {
		m.Absolute = raw.AbsoluteValue
	}
	return nil
}
