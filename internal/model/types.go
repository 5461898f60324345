package model

import "time"

// Reading is a single sensor sample. A failed read is still a Reading,
// with OK set to false and Error carrying the driver's message.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}

// Thresholds are the lux bounds in force for a tick. WindowID is empty
// when the policy defaults apply.
type Thresholds struct {
	MinLux      float64 `json:"min_lux"`
	MaxLux      float64 `json:"max_lux"`
	WindowID    string  `json:"window_id,omitempty"`
	WindowLabel string  `json:"window_label"`
}

// ControlDecision is the verdict for one tick. LightOn is the desired
// actuator state; the sampler compares it with the current state and only
// acts on a difference.
type ControlDecision struct {
	LightOn    bool       `json:"light_on"`
	Reason     string     `json:"reason"`
	FailSafe   bool       `json:"fail_safe"`
	AvgLux     *float64   `json:"avg_lux"`
	Thresholds Thresholds `json:"thresholds"`
}

// ActionEvent is an append-only audit record, written only when the light
// state actually changes.
type ActionEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	ActuatorID  string    `json:"actuator_id"`
	On          bool      `json:"on"`
	Reason      string    `json:"reason"`
	AvgLux      *float64  `json:"avg_lux"`
	MinLux      float64   `json:"min_lux"`
	MaxLux      float64   `json:"max_lux"`
	WindowLabel string    `json:"window_label"`
}
