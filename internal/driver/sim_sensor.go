package driver

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"luxctl/internal/config"
	"luxctl/internal/model"
)

type PatternType string

const (
	PatternManual PatternType = "manual"
	PatternSine   PatternType = "sine"
	PatternStep   PatternType = "step"
	PatternRamp   PatternType = "ramp"
	PatternRandom PatternType = "random"
)

// Pattern describes the synthetic lux curve emitted by the sim sensor.
type Pattern struct {
	Type              PatternType `json:"type"`
	Baseline          float64     `json:"baseline"`
	Amplitude         float64     `json:"amplitude"`
	PeriodSeconds     float64     `json:"period_seconds"`
	Noise             float64     `json:"noise"`
	StepLow           float64     `json:"step_low"`
	StepHigh          float64     `json:"step_high"`
	StepPeriodSeconds float64     `json:"step_period_seconds"`
	RampMin           float64     `json:"ramp_min"`
	RampMax           float64     `json:"ramp_max"`
	RampPeriodSeconds float64     `json:"ramp_period_seconds"`
}

func defaultPattern(initial float64) Pattern {
	return Pattern{
		Type:              PatternManual,
		Baseline:          initial,
		Amplitude:         1500,
		PeriodSeconds:     600,
		Noise:             50,
		StepLow:           2500,
		StepHigh:          6500,
		StepPeriodSeconds: 120,
		RampMin:           2000,
		RampMax:           7000,
		RampPeriodSeconds: 600,
	}
}

// SimSensor generates lux readings without hardware. The manual value,
// pattern and failure rate are mutable at runtime through the API.
type SimSensor struct {
	mu          sync.Mutex
	manual      float64
	pattern     Pattern
	failureRate float64
	started     time.Time
}

func NewSimSensor(cfg config.SimConfig) *SimSensor {
	initial := cfg.InitialLux
	if initial <= 0 {
		initial = 3500
	}
	return &SimSensor{
		manual:      initial,
		pattern:     defaultPattern(initial),
		failureRate: cfg.FailureRate,
		started:     time.Now().UTC(),
	}
}

func (s *SimSensor) ID() string { return "lux_sim_01" }

func (s *SimSensor) Read(ctx context.Context) model.Reading {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failureRate > 0 && rand.Float64() < s.failureRate {
		return model.Reading{
			Timestamp: now,
			SensorID:  s.ID(),
			Unit:      "lux",
			OK:        false,
			Error:     "simulated read failure",
		}
	}

	t := now.Sub(s.started).Seconds()
	value := s.patternValue(t) + randRange(-s.pattern.Noise, s.pattern.Noise)
	if value < 0 {
		value = 0
	}
	return model.Reading{
		Timestamp: now,
		SensorID:  s.ID(),
		Value:     value,
		Unit:      "lux",
		OK:        true,
	}
}

func (s *SimSensor) patternValue(t float64) float64 {
	p := s.pattern
	switch p.Type {
	case PatternSine:
		return p.Baseline + p.Amplitude*math.Sin(2*math.Pi*t/nonZero(p.PeriodSeconds))
	case PatternStep:
		phase := math.Mod(t, nonZero(p.StepPeriodSeconds)) / nonZero(p.StepPeriodSeconds)
		if phase >= 0.5 {
			return p.StepHigh
		}
		return p.StepLow
	case PatternRamp:
		phase := math.Mod(t, nonZero(p.RampPeriodSeconds)) / nonZero(p.RampPeriodSeconds)
		return p.RampMin + (p.RampMax-p.RampMin)*phase
	case PatternRandom:
		return p.Baseline + randRange(-p.Amplitude, p.Amplitude)
	default:
		return s.manual
	}
}

func (s *SimSensor) SetManual(lux float64) {
	s.mu.Lock()
	s.pattern.Type = PatternManual
	s.manual = lux
	s.mu.Unlock()
}

func (s *SimSensor) SetPattern(p Pattern) {
	s.mu.Lock()
	if p.Noise == 0 {
		p.Noise = s.pattern.Noise
	}
	s.pattern = p
	s.mu.Unlock()
}

func (s *SimSensor) SetFailureRate(rate float64) {
	s.mu.Lock()
	s.failureRate = rate
	s.mu.Unlock()
}

func (s *SimSensor) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"manual_lux":   s.manual,
		"pattern":      s.pattern,
		"failure_rate": s.failureRate,
	}
}

func (s *SimSensor) Close() error { return nil }

func nonZero(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

func randRange(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Float64()*(hi-lo)
}
