package control

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"luxctl/internal/config"
	"luxctl/internal/driver"
	"luxctl/internal/history"
	"luxctl/internal/model"
	"luxctl/internal/schedule"
	"luxctl/internal/storage"
	"luxctl/internal/telemetry"
)

// opTimeout bounds the sensor, actuator and repository calls of one tick.
const opTimeout = 10 * time.Second

// Live is the status snapshot served by the API between ticks.
type Live struct {
	LastReading *model.Reading   `json:"last_reading"`
	AvgLux      *float64         `json:"avg_lux"`
	Samples     int              `json:"samples"`
	WindowSize  int              `json:"window_size"`
	FaultStreak int              `json:"fault_streak"`
	Thresholds  model.Thresholds `json:"thresholds"`
	LightOn     bool             `json:"light_on"`
	LastReason  string           `json:"last_reason"`
	FailSafe    bool             `json:"fail_safe"`
}

// Sampler drives the control loop: one tick every sample interval,
// serially, with the next tick scheduled after the current one completes.
type Sampler struct {
	cfg       *config.Manager
	sensor    driver.Sensor
	actuator  driver.Actuator
	store     storage.Store
	history   *history.Store
	telemetry *telemetry.Publisher
	policy    *schedule.Policy
	ctrl      *Controller
	window    *RollingWindow
	logger    *slog.Logger

	tzName string
	tzLoc  *time.Location

	mu   sync.RWMutex
	live Live
}

func NewSampler(
	cfg *config.Manager,
	sensor driver.Sensor,
	actuator driver.Actuator,
	store storage.Store,
	hist *history.Store,
	pub *telemetry.Publisher,
	policy *schedule.Policy,
	ctrl *Controller,
	logger *slog.Logger,
) *Sampler {
	return &Sampler{
		cfg:       cfg,
		sensor:    sensor,
		actuator:  actuator,
		store:     store,
		history:   hist,
		telemetry: pub,
		policy:    policy,
		ctrl:      ctrl,
		window:    NewRollingWindow(cfg.Get().Sampling.AvgSamples),
		logger:    logger,
		tzLoc:     time.UTC,
	}
}

// Run blocks until ctx is cancelled. An in-flight tick always finishes
// before Run returns, so shutdown never tears an actuator command.
func (s *Sampler) Run(ctx context.Context) {
	cfg := s.cfg.Get()
	s.logger.Info("sampler started",
		"sample_seconds", cfg.Sampling.SampleSeconds,
		"avg_samples", cfg.Sampling.AvgSamples,
		"sensor", s.sensor.ID(),
		"actuator", s.actuator.ID(),
	)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sampler stopped")
			return
		case <-timer.C:
		}
		s.Tick(ctx)
		timer.Reset(time.Duration(s.cfg.Get().Sampling.SampleSeconds) * time.Second)
	}
}

// Tick executes one full sample/decide/actuate cycle and returns the
// decision. Exposed for inspection and tests; the loop calls it serially.
func (s *Sampler) Tick(ctx context.Context) model.ControlDecision {
	cfg := s.cfg.Get()
	now := time.Now().UTC()

	// Detach from loop cancellation so a shutdown mid-tick still lets the
	// I/O of this tick complete.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opTimeout)
	defer cancel()

	reading := s.sensor.Read(opCtx)
	if reading.Timestamp.IsZero() {
		reading.Timestamp = now
	}
	if reading.OK {
		s.logger.Debug("sensor read", "lux", reading.Value, "sensor_id", reading.SensorID)
	} else {
		s.logger.Warn("sensor read failed", "err", reading.Error, "sensor_id", reading.SensorID)
	}

	s.window.Resize(cfg.Sampling.AvgSamples)
	s.window.Push(reading)

	var avgPtr *float64
	if avg, ok := s.window.Average(); ok {
		v := avg
		avgPtr = &v
	}
	streak := s.window.FaultStreak()

	thr := s.policy.Resolve(now.In(s.location(cfg.Timezone)), cfg.Control.DefaultMinLux, cfg.Control.DefaultMaxLux)

	params := Params{
		HysteresisLux:     cfg.Control.HysteresisLux,
		MinSwitchInterval: time.Duration(cfg.Control.MinSwitchIntervalSeconds) * time.Second,
		FailSafeLightOn:   cfg.Control.FailSafeLightOn,
		FaultTolerance:    cfg.Control.FaultTolerance,
	}
	decision := s.ctrl.Decide(now, avgPtr, streak, thr, params)

	if decision.LightOn != s.ctrl.CurrentLight() {
		s.applySwitch(opCtx, now, decision)
	}

	s.appendReading(opCtx, reading)

	s.mu.Lock()
	r := reading
	s.live = Live{
		LastReading: &r,
		AvgLux:      decision.AvgLux,
		Samples:     s.window.Len(),
		WindowSize:  s.window.Size(),
		FaultStreak: streak,
		Thresholds:  thr,
		LightOn:     s.ctrl.CurrentLight(),
		LastReason:  decision.Reason,
		FailSafe:    decision.FailSafe,
	}
	s.mu.Unlock()

	return decision
}

func (s *Sampler) applySwitch(ctx context.Context, now time.Time, decision model.ControlDecision) {
	if err := s.actuator.Set(ctx, decision.LightOn); err != nil {
		// State stays as-is; the same transition is re-attempted next tick.
		s.logger.Error("actuator write failed",
			"err", err,
			"desired", decision.LightOn,
			"actuator_id", s.actuator.ID(),
		)
		return
	}
	s.ctrl.ApplySwitch(decision.LightOn, now, decision.FailSafe)
	if decision.FailSafe {
		s.logger.Warn("fail-safe switch applied", "on", decision.LightOn, "reason", decision.Reason)
	} else {
		s.logger.Info("light switched", "on", decision.LightOn, "reason", decision.Reason)
	}

	ev := model.ActionEvent{
		Timestamp:   now,
		ActuatorID:  s.actuator.ID(),
		On:          decision.LightOn,
		Reason:      decision.Reason,
		AvgLux:      decision.AvgLux,
		MinLux:      decision.Thresholds.MinLux,
		MaxLux:      decision.Thresholds.MaxLux,
		WindowLabel: decision.Thresholds.WindowLabel,
	}
	s.history.AddAction(ev)
	if s.store != nil {
		if err := s.store.SaveAction(ctx, ev); err != nil {
			s.logger.Warn("action append failed", "err", err)
		}
	}
	s.telemetry.PublishAction(ctx, ev)
}

func (s *Sampler) appendReading(ctx context.Context, r model.Reading) {
	s.history.AddReading(r)
	if s.store != nil {
		if err := s.store.SaveReading(ctx, r); err != nil {
			s.logger.Warn("reading append failed", "err", err)
		}
	}
	s.telemetry.PublishReading(ctx, r)
}

func (s *Sampler) location(name string) *time.Location {
	if name == s.tzName && s.tzLoc != nil {
		return s.tzLoc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.logger.Warn("invalid timezone, using UTC", "timezone", name, "err", err)
		loc = time.UTC
	}
	s.tzName = name
	s.tzLoc = loc
	return loc
}

// Live returns the snapshot captured at the end of the most recent tick.
func (s *Sampler) Live() Live {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}
