package control

import (
	"fmt"
	"sync"
	"time"

	"luxctl/internal/model"
)

const (
	ReasonDisabled    = "controller disabled"
	ReasonOverride    = "manual override"
	ReasonFailSafe    = "sensor fault fail-safe"
	ReasonWithinBand  = "within band"
	ReasonMinInterval = "min switch interval not met"
)

// Params are the decision knobs, taken from the current config snapshot
// each tick so they hot-reload without restarting the loop.
type Params struct {
	HysteresisLux     float64
	MinSwitchInterval time.Duration
	FailSafeLightOn   bool
	FaultTolerance    int
}

// Override is a time-bounded manual forcing of the light state.
type Override struct {
	On    bool      `json:"on"`
	Until time.Time `json:"until"`
}

// State is a copy of the controller's fields for status reporting.
type State struct {
	Enabled         bool
	LightOn         bool
	LastSwitch      time.Time
	Override        *Override
	FailSafeEngaged bool
}

// Controller is the decision state machine. It is shared between the
// sampler tick and the API mutators; every access serializes through one
// mutex so a mid-tick enable/override is never seen half-applied.
type Controller struct {
	mu              sync.Mutex
	enabled         bool
	lightOn         bool
	lastSwitch      time.Time
	override        *Override
	failSafeEngaged bool
}

// NewController starts enabled, with the light state reconciled from the
// actuator at startup.
func NewController(lightOn bool) *Controller {
	return &Controller{enabled: true, lightOn: lightOn}
}

func (c *Controller) Enable() {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
}

func (c *Controller) Disable() {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
}

func (c *Controller) SetOverride(on bool, duration time.Duration, now time.Time) Override {
	ov := Override{On: on, Until: now.Add(duration)}
	c.mu.Lock()
	c.override = &ov
	c.mu.Unlock()
	return ov
}

func (c *Controller) CancelOverride() {
	c.mu.Lock()
	c.override = nil
	c.mu.Unlock()
}

func (c *Controller) CurrentLight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lightOn
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Enabled:         c.enabled,
		LightOn:         c.lightOn,
		LastSwitch:      c.lastSwitch,
		FailSafeEngaged: c.failSafeEngaged,
	}
	if c.override != nil {
		ov := *c.override
		st.Override = &ov
	}
	return st
}

// ApplySwitch records a confirmed actuator transition. The sampler calls it
// only after the actuator acknowledged the write, so a failed write leaves
// the state unchanged and the transition is re-attempted next tick.
func (c *Controller) ApplySwitch(on bool, now time.Time, failSafe bool) {
	c.mu.Lock()
	c.lightOn = on
	c.lastSwitch = now
	if failSafe {
		c.failSafeEngaged = true
	}
	c.mu.Unlock()
}

// Decide evaluates the rule chain for one tick: disabled, override,
// fail-safe, hysteresis, anti-chatter. avg is nil when the averaging window
// holds no usable reading. The only state mutated here is the expiry of a
// lapsed override and the fail-safe engagement marker; actuation and
// lightOn/lastSwitch updates stay with the caller.
func (c *Controller) Decide(now time.Time, avg *float64, faultStreak int, thr model.Thresholds, p Params) model.ControlDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := model.ControlDecision{LightOn: c.lightOn, AvgLux: avg, Thresholds: thr}

	if !c.enabled {
		d.Reason = ReasonDisabled
		return d
	}

	if c.override != nil {
		if now.Before(c.override.Until) {
			d.LightOn = c.override.On
			d.Reason = ReasonOverride
			c.failSafeEngaged = false
			return d
		}
		c.override = nil
	}

	if avg == nil || (p.FaultTolerance > 0 && faultStreak >= p.FaultTolerance) {
		d.FailSafe = true
		d.LightOn = p.FailSafeLightOn
		d.Reason = ReasonFailSafe
		if d.LightOn == c.lightOn {
			c.failSafeEngaged = true
			return d
		}
		// The engaging transition is a safety path and skips the switch
		// interval; once engaged, further flips are rate limited again.
		if c.failSafeEngaged && !c.canSwitch(now, p) {
			d.LightOn = c.lightOn
			d.Reason = ReasonMinInterval
		}
		return d
	}

	c.failSafeEngaged = false

	// Asymmetric dead band: once ON the light holds until the average
	// climbs to the off threshold, and vice versa. The hysteresis value
	// additionally keeps the two trip points apart when a window is
	// configured with a narrow min/max gap.
	onAt := thr.MinLux
	if v := thr.MaxLux - p.HysteresisLux; v < onAt {
		onAt = v
	}
	offAt := thr.MaxLux
	if v := thr.MinLux + p.HysteresisLux; v > offAt {
		offAt = v
	}

	switch {
	case !c.lightOn && *avg <= onAt:
		if !c.canSwitch(now, p) {
			d.Reason = ReasonMinInterval
			return d
		}
		d.LightOn = true
		d.Reason = fmt.Sprintf("avg %.1f lx at or below %.1f lx", *avg, onAt)
	case c.lightOn && *avg >= offAt:
		if !c.canSwitch(now, p) {
			d.Reason = ReasonMinInterval
			return d
		}
		d.LightOn = false
		d.Reason = fmt.Sprintf("avg %.1f lx at or above %.1f lx", *avg, offAt)
	default:
		d.Reason = ReasonWithinBand
	}
	return d
}

func (c *Controller) canSwitch(now time.Time, p Params) bool {
	if p.MinSwitchInterval <= 0 || c.lastSwitch.IsZero() {
		return true
	}
	return now.Sub(c.lastSwitch) >= p.MinSwitchInterval
}
