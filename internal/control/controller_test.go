package control

import (
	"testing"
	"time"

	"luxctl/internal/model"
)

func testParams() Params {
	return Params{
		HysteresisLux:     50,
		MinSwitchInterval: 60 * time.Second,
		FailSafeLightOn:   false,
		FaultTolerance:    3,
	}
}

func testThresholds() model.Thresholds {
	return model.Thresholds{MinLux: 3000, MaxLux: 6000, WindowLabel: "Seedling day"}
}

func f(v float64) *float64 {
	return &v
}

func TestSwitchesOnAtOrBelowMin(t *testing.T) {
	c := NewController(false)
	now := time.Now()
	p := testParams()
	thr := testThresholds()

	for i, v := range []float64{4200, 3100} {
		d := c.Decide(now.Add(time.Duration(i)*time.Second), f(v), 0, thr, p)
		if d.LightOn {
			t.Fatalf("avg %v must not switch on yet", v)
		}
		if d.Reason != ReasonWithinBand {
			t.Fatalf("reason = %q, want within band", d.Reason)
		}
	}
	d := c.Decide(now.Add(2*time.Second), f(2900), 0, thr, p)
	if !d.LightOn {
		t.Fatalf("avg 2900 with min 3000 must switch on")
	}
	if d.FailSafe {
		t.Fatalf("normal switch must not be fail-safe")
	}
}

func TestHysteresisHoldsUntilMax(t *testing.T) {
	c := NewController(true)
	now := time.Now()
	p := testParams()
	thr := testThresholds()

	// Light already on: values between the trip points keep it on.
	for _, v := range []float64{3100, 4500, 5900} {
		d := c.Decide(now, f(v), 0, thr, p)
		if !d.LightOn {
			t.Fatalf("avg %v must hold light on", v)
		}
	}
	d := c.Decide(now, f(6000), 0, thr, p)
	if d.LightOn {
		t.Fatalf("avg at max must switch off")
	}
}

func TestNarrowBandClampedByHysteresis(t *testing.T) {
	c := NewController(false)
	now := time.Now()
	p := testParams()
	// min and max only 20 lx apart, below the 50 lx hysteresis.
	thr := model.Thresholds{MinLux: 3000, MaxLux: 3020}

	// On threshold is pulled down to max - hysteresis = 2970.
	d := c.Decide(now, f(2980), 0, thr, p)
	if d.LightOn {
		t.Fatalf("avg 2980 must stay off, trip point is 2970")
	}
	d = c.Decide(now, f(2970), 0, thr, p)
	if !d.LightOn {
		t.Fatalf("avg 2970 must switch on")
	}
	c.ApplySwitch(true, now, false)

	// Off threshold is pushed up to min + hysteresis = 3050.
	d = c.Decide(now.Add(2*time.Minute), f(3030), 0, thr, p)
	if !d.LightOn {
		t.Fatalf("avg 3030 must hold on, off trip point is 3050")
	}
	d = c.Decide(now.Add(2*time.Minute), f(3050), 0, thr, p)
	if d.LightOn {
		t.Fatalf("avg 3050 must switch off")
	}
}

func TestMinSwitchIntervalBlocksFlips(t *testing.T) {
	c := NewController(false)
	now := time.Now()
	p := testParams()
	thr := testThresholds()

	d := c.Decide(now, f(2500), 0, thr, p)
	if !d.LightOn {
		t.Fatalf("first switch must be allowed")
	}
	c.ApplySwitch(true, now, false)

	d = c.Decide(now.Add(30*time.Second), f(6500), 0, thr, p)
	if d.LightOn != true || d.Reason != ReasonMinInterval {
		t.Fatalf("flip within interval must hold, got on=%v reason=%q", d.LightOn, d.Reason)
	}

	d = c.Decide(now.Add(61*time.Second), f(6500), 0, thr, p)
	if d.LightOn {
		t.Fatalf("flip after interval must pass")
	}
}

func TestDisabledNeverSwitches(t *testing.T) {
	c := NewController(false)
	c.Disable()
	d := c.Decide(time.Now(), f(100), 0, testThresholds(), testParams())
	if d.LightOn || d.Reason != ReasonDisabled {
		t.Fatalf("disabled controller decided on=%v reason=%q", d.LightOn, d.Reason)
	}
	c.Enable()
	d = c.Decide(time.Now(), f(100), 0, testThresholds(), testParams())
	if !d.LightOn {
		t.Fatalf("re-enabled controller must resume deciding")
	}
}

func TestOverrideForcesAndExpires(t *testing.T) {
	c := NewController(false)
	now := time.Now()
	p := testParams()
	thr := testThresholds()

	c.SetOverride(true, 60*time.Second, now)
	d := c.Decide(now.Add(10*time.Second), f(9000), 0, thr, p)
	if !d.LightOn || d.Reason != ReasonOverride {
		t.Fatalf("override must force on, got on=%v reason=%q", d.LightOn, d.Reason)
	}

	// Past the deadline the override is cleared and normal rules resume.
	d = c.Decide(now.Add(61*time.Second), f(9000), 0, thr, p)
	if d.Reason == ReasonOverride {
		t.Fatalf("expired override still in force")
	}
	if c.Snapshot().Override != nil {
		t.Fatalf("expired override must be cleared from state")
	}
}

func TestOverrideCancel(t *testing.T) {
	c := NewController(false)
	now := time.Now()
	c.SetOverride(true, time.Hour, now)
	c.CancelOverride()
	d := c.Decide(now.Add(time.Second), f(9000), 0, testThresholds(), testParams())
	if d.Reason == ReasonOverride {
		t.Fatalf("cancelled override still in force")
	}
}

func TestFailSafeAfterConsecutiveFaults(t *testing.T) {
	c := NewController(true)
	now := time.Now()
	p := testParams()
	thr := testThresholds()

	// Two faults with a live average: still deciding normally.
	d := c.Decide(now, f(4000), 2, thr, p)
	if d.FailSafe {
		t.Fatalf("streak below tolerance must not fail-safe")
	}

	d = c.Decide(now.Add(time.Second), f(4000), 3, thr, p)
	if !d.FailSafe || d.LightOn != false || d.Reason != ReasonFailSafe {
		t.Fatalf("streak at tolerance must force fail-safe off, got %+v", d)
	}
}

func TestFailSafeWhenNoAverage(t *testing.T) {
	c := NewController(true)
	d := c.Decide(time.Now(), nil, 0, testThresholds(), testParams())
	if !d.FailSafe || d.LightOn != false {
		t.Fatalf("nil average must force fail-safe, got %+v", d)
	}
}

func TestFailSafeEngagementSkipsInterval(t *testing.T) {
	c := NewController(false)
	now := time.Now()
	p := testParams()
	thr := testThresholds()

	// A recent normal switch puts the interval in force.
	d := c.Decide(now, f(2500), 0, thr, p)
	if !d.LightOn {
		t.Fatalf("setup switch failed")
	}
	c.ApplySwitch(true, now, false)

	// Fail-safe wants off 10s later: the engaging transition goes through.
	d = c.Decide(now.Add(10*time.Second), nil, 0, thr, p)
	if !d.FailSafe || d.LightOn {
		t.Fatalf("engaging fail-safe must bypass the switch interval, got %+v", d)
	}
	c.ApplySwitch(false, now.Add(10*time.Second), true)

	// Once engaged, a recovery flip is rate limited again.
	d = c.Decide(now.Add(12*time.Second), nil, 0, thr, p)
	if d.LightOn || !d.FailSafe {
		t.Fatalf("engaged fail-safe must hold off, got %+v", d)
	}
}

func TestFailSafeRetryWhenWriteFailed(t *testing.T) {
	c := NewController(true)
	now := time.Now()
	p := testParams()
	thr := testThresholds()

	c.ApplySwitch(true, now, false)

	// First fail-safe decision: wants off, bypassing the interval. The
	// caller's actuator write fails, so ApplySwitch is never called.
	d := c.Decide(now.Add(5*time.Second), nil, 0, thr, p)
	if !d.FailSafe || d.LightOn {
		t.Fatalf("want fail-safe off, got %+v", d)
	}

	// Next tick the transition is still treated as the engaging one.
	d = c.Decide(now.Add(10*time.Second), nil, 0, thr, p)
	if !d.FailSafe || d.LightOn {
		t.Fatalf("retry after failed write must still bypass the interval, got %+v", d)
	}
}

func TestRecoveryClearsFailSafe(t *testing.T) {
	c := NewController(true)
	now := time.Now()
	p := testParams()
	thr := testThresholds()

	d := c.Decide(now, nil, 0, thr, p)
	if !d.FailSafe {
		t.Fatalf("setup fail-safe failed")
	}
	c.ApplySwitch(false, now, true)

	d = c.Decide(now.Add(2*time.Minute), f(4000), 0, thr, p)
	if d.FailSafe {
		t.Fatalf("recovered average must leave fail-safe")
	}
	if c.Snapshot().FailSafeEngaged {
		t.Fatalf("engagement marker must clear on recovery")
	}
}
