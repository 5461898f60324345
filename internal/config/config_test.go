package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		minutes int
		bad     bool
	}{
		{"00:00", 0, false},
		{"06:30", 390, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"08:60", 0, true},
		{"8am", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.bad {
			if err == nil {
				t.Fatalf("ParseClock(%q) must fail", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", tc.in, err)
		}
		if got != tc.minutes {
			t.Fatalf("ParseClock(%q) = %d, want %d", tc.in, got, tc.minutes)
		}
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "luxctl.yaml")
	doc := `
log_level: debug
timezone: Europe/Berlin
sampling:
  sample_seconds: 10
control:
  default_min_lux: 2000
  default_max_lux: 4000
schedule:
  windows:
    - id: day
      start_time: "06:00"
      end_time: "22:00"
      min_lux: 4000
      max_lux: 8000
      enabled: true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Timezone != "Europe/Berlin" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Sampling.SampleSeconds != 10 {
		t.Fatalf("sample_seconds = %d, want 10", cfg.Sampling.SampleSeconds)
	}
	// Untouched fields keep their defaults.
	if cfg.Sampling.AvgSamples != 6 || cfg.Control.FaultTolerance != 3 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if len(cfg.Schedule.Windows) != 1 || cfg.Schedule.Windows[0].ID != "day" {
		t.Fatalf("windows = %+v", cfg.Schedule.Windows)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "luxctl.json")
	doc := `{"control": {"hysteresis_lux": 75, "default_min_lux": 1000, "default_max_lux": 2000}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Control.HysteresisLux != 75 {
		t.Fatalf("hysteresis = %v, want 75", cfg.Control.HysteresisLux)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Timezone = "Mars/Olympus" },
		func(c *Config) { c.Control.HysteresisLux = -1 },
		func(c *Config) { c.Control.DefaultMinLux = 9000 },
		func(c *Config) { c.Sensor.Driver = "i2c" },
		func(c *Config) { c.Sensor.Driver = "rs485"; c.Sensor.RS485.Port = "" },
		func(c *Config) { c.Sensor.Driver = "rs485"; c.Sensor.RS485.FunctionCode = 6 },
		func(c *Config) { c.Actuator.Driver = "sonoff" },
		func(c *Config) { c.Storage.Driver = "mongo" },
		func(c *Config) { c.Telemetry.Kafka.Enabled = true },
		func(c *Config) { c.API.Addr = "" },
		func(c *Config) {
			c.Schedule.Windows = []WindowConfig{{StartTime: "08:00", EndTime: "xx", MaxLux: 1}}
		},
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("case %d must fail validation", i)
		}
	}
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestRestartRequired(t *testing.T) {
	old := DefaultConfig()
	next := DefaultConfig()
	if got := RestartRequired(old, next); len(got) != 0 {
		t.Fatalf("identical configs need no restart, got %v", got)
	}
	next.Sensor.Driver = "rs485"
	next.Sensor.RS485.Port = "/dev/ttyUSB1"
	next.LogLevel = "debug"
	next.Control.HysteresisLux = 100
	got := RestartRequired(old, next)
	want := map[string]bool{"sensor": true, "log_level": true}
	if len(got) != 2 || !want[got[0]] || !want[got[1]] {
		t.Fatalf("restart sections = %v, want sensor and log_level", got)
	}
}

func TestManagerUpdatePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "luxctl.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	next := *m.Get()
	next.Control.DefaultMinLux = 2500
	if err := m.Update(&next); err != nil {
		t.Fatalf("Update: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after update: %v", err)
	}
	if reloaded.Control.DefaultMinLux != 2500 {
		t.Fatalf("persisted min = %v, want 2500", reloaded.Control.DefaultMinLux)
	}
	if m.Get().Control.DefaultMinLux != 2500 {
		t.Fatalf("snapshot not updated")
	}
}

func TestManagerUpdateRejectsInvalid(t *testing.T) {
	m := NewManagerFromConfig(DefaultConfig())
	next := *m.Get()
	next.Timezone = "Nowhere/Null"
	if err := m.Update(&next); err == nil {
		t.Fatalf("invalid update must be rejected")
	}
	if m.Get().Timezone != "UTC" {
		t.Fatalf("rejected update must not change the snapshot")
	}
}
