package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Timezone  string          `json:"timezone" yaml:"timezone"`
	Sampling  SamplingConfig  `json:"sampling" yaml:"sampling"`
	Control   ControlConfig   `json:"control" yaml:"control"`
	Sensor    SensorConfig    `json:"sensor" yaml:"sensor"`
	Actuator  ActuatorConfig  `json:"actuator" yaml:"actuator"`
	Schedule  ScheduleConfig  `json:"schedule" yaml:"schedule"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	API       APIConfig       `json:"api" yaml:"api"`
	History   HistoryConfig   `json:"history" yaml:"history"`
}

type SamplingConfig struct {
	SampleSeconds int `json:"sample_seconds" yaml:"sample_seconds"`
	AvgSamples    int `json:"avg_samples" yaml:"avg_samples"`
}

type ControlConfig struct {
	HysteresisLux            float64 `json:"hysteresis_lux" yaml:"hysteresis_lux"`
	MinSwitchIntervalSeconds int     `json:"min_switch_interval_seconds" yaml:"min_switch_interval_seconds"`
	DefaultMinLux            float64 `json:"default_min_lux" yaml:"default_min_lux"`
	DefaultMaxLux            float64 `json:"default_max_lux" yaml:"default_max_lux"`
	FailSafeLightOn          bool    `json:"fail_safe_light_on" yaml:"fail_safe_light_on"`
	FaultTolerance           int     `json:"fault_tolerance" yaml:"fault_tolerance"`
}

type SensorConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	RS485  RS485Config `json:"rs485" yaml:"rs485"`
	Sim    SimConfig   `json:"sim" yaml:"sim"`
}

type RS485Config struct {
	Port            string  `json:"port" yaml:"port"`
	Baudrate        int     `json:"baudrate" yaml:"baudrate"`
	SlaveID         int     `json:"slave_id" yaml:"slave_id"`
	FunctionCode    int     `json:"function_code" yaml:"function_code"`
	RegisterAddress int     `json:"register_address" yaml:"register_address"`
	RegisterCount   int     `json:"register_count" yaml:"register_count"`
	Scale           float64 `json:"scale" yaml:"scale"`
	TimeoutSeconds  int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type SimConfig struct {
	InitialLux  float64 `json:"initial_lux" yaml:"initial_lux"`
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"`
}

type ActuatorConfig struct {
	Driver string       `json:"driver" yaml:"driver"`
	Sonoff SonoffConfig `json:"sonoff" yaml:"sonoff"`
}

type SonoffConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	DeviceID       string `json:"device_id" yaml:"device_id"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type ScheduleConfig struct {
	Windows []WindowConfig `json:"windows" yaml:"windows"`
}

type WindowConfig struct {
	ID        string  `json:"id" yaml:"id"`
	Label     string  `json:"label" yaml:"label"`
	StartTime string  `json:"start_time" yaml:"start_time"`
	EndTime   string  `json:"end_time" yaml:"end_time"`
	MinLux    float64 `json:"min_lux" yaml:"min_lux"`
	MaxLux    float64 `json:"max_lux" yaml:"max_lux"`
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Priority  int     `json:"priority" yaml:"priority"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type TelemetryConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type HistoryConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Timezone: "UTC",
		Sampling: SamplingConfig{
			SampleSeconds: 5,
			AvgSamples:    6,
		},
		Control: ControlConfig{
			HysteresisLux:            50,
			MinSwitchIntervalSeconds: 60,
			DefaultMinLux:            3000,
			DefaultMaxLux:            6000,
			FailSafeLightOn:          false,
			FaultTolerance:           3,
		},
		Sensor: SensorConfig{
			Driver: "sim",
			RS485: RS485Config{
				Port:            "/dev/ttyUSB0",
				Baudrate:        9600,
				SlaveID:         1,
				FunctionCode:    3,
				RegisterAddress: 2,
				RegisterCount:   2,
				Scale:           0.001,
				TimeoutSeconds:  1,
			},
			Sim: SimConfig{InitialLux: 3500},
		},
		Actuator: ActuatorConfig{
			Driver: "sim",
			Sonoff: SonoffConfig{Port: 8081, TimeoutSeconds: 5},
		},
		Storage: StorageConfig{Enabled: true, Driver: "sqlite", DSN: "file:luxctl.db?_pragma=busy_timeout(5000)"},
		API:     APIConfig{Enabled: true, Addr: ":8080"},
		History: HistoryConfig{StoreLimit: 2000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.Sampling.SampleSeconds <= 0 {
		cfg.Sampling.SampleSeconds = 5
	}
	if cfg.Sampling.AvgSamples <= 0 {
		cfg.Sampling.AvgSamples = 6
	}
	if cfg.Control.FaultTolerance <= 0 {
		cfg.Control.FaultTolerance = 3
	}
	if cfg.Sensor.Driver == "" {
		cfg.Sensor.Driver = "sim"
	}
	if cfg.Sensor.RS485.RegisterCount <= 0 {
		cfg.Sensor.RS485.RegisterCount = 1
	}
	if cfg.Sensor.RS485.Scale == 0 {
		cfg.Sensor.RS485.Scale = 1.0
	}
	if cfg.Sensor.RS485.TimeoutSeconds <= 0 {
		cfg.Sensor.RS485.TimeoutSeconds = 1
	}
	if cfg.Actuator.Driver == "" {
		cfg.Actuator.Driver = "sim"
	}
	if cfg.Actuator.Sonoff.TimeoutSeconds <= 0 {
		cfg.Actuator.Sonoff.TimeoutSeconds = 5
	}
	if cfg.History.StoreLimit <= 0 {
		cfg.History.StoreLimit = 2000
	}
}

func Validate(cfg *Config) error {
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("timezone %q is not a valid IANA zone: %w", cfg.Timezone, err)
	}
	if cfg.Control.HysteresisLux < 0 {
		return errors.New("control.hysteresis_lux must be >= 0")
	}
	if cfg.Control.MinSwitchIntervalSeconds < 0 {
		return errors.New("control.min_switch_interval_seconds must be >= 0")
	}
	if cfg.Control.DefaultMinLux > cfg.Control.DefaultMaxLux {
		return errors.New("control.default_min_lux must be <= control.default_max_lux")
	}
	switch strings.ToLower(cfg.Sensor.Driver) {
	case "sim", "rs485":
	default:
		return fmt.Errorf("sensor.driver %q not supported (sim, rs485)", cfg.Sensor.Driver)
	}
	if strings.ToLower(cfg.Sensor.Driver) == "rs485" {
		if cfg.Sensor.RS485.Port == "" {
			return errors.New("sensor.rs485.port required when sensor.driver is rs485")
		}
		if fc := cfg.Sensor.RS485.FunctionCode; fc != 3 && fc != 4 {
			return fmt.Errorf("sensor.rs485.function_code must be 3 or 4, got %d", fc)
		}
	}
	switch strings.ToLower(cfg.Actuator.Driver) {
	case "sim", "sonoff":
	default:
		return fmt.Errorf("actuator.driver %q not supported (sim, sonoff)", cfg.Actuator.Driver)
	}
	if strings.ToLower(cfg.Actuator.Driver) == "sonoff" {
		if cfg.Actuator.Sonoff.Host == "" || cfg.Actuator.Sonoff.DeviceID == "" {
			return errors.New("actuator.sonoff requires host and device_id")
		}
	}
	for i, w := range cfg.Schedule.Windows {
		if err := validateWindow(w); err != nil {
			return fmt.Errorf("schedule.windows[%d]: %w", i, err)
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q not supported (sqlite, postgres)", cfg.Storage.Driver)
		}
	}
	if cfg.Telemetry.Kafka.Enabled {
		if len(cfg.Telemetry.Kafka.Brokers) == 0 || cfg.Telemetry.Kafka.Topic == "" {
			return errors.New("telemetry.kafka requires brokers and topic")
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	return nil
}

func validateWindow(w WindowConfig) error {
	if _, err := ParseClock(w.StartTime); err != nil {
		return err
	}
	if _, err := ParseClock(w.EndTime); err != nil {
		return err
	}
	if w.MinLux > w.MaxLux {
		return fmt.Errorf("min_lux %g must be <= max_lux %g", w.MinLux, w.MaxLux)
	}
	if w.MinLux < 0 {
		return errors.New("min_lux must be >= 0")
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}

// RestartRequired reports the top-level sections whose changes only take
// effect after a process restart. Everything else is hot-applied: the
// sampler and decision engine read the current snapshot every tick.
func RestartRequired(old, next *Config) []string {
	var out []string
	if !reflect.DeepEqual(old.Sensor, next.Sensor) {
		out = append(out, "sensor")
	}
	if !reflect.DeepEqual(old.Actuator, next.Actuator) {
		out = append(out, "actuator")
	}
	if !reflect.DeepEqual(old.Storage, next.Storage) {
		out = append(out, "storage")
	}
	if !reflect.DeepEqual(old.Telemetry, next.Telemetry) {
		out = append(out, "telemetry")
	}
	if !reflect.DeepEqual(old.API, next.API) {
		out = append(out, "api")
	}
	if old.LogLevel != next.LogLevel {
		out = append(out, "log_level")
	}
	return out
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewManagerFromConfig builds a manager around an in-memory config with no
// backing file. Updates are not persisted. Used by tests and by runs with
// no config file on disk.
func NewManagerFromConfig(cfg *Config) *Manager {
	m := &Manager{}
	applyDefaults(cfg)
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	m.cfg.Store(cfg)
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
