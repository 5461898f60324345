package driver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"luxctl/internal/config"
	"luxctl/internal/model"
)

// Sensor produces one reading per tick. Read never fails as control flow;
// a fault comes back as a Reading with OK false.
type Sensor interface {
	ID() string
	Read(ctx context.Context) model.Reading
	Close() error
}

// Actuator drives the grow-light relay. Current returns the last known or
// applied state and is used to reconcile controller state at startup.
type Actuator interface {
	ID() string
	Set(ctx context.Context, on bool) error
	Current() bool
	Close() error
}

func NewSensor(cfg config.SensorConfig, logger *slog.Logger) (Sensor, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sim":
		return NewSimSensor(cfg.Sim), nil
	case "rs485":
		return NewRS485Sensor(cfg.RS485, logger), nil
	default:
		return nil, errors.New("unsupported sensor driver")
	}
}

func NewActuator(cfg config.ActuatorConfig, logger *slog.Logger) (Actuator, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sim":
		return NewSimActuator(logger), nil
	case "sonoff":
		return NewSonoffActuator(cfg.Sonoff, logger), nil
	default:
		return nil, errors.New("unsupported actuator driver")
	}
}
