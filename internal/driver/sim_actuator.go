package driver

import (
	"context"
	"log/slog"
	"sync"
)

// SimActuator tracks the relay state in memory and logs transitions.
type SimActuator struct {
	mu     sync.Mutex
	on     bool
	logger *slog.Logger
}

func NewSimActuator(logger *slog.Logger) *SimActuator {
	return &SimActuator{logger: logger}
}

func (a *SimActuator) ID() string { return "relay_sim_01" }

func (a *SimActuator) Set(ctx context.Context, on bool) error {
	a.mu.Lock()
	changed := a.on != on
	a.on = on
	a.mu.Unlock()
	if changed && a.logger != nil {
		a.logger.Info("relay switched", "actuator_id", a.ID(), "on", on)
	}
	return nil
}

func (a *SimActuator) Current() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on
}

func (a *SimActuator) Close() error { return nil }
