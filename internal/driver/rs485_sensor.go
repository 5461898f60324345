package driver

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/goburrow/modbus"

	"luxctl/internal/config"
	"luxctl/internal/model"
)

// RS485Sensor reads lux from a Modbus RTU sensor on a serial/USB port.
// Registers are combined big endian (raw = hi<<16 | lo) and scaled into
// lux. A failed read marks the link down so the next tick reconnects.
type RS485Sensor struct {
	cfg       config.RS485Config
	handler   *modbus.RTUClientHandler
	client    modbus.Client
	connected bool
	logger    *slog.Logger
}

func NewRS485Sensor(cfg config.RS485Config, logger *slog.Logger) *RS485Sensor {
	h := modbus.NewRTUClientHandler(cfg.Port)
	h.BaudRate = cfg.Baudrate
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.SlaveId = byte(cfg.SlaveID)
	h.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	return &RS485Sensor{
		cfg:     cfg,
		handler: h,
		client:  modbus.NewClient(h),
		logger:  logger,
	}
}

func (s *RS485Sensor) ID() string { return "lux_rs485" }

func (s *RS485Sensor) Read(ctx context.Context) model.Reading {
	now := time.Now().UTC()
	value, err := s.readLux()
	if err != nil {
		s.dropConnection()
		return model.Reading{
			Timestamp: now,
			SensorID:  s.ID(),
			Unit:      "lux",
			OK:        false,
			Error:     err.Error(),
		}
	}
	return model.Reading{
		Timestamp: now,
		SensorID:  s.ID(),
		Value:     value,
		Unit:      "lux",
		OK:        true,
	}
}

func (s *RS485Sensor) readLux() (float64, error) {
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}
	var regs []byte
	var err error
	if s.cfg.FunctionCode == 4 {
		regs, err = s.client.ReadInputRegisters(uint16(s.cfg.RegisterAddress), uint16(s.cfg.RegisterCount))
	} else {
		regs, err = s.client.ReadHoldingRegisters(uint16(s.cfg.RegisterAddress), uint16(s.cfg.RegisterCount))
	}
	if err != nil {
		return 0, fmt.Errorf("modbus read: %w", err)
	}
	if len(regs) < 2*s.cfg.RegisterCount {
		return 0, fmt.Errorf("modbus read returned %d bytes, want %d", len(regs), 2*s.cfg.RegisterCount)
	}
	var raw uint64
	for i := 0; i < s.cfg.RegisterCount; i++ {
		raw = raw<<16 | uint64(binary.BigEndian.Uint16(regs[2*i:]))
	}
	return float64(raw) * s.cfg.Scale, nil
}

func (s *RS485Sensor) ensureConnected() error {
	if s.connected {
		return nil
	}
	if err := s.handler.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.Port, err)
	}
	s.connected = true
	if s.logger != nil {
		s.logger.Info("modbus rtu connected", "port", s.cfg.Port, "baudrate", s.cfg.Baudrate, "slave_id", s.cfg.SlaveID)
	}
	return nil
}

func (s *RS485Sensor) dropConnection() {
	if !s.connected {
		return
	}
	_ = s.handler.Close()
	s.connected = false
}

func (s *RS485Sensor) Close() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.handler.Close()
}
