package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"luxctl/internal/api"
	"luxctl/internal/config"
	"luxctl/internal/control"
	"luxctl/internal/driver"
	"luxctl/internal/history"
	"luxctl/internal/logging"
	"luxctl/internal/schedule"
	"luxctl/internal/storage"
	"luxctl/internal/telemetry"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "luxctl.yaml", "path to config file (yaml or json)")
	flag.Parse()

	path := config.ResolvePath(*configPath)
	var cfgMgr *config.Manager
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfgMgr = config.NewManagerFromConfig(config.DefaultConfig())
	} else {
		var err error
		cfgMgr, err = config.NewManager(path)
		if err != nil {
			logging.NewLogger("info").Error("config load failed", "path", path, "err", err)
			os.Exit(1)
		}
	}
	cfg := cfgMgr.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("luxctl starting", "version", version, "config", cfgMgr.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage open failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := store.Init(initCtx)
		cancel()
		if err != nil {
			logger.Error("storage init failed", "err", err)
			os.Exit(1)
		}
		logger.Info("storage ready", "driver", cfg.Storage.Driver)
	}

	sensor, err := driver.NewSensor(cfg.Sensor, logger)
	if err != nil {
		logger.Error("sensor init failed", "err", err)
		os.Exit(1)
	}
	actuator, err := driver.NewActuator(cfg.Actuator, logger)
	if err != nil {
		logger.Error("actuator init failed", "err", err)
		os.Exit(1)
	}
	logger.Info("drivers ready", "sensor", sensor.ID(), "actuator", actuator.ID())

	windows, err := schedule.FromSpecs(schedule.SpecsFromConfig(cfg.Schedule.Windows))
	if err != nil {
		logger.Error("schedule invalid", "err", err)
		os.Exit(1)
	}
	policy := schedule.NewPolicy(windows)

	// Controller state starts from what the relay actually reports, so a
	// restart never flips a light that was already in the right state.
	ctrl := control.NewController(actuator.Current())

	hist := history.NewStore(cfg.History.StoreLimit)
	pub := telemetry.NewPublisher(cfg.Telemetry.Kafka, logger)
	sampler := control.NewSampler(cfgMgr, sensor, actuator, store, hist, pub, policy, ctrl, logger)

	sim, _ := sensor.(*driver.SimSensor)
	_ = api.Start(ctx, cfgMgr, policy, ctrl, sampler, store, hist, sim, logger, version)

	go cfgMgr.Watch(3*time.Second,
		func(next *config.Config) {
			ws, err := schedule.FromSpecs(schedule.SpecsFromConfig(next.Schedule.Windows))
			if err != nil {
				logger.Error("reloaded schedule invalid, keeping previous windows", "err", err)
				return
			}
			policy.Replace(ws)
			logger.Info("config reloaded", "windows", len(ws), "restart_required", config.RestartRequired(cfg, next))
		},
		func(err error) {
			logger.Error("config reload failed", "err", err)
		},
		ctx.Done(),
	)

	done := make(chan struct{})
	go func() {
		sampler.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	<-done

	if err := sensor.Close(); err != nil {
		logger.Warn("sensor close", "err", err)
	}
	if err := actuator.Close(); err != nil {
		logger.Warn("actuator close", "err", err)
	}
	if err := pub.Close(); err != nil {
		logger.Warn("telemetry close", "err", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("storage close", "err", err)
		}
	}
	logger.Info("luxctl stopped")
}
