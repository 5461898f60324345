package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"luxctl/internal/config"
	"luxctl/internal/control"
	"luxctl/internal/driver"
	"luxctl/internal/history"
	"luxctl/internal/schedule"
	"luxctl/internal/storage"
)

type Server struct {
	cfg     *config.Manager
	policy  *schedule.Policy
	ctrl    *control.Controller
	sampler *control.Sampler
	store   storage.Store
	history *history.Store
	sim     *driver.SimSensor
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status     string `json:"status"`
	Time       string `json:"time"`
	Version    string `json:"version"`
	ConfigPath string `json:"config_path"`
	Timezone   string `json:"timezone"`
	Sensor     string `json:"sensor"`
	Actuator   string `json:"actuator"`
	Storage    bool   `json:"storage"`
	Windows    int    `json:"windows"`
}

func Start(
	ctx context.Context,
	cfg *config.Manager,
	policy *schedule.Policy,
	ctrl *control.Controller,
	sampler *control.Sampler,
	store storage.Store,
	hist *history.Store,
	sim *driver.SimSensor,
	logger *slog.Logger,
	version string,
) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		policy:  policy,
		ctrl:    ctrl,
		sampler: sampler,
		store:   store,
		history: hist,
		sim:     sim,
		logger:  logger,
		version: version,
	}

	r := mux.NewRouter()
	r.HandleFunc("/status", server.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/live", server.handleLive).Methods(http.MethodGet)
	r.HandleFunc("/controller/enable", server.handleEnable).Methods(http.MethodPost)
	r.HandleFunc("/controller/disable", server.handleDisable).Methods(http.MethodPost)
	r.HandleFunc("/controller/override", server.handleOverride).Methods(http.MethodPost)
	r.HandleFunc("/controller/override/cancel", server.handleOverrideCancel).Methods(http.MethodPost)
	r.HandleFunc("/schedule", server.handleScheduleGet).Methods(http.MethodGet)
	r.HandleFunc("/schedule", server.handleScheduleReplace).Methods(http.MethodPut)
	r.HandleFunc("/readings", server.handleReadings).Methods(http.MethodGet)
	r.HandleFunc("/actions", server.handleActions).Methods(http.MethodGet)
	r.HandleFunc("/settings", server.handleSettingsGet).Methods(http.MethodGet)
	r.HandleFunc("/settings", server.handleSettingsUpdate).Methods(http.MethodPut)
	if sim != nil {
		r.HandleFunc("/sim/status", server.handleSimStatus).Methods(http.MethodGet)
		r.HandleFunc("/sim/lux", server.handleSimLux).Methods(http.MethodPost)
		r.HandleFunc("/sim/pattern", server.handleSimPattern).Methods(http.MethodPost)
		r.HandleFunc("/sim/failure_rate", server.handleSimFailureRate).Methods(http.MethodPost)
	}

	httpServer := &http.Server{Addr: current.Addr, Handler: r}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Timezone:   cfg.Timezone,
		Sensor:     cfg.Sensor.Driver,
		Actuator:   cfg.Actuator.Driver,
		Storage:    cfg.Storage.Enabled,
		Windows:    len(s.policy.Windows()),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	live := s.sampler.Live()
	st := s.ctrl.Snapshot()
	var lastSwitch *string
	if !st.LastSwitch.IsZero() {
		v := st.LastSwitch.UTC().Format(time.RFC3339Nano)
		lastSwitch = &v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"live": live,
		"controller": map[string]any{
			"enabled":           st.Enabled,
			"light_on":          st.LightOn,
			"last_switch":       lastSwitch,
			"override":          st.Override,
			"fail_safe_engaged": st.FailSafeEngaged,
		},
	})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Enable()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": true})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Disable()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": false})
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On              bool `json:"on"`
		DurationSeconds int  `json:"duration_seconds"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	if req.DurationSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "duration_seconds must be > 0")
		return
	}
	ov := s.ctrl.SetOverride(req.On, time.Duration(req.DurationSeconds)*time.Second, time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"on":    ov.On,
		"until": ov.Until.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleOverrideCancel(w http.ResponseWriter, r *http.Request) {
	s.ctrl.CancelOverride()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "override": nil})
}

func (s *Server) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	windows := s.policy.Windows()
	out := make([]schedule.Spec, 0, len(windows))
	for _, win := range windows {
		out = append(out, schedule.Spec{
			ID:        win.ID,
			Label:     win.Label,
			StartTime: win.StartTime(),
			EndTime:   win.EndTime(),
			MinLux:    win.MinLux,
			MaxLux:    win.MaxLux,
			Enabled:   win.Enabled,
			Priority:  win.Priority,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": out})
}

func (s *Server) handleScheduleReplace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Windows []schedule.Spec `json:"windows"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	windows, err := schedule.FromSpecs(req.Windows)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.policy.Replace(windows)
	if s.logger != nil {
		s.logger.Info("schedule replaced", "windows", len(windows))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(windows)})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	since, limit := rangeParams(r, 60, 5000)
	if s.store != nil {
		rows, err := s.store.Readings(r.Context(), since, limit)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
			return
		}
		if s.logger != nil {
			s.logger.Warn("readings query failed, serving in-memory history", "err", err)
		}
	}
	rows := s.history.Readings(since, limit)
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	since, limit := rangeParams(r, 240, 2000)
	if s.store != nil {
		rows, err := s.store.Actions(r.Context(), since, limit)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
			return
		}
		if s.logger != nil {
			s.logger.Warn("actions query failed, serving in-memory history", "err", err)
		}
	}
	rows := s.history.Actions(since, limit)
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":                  s.cfg.Get(),
		"restart_required_sections": []string{"sensor", "actuator", "storage", "telemetry", "api", "log_level"},
	})
}

// handleSettingsUpdate accepts a partial config document, merges it over
// the current snapshot, validates and persists it, and hot-applies what it
// can. Sections that need a fresh hardware or network connection are
// reported back as restart_required.
func (s *Server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	cur := s.cfg.Get()
	next, err := cloneConfig(cur)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "config clone failed")
		return
	}
	if err := json.Unmarshal(body, next); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	windows, err := schedule.FromSpecs(schedule.SpecsFromConfig(next.Schedule.Windows))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cfg.Update(next); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.policy.Replace(windows)
	restart := config.RestartRequired(cur, next)
	if s.logger != nil {
		s.logger.Info("settings updated", "restart_required", restart)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "restart_required": restart})
}

func (s *Server) handleSimStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Status())
}

func (s *Server) handleSimLux(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lux float64 `json:"lux"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	if req.Lux < 0 {
		writeError(w, http.StatusBadRequest, "lux must be >= 0")
		return
	}
	s.sim.SetManual(req.Lux)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lux": req.Lux})
}

func (s *Server) handleSimPattern(w http.ResponseWriter, r *http.Request) {
	var req driver.Pattern
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	switch req.Type {
	case driver.PatternManual, driver.PatternSine, driver.PatternStep, driver.PatternRamp, driver.PatternRandom:
	default:
		writeError(w, http.StatusBadRequest, "unknown pattern type")
		return
	}
	s.sim.SetPattern(req)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "pattern": req})
}

func (s *Server) handleSimFailureRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	if req.Rate < 0 || req.Rate > 1 {
		writeError(w, http.StatusBadRequest, "rate must be in [0, 1]")
		return
	}
	s.sim.SetFailureRate(req.Rate)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "rate": req.Rate})
}

func rangeParams(r *http.Request, defaultMinutes, maxLimit int) (time.Time, int) {
	minutes := defaultMinutes
	if v := r.URL.Query().Get("minutes"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			minutes = n
		}
	}
	limit := maxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < maxLimit {
			limit = n
		}
	}
	return time.Now().UTC().Add(-time.Duration(minutes) * time.Minute), limit
}

func cloneConfig(cfg *config.Config) (*config.Config, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	out := &config.Config{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
