package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"luxctl/internal/config"
)

// SonoffActuator drives a Sonoff BASICR3 relay in eWeLink DIY mode over
// its local HTTP API. Current returns the last known state; the device is
// queried once at construction so startup reconciliation sees the real
// relay position when the device is reachable.
type SonoffActuator struct {
	baseURL  string
	deviceID string
	client   *http.Client
	logger   *slog.Logger

	mu        sync.Mutex
	lastKnown bool
}

type sonoffRequest struct {
	DeviceID string         `json:"deviceid"`
	Data     map[string]any `json:"data"`
}

type sonoffResponse struct {
	Error int `json:"error"`
	Data  struct {
		Switch string `json:"switch"`
	} `json:"data"`
}

func NewSonoffActuator(cfg config.SonoffConfig, logger *slog.Logger) *SonoffActuator {
	a := &SonoffActuator{
		baseURL:  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		deviceID: cfg.DeviceID,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:   logger,
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.client.Timeout)
	defer cancel()
	if err := a.refresh(ctx); err != nil && logger != nil {
		logger.Warn("sonoff state query failed, assuming off", "err", err)
	}
	return a
}

func (a *SonoffActuator) ID() string { return "sonoff_basicr3" }

func (a *SonoffActuator) Set(ctx context.Context, on bool) error {
	val := "off"
	if on {
		val = "on"
	}
	req := sonoffRequest{DeviceID: a.deviceID, Data: map[string]any{"switch": val}}
	if _, err := a.post(ctx, "/zeroconf/switch", req); err != nil {
		return err
	}
	a.mu.Lock()
	a.lastKnown = on
	a.mu.Unlock()
	return nil
}

func (a *SonoffActuator) Current() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastKnown
}

func (a *SonoffActuator) refresh(ctx context.Context) error {
	resp, err := a.post(ctx, "/zeroconf/info", sonoffRequest{DeviceID: a.deviceID, Data: map[string]any{}})
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.lastKnown = resp.Data.Switch == "on"
	a.mu.Unlock()
	return nil
}

func (a *SonoffActuator) post(ctx context.Context, path string, payload sonoffRequest) (*sonoffResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sonoff %s: status %d", path, resp.StatusCode)
	}
	var out sonoffResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("sonoff %s: decode: %w", path, err)
	}
	if out.Error != 0 {
		return nil, fmt.Errorf("sonoff %s: device error %d", path, out.Error)
	}
	return &out, nil
}

func (a *SonoffActuator) Close() error { return nil }
