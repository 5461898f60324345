package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"luxctl/internal/config"
	"luxctl/internal/model"
)

// DefaultLabel is reported when no window covers the current time and the
// policy falls back to the default thresholds.
const DefaultLabel = "Outside control window"

// Window is a schedule entry. Start and End are minutes since local
// midnight; End <= Start means the window wraps past midnight.
type Window struct {
	ID       string
	Label    string
	Start    int
	End      int
	MinLux   float64
	MaxLux   float64
	Enabled  bool
	Priority int
}

// Active reports whether the window covers the given minute of the day.
func (w Window) Active(minute int) bool {
	if w.Start < w.End {
		return minute >= w.Start && minute < w.End
	}
	// Overnight span, e.g. 22:00-06:00. Start == End covers the whole day.
	return minute >= w.Start || minute < w.End
}

func (w Window) StartTime() string {
	return fmt.Sprintf("%02d:%02d", w.Start/60, w.Start%60)
}

func (w Window) EndTime() string {
	return fmt.Sprintf("%02d:%02d", w.End/60, w.End%60)
}

func (w Window) label() string {
	if w.Label != "" {
		return w.Label
	}
	return w.StartTime() + "-" + w.EndTime()
}

// Spec is the wire/config form of a Window, as accepted by the schedule
// replace API and the config file.
type Spec struct {
	ID        string  `json:"id" yaml:"id"`
	Label     string  `json:"label" yaml:"label"`
	StartTime string  `json:"start_time" yaml:"start_time"`
	EndTime   string  `json:"end_time" yaml:"end_time"`
	MinLux    float64 `json:"min_lux" yaml:"min_lux"`
	MaxLux    float64 `json:"max_lux" yaml:"max_lux"`
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	Priority  int     `json:"priority" yaml:"priority"`
}

// FromSpecs parses and validates a full window set. Windows without an id
// get a generated one; duplicate ids, malformed times and inverted lux
// bounds are rejected as a whole (the set is never partially applied).
func FromSpecs(specs []Spec) ([]Window, error) {
	out := make([]Window, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, sp := range specs {
		start, err := config.ParseClock(sp.StartTime)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		end, err := config.ParseClock(sp.EndTime)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		if sp.MinLux < 0 || sp.MinLux > sp.MaxLux {
			return nil, fmt.Errorf("window %d: min_lux %g / max_lux %g out of order", i, sp.MinLux, sp.MaxLux)
		}
		id := sp.ID
		if id == "" {
			id = uuid.NewString()
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate window id %q", id)
		}
		seen[id] = true
		out = append(out, Window{
			ID:       id,
			Label:    sp.Label,
			Start:    start,
			End:      end,
			MinLux:   sp.MinLux,
			MaxLux:   sp.MaxLux,
			Enabled:  sp.Enabled,
			Priority: sp.Priority,
		})
	}
	return out, nil
}

// SpecsFromConfig converts config file windows into replaceable specs.
func SpecsFromConfig(ws []config.WindowConfig) []Spec {
	out := make([]Spec, 0, len(ws))
	for _, w := range ws {
		out = append(out, Spec{
			ID:        w.ID,
			Label:     w.Label,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
			MinLux:    w.MinLux,
			MaxLux:    w.MaxLux,
			Enabled:   w.Enabled,
			Priority:  w.Priority,
		})
	}
	return out
}

// Policy holds the ordered window set for one controller. The control loop
// only reads it; replacement comes from the API or a config reload and is
// atomic.
type Policy struct {
	mu      sync.RWMutex
	windows []Window
}

func NewPolicy(windows []Window) *Policy {
	return &Policy{windows: windows}
}

func (p *Policy) Windows() []Window {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Window, len(p.windows))
	copy(out, p.windows)
	return out
}

func (p *Policy) Replace(windows []Window) {
	p.mu.Lock()
	p.windows = windows
	p.mu.Unlock()
}

// Resolve returns the thresholds in force at the given local time. Among
// active windows the highest priority wins; ties go to the earlier start
// time, then to the lexicographically smallest id, so the result never
// depends on insertion order.
func (p *Policy) Resolve(local time.Time, defaultMin, defaultMax float64) model.Thresholds {
	minute := local.Hour()*60 + local.Minute()

	p.mu.RLock()
	defer p.mu.RUnlock()
	var best *Window
	for i := range p.windows {
		w := &p.windows[i]
		if !w.Enabled || !w.Active(minute) {
			continue
		}
		if best == nil || wins(w, best) {
			best = w
		}
	}
	if best == nil {
		return model.Thresholds{
			MinLux:      defaultMin,
			MaxLux:      defaultMax,
			WindowLabel: DefaultLabel,
		}
	}
	return model.Thresholds{
		MinLux:      best.MinLux,
		MaxLux:      best.MaxLux,
		WindowID:    best.ID,
		WindowLabel: best.label(),
	}
}

func wins(a, b *Window) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.ID < b.ID
}
