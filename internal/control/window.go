package control

import "luxctl/internal/model"

type sample struct {
	value float64
	ok    bool
}

// RollingWindow keeps the last N readings in arrival order. It is owned by
// the sampler goroutine and is not safe for concurrent use.
type RollingWindow struct {
	buf  []sample
	size int
}

func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{buf: make([]sample, 0, size), size: size}
}

func (w *RollingWindow) Push(r model.Reading) {
	w.buf = append(w.buf, sample{value: r.Value, ok: r.OK})
	if len(w.buf) > w.size {
		w.buf = w.buf[1:]
	}
}

// Average returns the mean over the OK readings currently retained, and
// false when the window holds no usable value.
func (w *RollingWindow) Average() (float64, bool) {
	var sum float64
	var n int
	for _, s := range w.buf {
		if s.ok {
			sum += s.value
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// FaultStreak counts consecutive failed readings at the newest end of the
// window. Any OK reading resets it to zero.
func (w *RollingWindow) FaultStreak() int {
	streak := 0
	for i := len(w.buf) - 1; i >= 0; i-- {
		if w.buf[i].ok {
			break
		}
		streak++
	}
	return streak
}

func (w *RollingWindow) Len() int {
	return len(w.buf)
}

func (w *RollingWindow) Size() int {
	return w.size
}

// Resize changes the capacity, keeping the newest entries. Used when
// avg_samples is hot-reloaded.
func (w *RollingWindow) Resize(size int) {
	if size < 1 {
		size = 1
	}
	if size == w.size {
		return
	}
	w.size = size
	if len(w.buf) > size {
		w.buf = append([]sample{}, w.buf[len(w.buf)-size:]...)
	}
}
