package session

import (
	"sync"
	"time"
)

type IdleConfig struct {
	// Grace is the silent wait before the visible countdown starts.
	Grace time.Duration
	Tick  time.Duration
	Ticks int
}

func (c IdleConfig) withDefaults() IdleConfig {
	if c.Grace <= 0 {
		c.Grace = 10 * time.Second
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.Ticks <= 0 {
		c.Ticks = 10
	}
	return c
}

// Total is the time from Reset to expiry when nothing interrupts the sequence.
func (c IdleConfig) Total() time.Duration {
	return c.Grace + time.Duration(c.Ticks)*c.Tick
}

// IdleTimer runs a silent grace period followed by a countdown of Ticks steps.
// Every Reset starts a new generation; callbacks receive the generation they
// were scheduled under so the owner can drop stale fires. Callbacks run
// without the timer's lock held.
type IdleTimer struct {
	cfg      IdleConfig
	onTick   func(gen uint64, remaining int)
	onExpire func(gen uint64)

	mu    sync.Mutex
	gen   uint64
	armed bool
	timer *time.Timer
}

func NewIdleTimer(cfg IdleConfig, onTick func(gen uint64, remaining int), onExpire func(gen uint64)) *IdleTimer {
	if onTick == nil {
		onTick = func(uint64, int) {}
	}
	if onExpire == nil {
		onExpire = func(uint64) {}
	}
	return &IdleTimer{
		cfg:      cfg.withDefaults(),
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Reset cancels any running sequence and starts a new one.
func (t *IdleTimer) Reset() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.armed = true
	t.timer = time.AfterFunc(t.cfg.Grace, func() { t.fire(gen, t.cfg.Ticks) })
	return gen
}

func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.gen++
}

func (t *IdleTimer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
}

func (t *IdleTimer) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed && t.gen == gen
}

func (t *IdleTimer) fire(gen uint64, remaining int) {
	if remaining <= 0 {
		t.mu.Lock()
		if !t.armed || t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.armed = false
		t.timer = nil
		t.mu.Unlock()
		t.onExpire(gen)
		return
	}

	if !t.current(gen) {
		return
	}
	t.onTick(gen, remaining)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed || t.gen != gen {
		return
	}
	t.timer = time.AfterFunc(t.cfg.Tick, func() { t.fire(gen, remaining-1) })
}
