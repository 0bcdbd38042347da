// Package heartbeat derives controller liveness from the time of the last
// received request.
package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTick     = 10 * time.Millisecond
	DefaultMaxDelay = 5000 * time.Millisecond
)

// Monitor is safe for concurrent use. Touch is called by the server loop,
// Run by its own goroutine, and the getters by the host.
type Monitor struct {
	tick time.Duration
	now  func() time.Time

	lastActivity atomic.Int64
	maxDelay     atomic.Int64
	connected    atomic.Bool

	hookMu   sync.RWMutex
	onChange func(connected bool)
}

// NewMonitor starts connected with the current time as last activity.
// Non-positive durations fall back to the defaults.
func NewMonitor(tick, maxDelay time.Duration) *Monitor {
	if tick <= 0 {
		tick = DefaultTick
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	m := &Monitor{tick: tick, now: time.Now}
	m.lastActivity.Store(m.now().UnixNano())
	m.maxDelay.Store(int64(maxDelay))
	m.connected.Store(true)
	return m
}

// Touch records activity at the current time.
func (m *Monitor) Touch() {
	m.lastActivity.Store(m.now().UnixNano())
}

func (m *Monitor) LastActivity() time.Time {
	return time.Unix(0, m.lastActivity.Load())
}

func (m *Monitor) SetMaxDelay(d time.Duration) {
	if d <= 0 {
		d = DefaultMaxDelay
	}
	m.maxDelay.Store(int64(d))
}

func (m *Monitor) MaxDelay() time.Duration {
	return time.Duration(m.maxDelay.Load())
}

func (m *Monitor) Connected() bool {
	return m.connected.Load()
}

func (m *Monitor) Tick() time.Duration {
	return m.tick
}

// OnChange installs fn, called from the monitor goroutine on every edge.
func (m *Monitor) OnChange(fn func(connected bool)) {
	m.hookMu.Lock()
	m.onChange = fn
	m.hookMu.Unlock()
}

// Check recomputes liveness at now and reports the result.
func (m *Monitor) Check(now time.Time) bool {
	idle := now.Sub(time.Unix(0, m.lastActivity.Load()))
	connected := idle < m.MaxDelay()
	if m.connected.Swap(connected) != connected {
		log.Info().
			Bool("connected", connected).
			Dur("idle", idle).
			Dur("max_delay", m.MaxDelay()).
			Msg("heartbeat liveness changed")
		m.hookMu.RLock()
		fn := m.onChange
		m.hookMu.RUnlock()
		if fn != nil {
			fn(connected)
		}
	}
	return connected
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(m.now())
		}
	}
}
