// Package lifecycle holds the executor status and the controller transition table.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/linfa/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrInvalidStatus = errors.New("lifecycle: invalid status")

// Origin identifies who caused a transition.
type Origin string

const (
	OriginController Origin = "controller"
	OriginHost       Origin = "host"
)

// Transition describes one status change attempt.
type Transition struct {
	From    protocol.Status
	To      protocol.Status
	Request protocol.RequestType
	Origin  Origin
	Changed bool
}

func (t Transition) String() string {
	return t.From.String() + "->" + t.To.String()
}

// Next applies the controller transition table. Pairs outside the table
// return current and false.
func Next(current protocol.Status, req protocol.RequestType) (protocol.Status, bool) {
	switch req {
	case protocol.Start:
		return protocol.StatusStarting, current != protocol.StatusStarting
	case protocol.Stop:
		if current == protocol.StatusRunning || current == protocol.StatusPaused {
			return protocol.StatusStopping, true
		}
	case protocol.Pause:
		if current == protocol.StatusRunning {
			return protocol.StatusPaused, true
		}
	case protocol.Resume:
		if current == protocol.StatusPaused {
			return protocol.StatusRunning, true
		}
	}
	return current, false
}

// Machine is the single authoritative status value. It is shared by the
// server loop and the host and is safe for concurrent use.
type Machine struct {
	status atomic.Uint32

	hookMu       sync.RWMutex
	onTransition func(Transition)
}

func NewMachine() *Machine {
	m := &Machine{}
	m.status.Store(uint32(protocol.StatusIdle))
	return m
}

func (m *Machine) Load() protocol.Status {
	return protocol.Status(m.status.Load())
}

// OnTransition installs fn, called after every effective change.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.hookMu.Lock()
	m.onTransition = fn
	m.hookMu.Unlock()
}

// Apply runs req through the transition table. Requests that do not apply in
// the current status leave it unchanged and return Changed=false.
func (m *Machine) Apply(req protocol.RequestType) Transition {
	for {
		cur := m.Load()
		next, ok := Next(cur, req)
		tr := Transition{From: cur, To: next, Request: req, Origin: OriginController, Changed: ok}
		if !ok {
			log.Debug().
				Str("status", cur.String()).
				Str("request", req.String()).
				Msg("lifecycle.Apply no-op")
			return tr
		}
		if m.status.CompareAndSwap(uint32(cur), uint32(next)) {
			m.notify(tr)
			return tr
		}
	}
}

// Set stores s unconditionally. It is the host-side confirmation path.
func (m *Machine) Set(s protocol.Status) (Transition, error) {
	if !s.Valid() {
		return Transition{}, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(s))
	}
	prev := protocol.Status(m.status.Swap(uint32(s)))
	tr := Transition{From: prev, To: s, Origin: OriginHost, Changed: prev != s}
	if tr.Changed {
		m.notify(tr)
	}
	return tr, nil
}

// Confirm moves the status from one host-owned state to the next only if the
// status is still from. A controller request that landed in between wins and
// Confirm reports false with the status it found.
func (m *Machine) Confirm(from, to protocol.Status) (Transition, bool, error) {
	if !from.Valid() || !to.Valid() {
		return Transition{}, false, fmt.Errorf("%w: %d->%d", ErrInvalidStatus, uint8(from), uint8(to))
	}
	if !m.status.CompareAndSwap(uint32(from), uint32(to)) {
		cur := m.Load()
		log.Debug().
			Str("expected", from.String()).
			Str("status", cur.String()).
			Str("to", to.String()).
			Msg("lifecycle.Confirm superseded")
		return Transition{From: cur, To: cur, Origin: OriginHost}, false, nil
	}
	tr := Transition{From: from, To: to, Origin: OriginHost, Changed: from != to}
	if tr.Changed {
		m.notify(tr)
	}
	return tr, true, nil
}

func (m *Machine) notify(tr Transition) {
	log.Debug().
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Str("origin", string(tr.Origin)).
		Msg("lifecycle transition")
	m.hookMu.RLock()
	fn := m.onTransition
	m.hookMu.RUnlock()
	if fn != nil {
		fn(tr)
	}
}
