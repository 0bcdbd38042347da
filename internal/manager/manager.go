// Package manager exposes the control service to the host application. A
// Manager owns the lifecycle status, the task definition, the control server
// loop, the heartbeat monitor and an optional transition publisher.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/linfa/internal/heartbeat"
	"github.com/danmuck/linfa/internal/lifecycle"
	"github.com/danmuck/linfa/internal/observability"
	"github.com/danmuck/linfa/internal/protocol"
	"github.com/danmuck/linfa/internal/protocol/session"
	"github.com/danmuck/linfa/internal/version"
	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 16

type Config struct {
	ControlEndpoint string
	// PublishEndpoint is empty to disable the publisher.
	PublishEndpoint string
	Session         session.ServerConfig
	Versions        Versions
}

// DefaultConfig binds the control endpoint on port and the publisher on port+1.
func DefaultConfig(port int) Config {
	return Config{
		ControlEndpoint: fmt.Sprintf("tcp://0.0.0.0:%d", port),
		PublishEndpoint: fmt.Sprintf("tcp://0.0.0.0:%d", port+1),
		Session:         session.DefaultServerConfig(),
		Versions: Versions{
			Service:  version.ServiceVersion(),
			Executor: version.ExecutorVersion(),
		},
	}
}

type Manager struct {
	machine    *lifecycle.Machine
	monitor    *heartbeat.Monitor
	defs       *DefinitionStore
	server     *Server
	publisher  *Publisher
	dispatcher *Dispatcher

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	subsMu  sync.Mutex
	subs    map[int]chan lifecycle.Transition
	nextSub int
	closed  bool
}

// New starts a Manager in IDLE with the default endpoints for port.
func New(definition string, port int) (*Manager, error) {
	return NewWithConfig(definition, DefaultConfig(port))
}

func NewWithConfig(definition string, cfg Config) (*Manager, error) {
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.ControlEndpoint == "" {
		return nil, fmt.Errorf("manager: control endpoint required")
	}
	if cfg.Versions.Service == "" {
		cfg.Versions.Service = version.ServiceVersion()
	}
	if cfg.Versions.Executor == "" {
		cfg.Versions.Executor = version.ExecutorVersion()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		machine: lifecycle.NewMachine(),
		monitor: heartbeat.NewMonitor(cfg.Session.HeartbeatTick, cfg.Session.MaxHeartbeatDelay),
		defs:    NewDefinitionStore(definition),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[int]chan lifecycle.Transition),
	}
	m.dispatcher = NewDispatcher(m.machine, m.defs, cfg.Versions)

	server, err := NewServer(ctx, cfg.ControlEndpoint, m.dispatcher, m.monitor.Touch, cfg.Session.SendTimeout)
	if err != nil {
		cancel()
		return nil, err
	}
	m.server = server

	if cfg.PublishEndpoint != "" {
		pub, err := NewPublisher(ctx, cfg.PublishEndpoint, cfg.Session.SendTimeout)
		if err != nil {
			cancel()
			_ = server.Close()
			return nil, err
		}
		m.publisher = pub
	}

	m.machine.OnTransition(m.onTransition)
	m.monitor.OnChange(m.onLiveness)
	observability.RecordTransition("", m.machine.Load().String())
	observability.SetHeartbeatConnected(m.monitor.Connected())

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.server.Run(ctx)
	}()
	go func() {
		defer m.wg.Done()
		m.monitor.Run(ctx)
	}()

	log.Info().
		Str("control", m.ControlAddr()).
		Str("publish", m.PublishAddr()).
		Dur("max_heartbeat_delay", m.monitor.MaxDelay()).
		Msg("manager started")
	return m, nil
}

func (m *Manager) Status() protocol.Status {
	return m.machine.Load()
}

// SetStatus stores s unconditionally. Handshake steps that must not override a
// controller request go through ConfirmStatus.
func (m *Manager) SetStatus(s protocol.Status) error {
	_, err := m.machine.Set(s)
	return err
}

// ConfirmStatus completes a host handshake step only if the status is still
// from. It returns false when a controller request changed it first.
func (m *Manager) ConfirmStatus(from, to protocol.Status) (bool, error) {
	_, ok, err := m.machine.Confirm(from, to)
	return ok, err
}

func (m *Manager) Definition() string {
	return m.defs.Load()
}

// SetDefinition replaces the definition; it fails unless the status is IDLE.
func (m *Manager) SetDefinition(text string) error {
	return m.defs.Replace(m.machine, text)
}

func (m *Manager) SetMaxHeartbeatDelay(d time.Duration) {
	m.monitor.SetMaxDelay(d)
}

func (m *Manager) MaxHeartbeatDelay() time.Duration {
	return m.monitor.MaxDelay()
}

// Connected reports whether a controller request arrived within the max delay.
func (m *Manager) Connected() bool {
	return m.monitor.Connected()
}

func (m *Manager) LastActivity() time.Time {
	return m.monitor.LastActivity()
}

func (m *Manager) ControlAddr() string {
	return m.server.Addr()
}

// PublishAddr is empty when the publisher is disabled.
func (m *Manager) PublishAddr() string {
	if m.publisher == nil {
		return ""
	}
	return m.publisher.Addr()
}

// Subscribe returns a channel of effective status transitions and a cancel
// func. Slow subscribers miss transitions rather than block the caller.
func (m *Manager) Subscribe() (<-chan lifecycle.Transition, func()) {
	ch := make(chan lifecycle.Transition, subscriberBuffer)
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// Close stops both loops, closes the sockets and waits for the goroutines.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.cancel()
		if cerr := m.server.Close(); cerr != nil {
			err = cerr
		}
		if cerr := m.publisher.Close(); cerr != nil && err == nil {
			err = cerr
		}
		m.wg.Wait()

		m.subsMu.Lock()
		m.closed = true
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
		m.subsMu.Unlock()
		log.Info().Msg("manager closed")
	})
	return err
}

func (m *Manager) onTransition(tr lifecycle.Transition) {
	log.Info().
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Str("origin", string(tr.Origin)).
		Msg("manager status changed")
	observability.RecordTransition(tr.From.String(), tr.To.String())
	m.publisher.Publish(TopicStatus, tr.String())

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- tr:
		default:
			log.Warn().Int("subscriber", id).Str("transition", tr.String()).Msg("manager subscriber full, transition dropped")
		}
	}
}

func (m *Manager) onLiveness(connected bool) {
	observability.SetHeartbeatConnected(connected)
	body := "disconnected"
	if connected {
		body = "connected"
	}
	m.publisher.Publish(TopicHeartbeat, body)
}
