// Package host drives an executor from the manager status: it completes the
// STARTING and STOPPING handshakes and ticks the executor while RUNNING.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/linfa/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultTickInterval = 100 * time.Millisecond
)

// Executor runs the task definition.
type Executor interface {
	// Load rebuilds the executor from a definition.
	Load(definition string) error
	// Tick runs the loaded task once.
	Tick(ctx context.Context) error
	// Flush releases per-run state before returning to IDLE.
	Flush() error
}

// Service is the host side of the manager.
type Service interface {
	Status() protocol.Status
	// ConfirmStatus moves from->to only if the status is still from.
	ConfirmStatus(from, to protocol.Status) (bool, error)
	Definition() string
}

type RunnerConfig struct {
	// PollInterval is the wait between status checks while IDLE or PAUSED.
	PollInterval time.Duration
	// TickInterval is the wait between executor ticks while RUNNING.
	TickInterval time.Duration
}

func (c RunnerConfig) WithDefaults() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

type Runner struct {
	svc  Service
	exec Executor
	cfg  RunnerConfig
}

func NewRunner(svc Service, exec Executor, cfg RunnerConfig) *Runner {
	return &Runner{svc: svc, exec: exec, cfg: cfg.WithDefaults()}
}

// Step observes the status once and performs the matching host action. The
// returned duration is how long the caller should wait before the next step.
func (r *Runner) Step(ctx context.Context) (time.Duration, error) {
	status := r.svc.Status()
	switch status {
	case protocol.StatusIdle, protocol.StatusPaused:
		return r.cfg.PollInterval, nil

	case protocol.StatusStarting:
		def := r.svc.Definition()
		if err := r.exec.Load(def); err != nil {
			log.Error().Err(err).Int("bytes", len(def)).Msg("host.Runner load failed, returning to idle")
			return 0, errors.Join(err, r.confirm(protocol.StatusStarting, protocol.StatusIdle))
		}
		log.Info().Int("bytes", len(def)).Msg("host.Runner definition loaded")
		return 0, r.confirm(protocol.StatusStarting, protocol.StatusRunning)

	case protocol.StatusRunning:
		if err := r.exec.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("host.Runner tick failed")
		}
		return r.cfg.TickInterval, nil

	case protocol.StatusStopping:
		if err := r.exec.Flush(); err != nil {
			log.Warn().Err(err).Msg("host.Runner flush failed")
		}
		log.Info().Msg("host.Runner stopped")
		return 0, r.confirm(protocol.StatusStopping, protocol.StatusIdle)
	}

	log.Warn().Uint8("status", uint8(status)).Msg("host.Runner unhandled status")
	return r.cfg.PollInterval, nil
}

// confirm completes a handshake step. When a controller request moved the
// status in the meantime the step is dropped and the next Step observes it.
func (r *Runner) confirm(from, to protocol.Status) error {
	ok, err := r.svc.ConfirmStatus(from, to)
	if err != nil {
		return err
	}
	if !ok {
		log.Info().
			Str("expected", from.String()).
			Str("status", r.svc.Status().String()).
			Msg("host.Runner handshake superseded by controller")
	}
	return nil
}

// Run steps until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		wait, err := r.Step(ctx)
		if err != nil {
			log.Error().Err(err).Msg("host.Runner step failed")
		}
		if wait <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
