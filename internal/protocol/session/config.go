package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// ServerConfig defines the service side of the control session.
type ServerConfig struct {
	// SendTimeout bounds one reply write.
	SendTimeout time.Duration
	// HeartbeatTick is the liveness recompute interval.
	HeartbeatTick time.Duration
	// MaxHeartbeatDelay is the silence after which the controller counts as gone.
	MaxHeartbeatDelay time.Duration
}

// ClientConfig defines the controller side of the control session.
type ClientConfig struct {
	RequestTimeout time.Duration
	Retries        int
	Backoff        BackoffConfig
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		SendTimeout:       1000 * time.Millisecond,
		HeartbeatTick:     10 * time.Millisecond,
		MaxHeartbeatDelay: 5000 * time.Millisecond,
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout: 2 * time.Second,
		Retries:        2,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero durations from DefaultServerConfig.
func (c ServerConfig) WithDefaults() ServerConfig {
	def := DefaultServerConfig()
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	if c.HeartbeatTick <= 0 {
		c.HeartbeatTick = def.HeartbeatTick
	}
	if c.MaxHeartbeatDelay <= 0 {
		c.MaxHeartbeatDelay = def.MaxHeartbeatDelay
	}
	return c
}

// WithDefaults fills zero values from DefaultClientConfig. Negative retries mean none.
func (c ClientConfig) WithDefaults() ClientConfig {
	def := DefaultClientConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
