package config

import (
	"github.com/danmuck/linfa/internal/client"
	"github.com/danmuck/linfa/internal/protocol/session"
)

// ClientConfig turns the profile into a client config on top of the session defaults.
func (c ControllerConfig) ClientConfig() (client.Config, error) {
	out := client.Config{
		Endpoint:     c.Endpoint,
		ClientConfig: session.DefaultClientConfig(),
	}
	if c.Timeout != "" {
		d, err := parsePositiveDuration("timeout", c.Timeout)
		if err != nil {
			return client.Config{}, err
		}
		out.RequestTimeout = d
	}
	if c.Retries != nil {
		out.Retries = *c.Retries
	}
	return out, nil
}
