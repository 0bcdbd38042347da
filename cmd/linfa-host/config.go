package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/linfa/internal/host"
	"github.com/danmuck/linfa/internal/manager"
)

const defaultPort = 1670

type fileConfig struct {
	Port                int      `toml:"port"`
	ControlEndpoint     string   `toml:"control_endpoint"`
	PublishEndpoint     string   `toml:"publish_endpoint"`
	Publish             bool     `toml:"publish"`
	DefinitionFile      string   `toml:"definition_file"`
	WatchDefinition     bool     `toml:"watch_definition"`
	SendTimeout         string   `toml:"send_timeout"`
	HeartbeatTick       string   `toml:"heartbeat_tick"`
	MaxHeartbeatDelay   string   `toml:"max_heartbeat_delay"`
	MaxHeartbeatDelayMS int64    `toml:"max_heartbeat_delay_ms"`
	PollInterval        string   `toml:"poll_interval"`
	TickInterval        string   `toml:"tick_interval"`
	AdminAddr           string   `toml:"admin_addr"`
	AdminCorsOrigins    []string `toml:"admin_cors_origins"`
}

type hostConfig struct {
	Manager          manager.Config
	Runner           host.RunnerConfig
	DefinitionFile   string
	WatchDefinition  bool
	AdminAddr        string
	AdminCorsOrigins []string
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		Manager: manager.DefaultConfig(defaultPort),
		Runner:  host.RunnerConfig{}.WithDefaults(),
	}
}

func loadHostConfig(path string) (hostConfig, error) {
	cfg := defaultHostConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return hostConfig{}, fmt.Errorf("load host config: %w", err)
	}

	if meta.IsDefined("port") {
		if raw.Port <= 0 || raw.Port > 65534 {
			return hostConfig{}, fmt.Errorf("port out of range: %d", raw.Port)
		}
		ports := manager.DefaultConfig(raw.Port)
		cfg.Manager.ControlEndpoint = ports.ControlEndpoint
		cfg.Manager.PublishEndpoint = ports.PublishEndpoint
	}

	if meta.IsDefined("control_endpoint") {
		cfg.Manager.ControlEndpoint = strings.TrimSpace(raw.ControlEndpoint)
	}

	if meta.IsDefined("publish_endpoint") {
		cfg.Manager.PublishEndpoint = strings.TrimSpace(raw.PublishEndpoint)
	}

	if meta.IsDefined("publish") && !raw.Publish {
		cfg.Manager.PublishEndpoint = ""
	}

	if meta.IsDefined("definition_file") {
		cfg.DefinitionFile = strings.TrimSpace(raw.DefinitionFile)
	}

	if meta.IsDefined("watch_definition") {
		cfg.WatchDefinition = raw.WatchDefinition
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"send_timeout", raw.SendTimeout, &cfg.Manager.Session.SendTimeout},
		{"heartbeat_tick", raw.HeartbeatTick, &cfg.Manager.Session.HeartbeatTick},
		{"max_heartbeat_delay", raw.MaxHeartbeatDelay, &cfg.Manager.Session.MaxHeartbeatDelay},
		{"poll_interval", raw.PollInterval, &cfg.Runner.PollInterval},
		{"tick_interval", raw.TickInterval, &cfg.Runner.TickInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return hostConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_heartbeat_delay_ms") {
		cfg.Manager.Session.MaxHeartbeatDelay = time.Duration(raw.MaxHeartbeatDelayMS) * time.Millisecond
	}

	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}

	if meta.IsDefined("admin_cors_origins") {
		cfg.AdminCorsOrigins = normalizeOrigins(raw.AdminCorsOrigins)
	}

	if cfg.WatchDefinition && cfg.DefinitionFile == "" {
		return hostConfig{}, fmt.Errorf("watch_definition requires definition_file")
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
