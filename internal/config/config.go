package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultControllerEndpoint = "tcp://127.0.0.1:1670"
	DefaultControllerTimeout  = "2s"
	DefaultHostPort           = 1670
)

// ControllerConfig is the linfactl profile.
type ControllerConfig struct {
	Endpoint string `toml:"endpoint"`
	Timeout  string `toml:"timeout"`
	Retries  *int   `toml:"retries"`
}

// HostFile is the subset of the host config that configgen validates.
type HostFile struct {
	Port              int      `toml:"port"`
	ControlEndpoint   string   `toml:"control_endpoint"`
	PublishEndpoint   string   `toml:"publish_endpoint"`
	Publish           *bool    `toml:"publish"`
	DefinitionFile    string   `toml:"definition_file"`
	WatchDefinition   bool     `toml:"watch_definition"`
	SendTimeout       string   `toml:"send_timeout"`
	HeartbeatTick     string   `toml:"heartbeat_tick"`
	MaxHeartbeatDelay string   `toml:"max_heartbeat_delay"`
	PollInterval      string   `toml:"poll_interval"`
	TickInterval      string   `toml:"tick_interval"`
	AdminAddr         string   `toml:"admin_addr"`
	AdminCorsOrigins  []string `toml:"admin_cors_origins"`
}

func LoadControllerConfig(path string) (ControllerConfig, error) {
	var cfg ControllerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ControllerConfig{}, err
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultControllerEndpoint
	}
	if strings.TrimSpace(cfg.Timeout) == "" {
		cfg.Timeout = DefaultControllerTimeout
	}
	if err := ValidateControllerConfig(cfg); err != nil {
		return ControllerConfig{}, err
	}
	return cfg, nil
}

func LoadHostFile(path string) (HostFile, error) {
	var cfg HostFile
	if err := loadToml(path, &cfg); err != nil {
		return HostFile{}, err
	}
	if cfg.Port == 0 && cfg.ControlEndpoint == "" {
		cfg.Port = DefaultHostPort
	}
	if err := ValidateHostFile(cfg); err != nil {
		return HostFile{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateControllerConfig(cfg ControllerConfig) error {
	if !strings.HasPrefix(strings.TrimSpace(cfg.Endpoint), "tcp://") {
		return fmt.Errorf("controller config endpoint must be tcp://host:port, got %q", cfg.Endpoint)
	}
	if _, err := parsePositiveDuration("timeout", cfg.Timeout); err != nil {
		return err
	}
	if cfg.Retries != nil && *cfg.Retries < 0 {
		return fmt.Errorf("controller config retries must be >= 0")
	}
	return nil
}

func ValidateHostFile(cfg HostFile) error {
	if cfg.Port < 0 || cfg.Port > 65534 {
		return fmt.Errorf("host config port out of range: %d", cfg.Port)
	}
	if cfg.ControlEndpoint != "" && !strings.HasPrefix(cfg.ControlEndpoint, "tcp://") {
		return fmt.Errorf("host config control_endpoint must be tcp://host:port")
	}
	if cfg.WatchDefinition && strings.TrimSpace(cfg.DefinitionFile) == "" {
		return fmt.Errorf("host config watch_definition requires definition_file")
	}
	durations := map[string]string{
		"send_timeout":        cfg.SendTimeout,
		"heartbeat_tick":      cfg.HeartbeatTick,
		"max_heartbeat_delay": cfg.MaxHeartbeatDelay,
		"poll_interval":       cfg.PollInterval,
		"tick_interval":       cfg.TickInterval,
	}
	for key, raw := range durations {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := parsePositiveDuration(key, raw); err != nil {
			return err
		}
	}
	return nil
}

func parsePositiveDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
