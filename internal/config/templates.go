package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "host":
		return hostTemplate, nil
	case "controller":
		return controllerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const hostTemplate = `port = 1670
publish = true
definition_file = "tree.xml"
watch_definition = false
send_timeout = "1s"
heartbeat_tick = "10ms"
max_heartbeat_delay = "5s"
poll_interval = "100ms"
tick_interval = "2s"
admin_addr = ""
admin_cors_origins = ["http://localhost:3000"]
`

const controllerTemplate = `endpoint = "tcp://127.0.0.1:1670"
timeout = "2s"
retries = 2
`
