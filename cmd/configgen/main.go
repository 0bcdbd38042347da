package main

import (
	"flag"

	"github.com/danmuck/linfa/internal/config"
	"github.com/danmuck/linfa/internal/observability"
	"github.com/rs/zerolog/log"
)

func defaultPath(kind string) string {
	switch kind {
	case "host":
		return "cmd/linfa-host/config.toml"
	case "controller":
		return "linfactl.toml"
	default:
		log.Fatal().Str("kind", kind).Msg("unknown kind")
		return ""
	}
}

func main() {
	kind := flag.String("kind", "host", "config kind: host|controller")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()
	observability.InitLogger("configgen")

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}

		switch *kind {
		case "host":
			if _, err := config.LoadHostFile(path); err != nil {
				log.Fatal().Err(err).Msg("configgen failed")
			}
		case "controller":
			if _, err := config.LoadControllerConfig(path); err != nil {
				log.Fatal().Err(err).Msg("configgen failed")
			}
		default:
			log.Fatal().Str("kind", *kind).Msg("unknown kind")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("config validated")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("configgen failed")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("config template written")
}
