package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/linfa/internal/admin"
	"github.com/danmuck/linfa/internal/host"
	"github.com/danmuck/linfa/internal/manager"
	"github.com/danmuck/linfa/internal/observability"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "linfa-host: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "host config path (toml)")
	definitionPath := flag.String("definition", "", "definition file, overrides definition_file")
	flag.Parse()

	envErr := godotenv.Load()
	observability.InitLogger("linfa-host")
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn().Err(envErr).Msg(".env not loaded")
	}

	cfg := defaultHostConfig()
	if *configPath != "" {
		loaded, err := loadHostConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *definitionPath != "" {
		cfg.DefinitionFile = *definitionPath
	}

	definition := demoDefinition
	if cfg.DefinitionFile != "" {
		raw, err := os.ReadFile(cfg.DefinitionFile)
		if err != nil {
			return fmt.Errorf("read definition: %w", err)
		}
		definition = string(raw)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := manager.NewWithConfig(definition, cfg.Manager)
	if err != nil {
		return err
	}
	defer mgr.Close()

	transitions, unsubscribe := mgr.Subscribe()
	defer unsubscribe()
	go func() {
		for tr := range transitions {
			log.Debug().Str("transition", tr.String()).Str("origin", string(tr.Origin)).Msg("linfa-host observed transition")
		}
	}()

	errCh := make(chan error, 2)
	if cfg.AdminAddr != "" {
		srv := admin.New(cfg.AdminAddr, mgr, cfg.Manager.Versions, cfg.AdminCorsOrigins)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				errCh <- fmt.Errorf("admin: %w", err)
			}
		}()
	}
	if cfg.WatchDefinition {
		go func() {
			if err := host.WatchDefinitionFile(ctx, mgr, cfg.DefinitionFile); err != nil {
				errCh <- fmt.Errorf("watch definition: %w", err)
			}
		}()
	}

	runner := host.NewRunner(mgr, &demoExecutor{}, cfg.Runner)
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	log.Info().
		Str("control", mgr.ControlAddr()).
		Str("publish", mgr.PublishAddr()).
		Str("admin", cfg.AdminAddr).
		Msg("linfa-host ready")

	select {
	case err := <-errCh:
		stop()
		<-runErr
		return err
	case <-runErr:
		log.Info().Msg("linfa-host shutting down")
		return nil
	}
}
