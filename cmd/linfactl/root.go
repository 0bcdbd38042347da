package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/linfa/internal/client"
	"github.com/danmuck/linfa/internal/config"
	"github.com/danmuck/linfa/internal/logging"
	"github.com/danmuck/linfa/internal/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	endpoint   string
	configPath string
	timeout    time.Duration
	retries    int
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "linfactl",
		Short:         "Control a linfa executor host",
		Long:          "linfactl drives the lifecycle of a remote executor over the linfa control endpoint:\nquery status, start, stop, pause, resume and replace the definition while idle.",
		Version:       version.ServiceVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			logging.ConfigureRuntime()
			return validateOutput(opts.output)
		},
	}
	cmd.SetVersionTemplate("linfactl {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.endpoint, "endpoint", "", "control endpoint (default "+config.DefaultControllerEndpoint+")")
	flags.StringVar(&opts.configPath, "config", "", "controller profile (toml)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-attempt request timeout")
	flags.IntVar(&opts.retries, "retries", -1, "retries after a timed-out attempt")
	flags.StringVarP(&opts.output, "output", "o", "text", "output format: text|json|yaml")

	cmd.AddCommand(
		newStatusCmd(opts),
		newLifecycleCmd(opts, "start", "Request the executor to start"),
		newLifecycleCmd(opts, "stop", "Request the executor to stop"),
		newLifecycleCmd(opts, "pause", "Request the executor to pause"),
		newLifecycleCmd(opts, "resume", "Request the executor to resume"),
		newGetDefinitionCmd(opts),
		newSetDefinitionCmd(opts),
		newVersionCmd(opts),
	)
	return cmd
}

// clientConfig merges the profile, then flags, over the defaults.
func (o *globalOptions) clientConfig(cmd *cobra.Command) (client.Config, error) {
	profile := config.ControllerConfig{Endpoint: config.DefaultControllerEndpoint}
	if o.configPath != "" {
		loaded, err := config.LoadControllerConfig(o.configPath)
		if err != nil {
			return client.Config{}, err
		}
		profile = loaded
	}
	cfg, err := profile.ClientConfig()
	if err != nil {
		return client.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = o.endpoint
	}
	if flags.Changed("timeout") {
		if o.timeout <= 0 {
			return client.Config{}, fmt.Errorf("--timeout must be positive")
		}
		cfg.RequestTimeout = o.timeout
	}
	if flags.Changed("retries") {
		if o.retries < 0 {
			return client.Config{}, fmt.Errorf("--retries must be >= 0")
		}
		cfg.Retries = o.retries
	}
	return cfg, nil
}

func (o *globalOptions) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	cfg, err := o.clientConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := client.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}
