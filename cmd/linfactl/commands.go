package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/linfa/internal/client"
	"github.com/danmuck/linfa/internal/protocol"
	"github.com/spf13/cobra"
)

type statusResult struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Status   string `json:"status" yaml:"status"`
}

type ackResult struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Request  string `json:"request" yaml:"request"`
	Status   string `json:"status" yaml:"status"`
}

type definitionResult struct {
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Definition string `json:"definition" yaml:"definition"`
}

type versionResult struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Service  string `json:"service" yaml:"service"`
	Executor string `json:"executor" yaml:"executor"`
}

func (r statusResult) Text() string     { return r.Status }
func (r definitionResult) Text() string { return r.Definition }
func (r versionResult) Text() string {
	return fmt.Sprintf("service  %s\nexecutor %s", r.Service, r.Executor)
}
func (r ackResult) Text() string {
	return fmt.Sprintf("%s sent, status %s", r.Request, r.Status)
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the executor status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, statusResult{Endpoint: c.Endpoint(), Status: st.String()})
			})
		},
	}
}

// newLifecycleCmd builds start, stop, pause and resume. Requests that do not
// apply in the current status are accepted silently by the host, so the
// reply includes a fresh status read.
func newLifecycleCmd(opts *globalOptions, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := protocol.ParseRequestType(name)
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if _, err := c.Do(ctx, req); err != nil {
					return resyncError(ctx, c, err)
				}
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, ackResult{Endpoint: c.Endpoint(), Request: name, Status: st.String()})
			})
		},
	}
}

// resyncError reads the status after a lost reply so the operator sees whether
// the request took effect.
func resyncError(ctx context.Context, c *client.Client, err error) error {
	if !errors.Is(err, client.ErrOutcomeUnknown) {
		return err
	}
	st, serr := c.Status(ctx)
	if serr != nil {
		return errors.Join(err, serr)
	}
	return fmt.Errorf("%w (status now %s)", err, st)
}

func newGetDefinitionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-definition",
		Short: "Print the current task definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				def, err := c.Definition(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, definitionResult{Endpoint: c.Endpoint(), Definition: def})
			})
		},
	}
}

func newSetDefinitionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-definition <file>",
		Short: "Replace the task definition (executor must be IDLE)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read definition: %w", err)
			}
			return opts.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.SetDefinition(ctx, string(raw)); err != nil {
					return resyncError(ctx, c, err)
				}
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, ackResult{Endpoint: c.Endpoint(), Request: "set_definition", Status: st.String()})
			})
		},
	}
}

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the remote service and executor versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				svc, err := c.ServiceVersion(ctx)
				if err != nil {
					return err
				}
				exec, err := c.ExecutorVersion(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, versionResult{Endpoint: c.Endpoint(), Service: svc, Executor: exec})
			})
		},
	}
}
