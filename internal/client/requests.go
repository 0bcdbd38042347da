package client

import (
	"context"

	"github.com/danmuck/linfa/internal/protocol"
)

// Status queries the executor status.
func (c *Client) Status(ctx context.Context) (protocol.Status, error) {
	reply, err := c.Do(ctx, protocol.GetStatus)
	if err != nil {
		return 0, err
	}
	return protocol.ParseStatus(reply.Text())
}

func (c *Client) Start(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Start)
	return err
}

func (c *Client) Stop(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Stop)
	return err
}

func (c *Client) Pause(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Pause)
	return err
}

func (c *Client) Resume(ctx context.Context) error {
	_, err := c.Do(ctx, protocol.Resume)
	return err
}

// SetDefinition replaces the task definition. The service rejects it unless IDLE.
func (c *Client) SetDefinition(ctx context.Context, definition string) error {
	_, err := c.Do(ctx, protocol.SetDefinition, []byte(definition))
	return err
}

func (c *Client) Definition(ctx context.Context) (string, error) {
	reply, err := c.Do(ctx, protocol.GetDefinition)
	if err != nil {
		return "", err
	}
	return reply.Text(), nil
}

func (c *Client) ServiceVersion(ctx context.Context) (string, error) {
	reply, err := c.Do(ctx, protocol.GetServiceVersion)
	if err != nil {
		return "", err
	}
	return reply.Text(), nil
}

func (c *Client) ExecutorVersion(ctx context.Context) (string, error) {
	reply, err := c.Do(ctx, protocol.GetExecutorVersion)
	if err != nil {
		return "", err
	}
	return reply.Text(), nil
}
