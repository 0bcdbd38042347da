// Package client is the controller side of the control protocol: a ZeroMQ
// REQ socket that sends one request at a time and validates the reply.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/linfa/internal/protocol"
	"github.com/danmuck/linfa/internal/protocol/frame"
	"github.com/danmuck/linfa/internal/protocol/schema"
	"github.com/danmuck/linfa/internal/protocol/session"
	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"
)

var (
	ErrEchoMismatch    = errors.New("client: reply does not echo request header")
	ErrUndefinedType   = errors.New("client: refusing to send undefined request type")
	ErrUnexpectedReply = errors.New("client: unexpected reply shape")
	ErrClosed          = errors.New("client: closed")
	// ErrOutcomeUnknown wraps a lost reply to a mutating request. The request
	// may have been applied; callers resync with GET_STATUS.
	ErrOutcomeUnknown = errors.New("client: reply lost, request outcome unknown")
)

// RemoteError is an error reply from the service.
type RemoteError struct {
	// Header is nil when the service could not decode the request header.
	Header  *frame.Header
	Message string
}

func (e *RemoteError) Error() string {
	if e.Header == nil {
		return "remote: " + e.Message
	}
	return fmt.Sprintf("remote: request=%s id=%d: %s", e.Header.Type, e.Header.UniqueID, e.Message)
}

type Config struct {
	Endpoint string
	session.ClientConfig
}

// Reply is a successful reply: the echoed header and the payload parts.
type Reply struct {
	Header  frame.Header
	Payload [][]byte
}

// Text returns the first payload part as a string.
func (r Reply) Text() string {
	if len(r.Payload) == 0 {
		return ""
	}
	return string(r.Payload[0])
}

type Client struct {
	cfg Config
	rng *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
	sock   zmq4.Socket
	closed bool
}

// Dial connects a REQ socket to cfg.Endpoint.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("client: endpoint required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg.ClientConfig = cfg.ClientConfig.WithDefaults()
	c := &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := c.redial(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// redial replaces the socket. A REQ socket that missed a reply cannot send
// again, so every timeout discards it.
func (c *Client) redial() error {
	if c.sock != nil {
		_ = c.sock.Close()
		c.cancel()
	}
	sockCtx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewReq(sockCtx, zmq4.WithDialerRetry(c.cfg.RequestTimeout/4), zmq4.WithTimeout(c.cfg.RequestTimeout))
	if err := sock.Dial(c.cfg.Endpoint); err != nil {
		_ = sock.Close()
		cancel()
		c.sock = nil
		return fmt.Errorf("client: dial %s: %w", c.cfg.Endpoint, err)
	}
	c.cancel, c.sock = cancel, sock
	log.Debug().Str("endpoint", c.cfg.Endpoint).Msg("client.Dial connected")
	return nil
}

// Do sends one request of type t with optional payload parts and returns the
// validated reply. Timeouts on read-only requests are retried on a fresh
// socket with backoff. Mutating requests are sent once.
func (c *Client) Do(ctx context.Context, t protocol.RequestType, payload ...[]byte) (Reply, error) {
	req, ok := schema.Lookup(t)
	if !t.Valid() || !ok {
		return Reply{}, fmt.Errorf("%w: %d", ErrUndefinedType, uint8(t))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Reply{}, ErrClosed
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := session.WaitBackoff(ctx, c.cfg.Backoff, attempt, c.rng); err != nil {
				return Reply{}, err
			}
		}
		if c.sock == nil {
			if err := c.redial(); err != nil {
				lastErr = err
				continue
			}
		}

		reply, err := c.attempt(ctx, req, payload)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return Reply{}, err
		}
		if req.Mutates {
			c.discard()
			log.Warn().Err(err).Str("request", t.String()).Msg("client.Do mutating request not retried")
			return Reply{}, fmt.Errorf("%w: %w", ErrOutcomeUnknown, err)
		}
		log.Warn().
			Err(err).
			Str("request", t.String()).
			Int("attempt", attempt+1).
			Int("retries", c.cfg.Retries).
			Msg("client.Do attempt failed")
		c.discard()
	}
	return Reply{}, lastErr
}

func (c *Client) attempt(ctx context.Context, req schema.Requirement, payload [][]byte) (Reply, error) {
	t := req.Type
	hdr := frame.NewRequestHeader(t)
	parts := append([][]byte{frame.EncodeHeader(hdr)}, payload...)

	type result struct {
		msg zmq4.Msg
		err error
	}
	done := make(chan result, 1)
	sock := c.sock
	go func() {
		if err := sock.Send(zmq4.NewMsgFrom(parts...)); err != nil {
			done <- result{err: err}
			return
		}
		msg, err := sock.Recv()
		done <- result{msg: msg, err: err}
	}()

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			return Reply{}, fmt.Errorf("client: %s: %w", t, res.err)
		}
		return decodeReply(req, hdr, res.msg.Frames)
	case <-timer.C:
		return Reply{}, fmt.Errorf("client: %s: %w", t, context.DeadlineExceeded)
	case <-ctx.Done():
		c.discard()
		return Reply{}, ctx.Err()
	}
}

func decodeReply(want schema.Requirement, req frame.Header, parts [][]byte) (Reply, error) {
	if msg, ok := frame.ErrorMessage(parts); ok {
		remote := &RemoteError{Message: msg}
		if len(parts) == 3 {
			if h, err := frame.DecodeHeader(parts[0]); err == nil {
				remote.Header = &h
				if !h.Matches(req) {
					return Reply{}, fmt.Errorf("%w: sent id=%d got id=%d", ErrEchoMismatch, req.UniqueID, h.UniqueID)
				}
			}
		}
		return Reply{}, remote
	}

	hdr, payload, err := frame.SplitReply(parts)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrUnexpectedReply, err)
	}
	if !hdr.Matches(req) {
		return Reply{}, fmt.Errorf("%w: sent %s/%d got %s/%d", ErrEchoMismatch, req.Type, req.UniqueID, hdr.Type, hdr.UniqueID)
	}
	if hdr.Protocol != protocol.Version {
		return Reply{}, fmt.Errorf("%w: reply protocol %d", protocol.ErrVersionMismatch, hdr.Protocol)
	}
	if n := want.ReplyParts(); len(parts) != n {
		return Reply{}, fmt.Errorf("%w: %s reply has %d parts, expected %d", ErrUnexpectedReply, req.Type, len(parts), n)
	}
	return Reply{Header: hdr, Payload: payload}, nil
}

func retryable(err error) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) discard() {
	if c.sock != nil {
		_ = c.sock.Close()
		c.cancel()
		c.sock = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.discard()
	return nil
}
