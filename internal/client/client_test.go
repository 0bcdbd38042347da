package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/linfa/internal/manager"
	"github.com/danmuck/linfa/internal/protocol"
	"github.com/danmuck/linfa/internal/protocol/frame"
	"github.com/danmuck/linfa/internal/protocol/schema"
	"github.com/danmuck/linfa/internal/protocol/session"
	"github.com/danmuck/linfa/internal/testutil/testlog"
	"github.com/go-zeromq/zmq4"
)

func startManager(t *testing.T, definition string) *manager.Manager {
	t.Helper()
	m, err := manager.NewWithConfig(definition, manager.Config{
		ControlEndpoint: "tcp://127.0.0.1:0",
		Session:         session.DefaultServerConfig(),
		Versions:        manager.Versions{Service: "svc", Executor: "exec"},
	})
	if err != nil {
		t.Fatalf("start manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func dialClient(t *testing.T, endpoint string, cc session.ClientConfig) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{Endpoint: endpoint, ClientConfig: cc})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientLifecycleAgainstManager(t *testing.T) {
	testlog.Start(t)
	m := startManager(t, "<tree/>")
	c := dialClient(t, m.ControlAddr(), session.DefaultClientConfig())
	ctx := context.Background()

	st, err := c.Status(ctx)
	if err != nil || st != protocol.StatusIdle {
		t.Fatalf("status = %s, %v", st, err)
	}
	if err := c.SetDefinition(ctx, "<next/>"); err != nil {
		t.Fatalf("set definition: %v", err)
	}
	def, err := c.Definition(ctx)
	if err != nil || def != "<next/>" {
		t.Fatalf("definition = %q, %v", def, err)
	}

	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Status() != protocol.StatusStarting {
		t.Fatalf("expected STARTING, got %s", m.Status())
	}
	if err := m.SetStatus(protocol.StatusRunning); err != nil {
		t.Fatalf("confirm running: %v", err)
	}
	if err := c.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := c.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st, _ := c.Status(ctx); st != protocol.StatusStopping {
		t.Fatalf("expected STOPPING, got %s", st)
	}

	err = c.SetDefinition(ctx, "<late/>")
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != manager.MsgDefinitionWhileBusy {
		t.Fatalf("expected remote busy error, got %v", err)
	}
	if remote.Header == nil || remote.Header.Type != protocol.SetDefinition {
		t.Fatalf("remote error must carry echoed header, got %+v", remote.Header)
	}

	sv, err := c.ServiceVersion(ctx)
	if err != nil || sv != "svc" {
		t.Fatalf("service version = %q, %v", sv, err)
	}
	ev, err := c.ExecutorVersion(ctx)
	if err != nil || ev != "exec" {
		t.Fatalf("executor version = %q, %v", ev, err)
	}
}

func TestClientRefusesUndefinedType(t *testing.T) {
	testlog.Start(t)
	m := startManager(t, "")
	c := dialClient(t, m.ControlAddr(), session.DefaultClientConfig())
	if _, err := c.Do(context.Background(), protocol.Undefined); !errors.Is(err, ErrUndefinedType) {
		t.Fatalf("expected ErrUndefinedType, got %v", err)
	}
}

func TestDecodeReplyValidatesEcho(t *testing.T) {
	testlog.Start(t)
	req := frame.Header{Protocol: protocol.Version, Type: protocol.GetStatus, UniqueID: 10}
	status, _ := schema.Lookup(protocol.GetStatus)

	ok := [][]byte{frame.EncodeHeader(req), []byte("IDLE")}
	reply, err := decodeReply(status, req, ok)
	if err != nil || reply.Text() != "IDLE" {
		t.Fatalf("decode valid reply: %+v %v", reply, err)
	}

	other := req
	other.UniqueID = 11
	if _, err := decodeReply(status, req, [][]byte{frame.EncodeHeader(other)}); !errors.Is(err, ErrEchoMismatch) {
		t.Fatalf("expected ErrEchoMismatch, got %v", err)
	}

	wrongType := req
	wrongType.Type = protocol.Start
	if _, err := decodeReply(status, req, [][]byte{frame.EncodeHeader(wrongType)}); !errors.Is(err, ErrEchoMismatch) {
		t.Fatalf("expected ErrEchoMismatch for type, got %v", err)
	}

	badVersion := req
	badVersion.Protocol = 1
	if _, err := decodeReply(status, req, [][]byte{frame.EncodeHeader(badVersion)}); !errors.Is(err, protocol.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	if _, err := decodeReply(status, req, [][]byte{[]byte("abc")}); !errors.Is(err, ErrUnexpectedReply) {
		t.Fatalf("expected ErrUnexpectedReply, got %v", err)
	}

	if _, err := decodeReply(status, req, [][]byte{frame.EncodeHeader(req)}); !errors.Is(err, ErrUnexpectedReply) {
		t.Fatalf("expected ErrUnexpectedReply for missing status part, got %v", err)
	}
}

func TestDecodeReplyErrorVariants(t *testing.T) {
	testlog.Start(t)
	req := frame.Header{Protocol: protocol.Version, Type: protocol.Pause, UniqueID: 3}
	pause, _ := schema.Lookup(protocol.Pause)

	_, err := decodeReply(pause, req, frame.ErrorReply(nil, "wrong request header: received size 4, expected size 6"))
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Header != nil {
		t.Fatalf("expected headerless remote error, got %v", err)
	}

	_, err = decodeReply(pause, req, frame.ErrorReply(&req, "Request not recognized"))
	if !errors.As(err, &remote) || remote.Header == nil || remote.Header.UniqueID != 3 {
		t.Fatalf("expected echoed remote error, got %v", err)
	}
}

func TestClientRetriesOnTimeout(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A REP peer that reads requests and never answers.
	rep := zmq4.NewRep(ctx)
	defer rep.Close()
	if err := rep.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	var received atomic.Int32
	go func() {
		for {
			if _, err := rep.Recv(); err != nil {
				return
			}
			received.Add(1)
		}
	}()

	c := dialClient(t, "tcp://"+rep.Addr().String(), session.ClientConfig{
		RequestTimeout: 150 * time.Millisecond,
		Retries:        1,
		Backoff:        session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 1, MaxDelay: 10 * time.Millisecond},
	})

	start := time.Now()
	_, err := c.Status(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("expected two attempts, returned after %s", elapsed)
	}

	if received.Load() < 1 {
		t.Fatalf("server never saw the request")
	}
}

func TestClientDoesNotResendLifecycleRequestAfterLostReply(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A REP peer that applies nothing and drops every reply.
	rep := zmq4.NewRep(ctx)
	defer rep.Close()
	if err := rep.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	var starts atomic.Int32
	go func() {
		for {
			msg, err := rep.Recv()
			if err != nil {
				return
			}
			if len(msg.Frames) > 0 {
				if h, err := frame.DecodeHeader(msg.Frames[0]); err == nil && h.Type == protocol.Start {
					starts.Add(1)
				}
			}
		}
	}()

	c := dialClient(t, "tcp://"+rep.Addr().String(), session.ClientConfig{
		RequestTimeout: 150 * time.Millisecond,
		Retries:        3,
		Backoff:        session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 1, MaxDelay: 10 * time.Millisecond},
	})

	start := time.Now()
	err := c.Start(context.Background())
	if !errors.Is(err, ErrOutcomeUnknown) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected unknown outcome after deadline, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 300*time.Millisecond {
		t.Fatalf("START was retried, returned after %s", elapsed)
	}

	time.Sleep(200 * time.Millisecond)
	if n := starts.Load(); n != 1 {
		t.Fatalf("expected START sent once, server saw %d", n)
	}
}

func TestClientCloseRejectsRequests(t *testing.T) {
	testlog.Start(t)
	m := startManager(t, "")
	c := dialClient(t, m.ControlAddr(), session.DefaultClientConfig())
	_ = c.Close()
	if _, err := c.Do(context.Background(), protocol.GetStatus); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
