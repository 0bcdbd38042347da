package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/linfa/internal/observability"
	"github.com/danmuck/linfa/internal/protocol"
	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"
)

const recvRetryDelay = 10 * time.Millisecond

// Handler produces the reply for one request message.
type Handler interface {
	Handle(parts [][]byte) [][]byte
}

// Server is the control endpoint loop: receive, record activity, dispatch,
// reply. A single REP socket enforces one request in flight.
type Server struct {
	sock        zmq4.Socket
	handler     Handler
	activity    func()
	sendTimeout time.Duration
}

// NewServer binds a REP socket on endpoint. The socket lives until ctx is
// cancelled or Close is called.
func NewServer(ctx context.Context, endpoint string, handler Handler, activity func(), sendTimeout time.Duration) (*Server, error) {
	sock := zmq4.NewRep(ctx, zmq4.WithTimeout(sendTimeout))
	if err := sock.Listen(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("manager: listen control endpoint %s: %w", endpoint, err)
	}
	if activity == nil {
		activity = func() {}
	}
	return &Server{
		sock:        sock,
		handler:     handler,
		activity:    activity,
		sendTimeout: sendTimeout,
	}, nil
}

// Addr is the bound endpoint in tcp://host:port form.
func (s *Server) Addr() string {
	return endpointOf(s.sock)
}

// Run serves until ctx is cancelled. Per-request failures never end the loop.
func (s *Server) Run(ctx context.Context) {
	log.Info().Str("endpoint", s.Addr()).Msg("manager.Server listening")
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				log.Debug().Msg("manager.Server stopped")
				return
			}
			log.Debug().Err(err).Msg("manager.Server recv failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(recvRetryDelay):
			}
			continue
		}

		s.activity()
		reply := s.handler.Handle(msg.Frames)
		if err := sendWithTimeout(ctx, s.sock, reply, s.sendTimeout); err != nil {
			observability.RecordReplySendFailure()
			log.Error().Err(err).Dur("send_timeout", s.sendTimeout).Msg("manager.Server reply lost")
		}
	}
}

func (s *Server) Close() error {
	return s.sock.Close()
}

// sendWithTimeout bounds one send. On timeout the send goroutine is left to
// finish or fail when the socket closes.
func sendWithTimeout(ctx context.Context, sock zmq4.Socket, parts [][]byte, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- sock.Send(zmq4.NewMsgFrom(parts...))
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s", protocol.ErrSendTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func endpointOf(sock zmq4.Socket) string {
	addr := sock.Addr()
	if addr == nil {
		return ""
	}
	return "tcp://" + addr.String()
}
