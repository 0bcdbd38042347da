package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog/log"
)

// Topics published on the observation endpoint.
const (
	TopicStatus    = "status"
	TopicHeartbeat = "heartbeat"
)

// Publisher broadcasts status transitions and liveness edges on a PUB socket.
type Publisher struct {
	mu          sync.Mutex
	ctx         context.Context
	sock        zmq4.Socket
	sendTimeout time.Duration
}

func NewPublisher(ctx context.Context, endpoint string, sendTimeout time.Duration) (*Publisher, error) {
	sock := zmq4.NewPub(ctx, zmq4.WithTimeout(sendTimeout))
	if err := sock.Listen(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("manager: listen publish endpoint %s: %w", endpoint, err)
	}
	log.Info().Str("endpoint", endpointOf(sock)).Msg("manager.Publisher listening")
	return &Publisher{ctx: ctx, sock: sock, sendTimeout: sendTimeout}, nil
}

func (p *Publisher) Addr() string {
	return endpointOf(p.sock)
}

// Publish sends [topic, body]. Failures are logged and dropped.
func (p *Publisher) Publish(topic, body string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	if err := sendWithTimeout(p.ctx, p.sock, [][]byte{[]byte(topic), []byte(body)}, p.sendTimeout); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("manager.Publisher publish dropped")
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sock.Close()
}
