// Package nats publishes login events to NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
)

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string `json:"url"`

	// Subject prefix; events go to <subject>.<event name>.
	Subject string `json:"subject"`

	// Name is the client name for connection identification.
	Name string `json:"name"`

	MaxReconnects int           `json:"maxReconnects"`
	ReconnectWait time.Duration `json:"reconnectWait"`
	Timeout       time.Duration `json:"timeout"`

	// Username and Password, or Token, for authentication (optional).
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

func (c *Config) Configure() (kawa.Destination[types.Event], error) {
	if c.Subject == "" {
		c.Subject = "wtmpd"
	}
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "wtmpd"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	return NewPublisher(*c), nil
}

// Publisher sends each event as JSON and acks once the server has
// confirmed receipt of the batch with a flush.
type Publisher struct {
	cfg Config

	ready chan struct{}
	once  sync.Once
	conn  *nats.Conn
}

func NewPublisher(cfg Config) *Publisher {
	return &Publisher{cfg: cfg, ready: make(chan struct{})}
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(ev types.Event) string {
	name := ev.EventName
	if name == "" {
		name = "unknown"
	}
	return p.cfg.Subject + "." + strings.ReplaceAll(name, ".", "_")
}

func (p *Publisher) connect() (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(p.cfg.Name),
		nats.MaxReconnects(p.cfg.MaxReconnects),
		nats.ReconnectWait(p.cfg.ReconnectWait),
		nats.Timeout(p.cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn(fmt.Sprintf("nats disconnected: %s", err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats reconnected")
		}),
	}
	if p.cfg.Username != "" && p.cfg.Password != "" {
		opts = append(opts, nats.UserInfo(p.cfg.Username, p.cfg.Password))
	}
	if p.cfg.Token != "" {
		opts = append(opts, nats.Token(p.cfg.Token))
	}

	conn, err := nats.Connect(p.cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

func (p *Publisher) Run(ctx context.Context) error {
	conn, err := p.connect()
	if err != nil {
		return err
	}
	p.once.Do(func() {
		p.conn = conn
		close(p.ready)
	})

	<-ctx.Done()
	if err := conn.Drain(); err != nil {
		conn.Close()
	}
	return ctx.Err()
}

// Send blocks until Run has connected.
func (p *Publisher) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ready:
	}
	conn := p.conn

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(msg.Value)
		if err != nil {
			return fmt.Errorf("nats: marshal event: %w", err)
		}
		natsMsg := &nats.Msg{
			Subject: p.Subject(msg.Value),
			Data:    data,
			Header:  nats.Header{},
		}
		natsMsg.Header.Set("Nats-Msg-Id", msg.Key)
		if err := conn.PublishMsg(natsMsg); err != nil {
			return fmt.Errorf("nats: publish: %w", err)
		}
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	if ack != nil {
		ack()
	}
	return nil
}
