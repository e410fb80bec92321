package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

// Config describes the NATS connection used for lifecycle events.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "quiz.games",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// LifecyclePublisher publishes game lifecycle events on
// {prefix}.{created|ended|removed}.
type LifecyclePublisher struct {
	nc     conn
	prefix string
}

// Connect dials NATS and returns a publisher bound to the connection.
func Connect(cfg Config) (*LifecyclePublisher, error) {
	opts := []nats.Option{
		nats.Name("live-quiz-service"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newLifecyclePublisher(nc, cfg.SubjectPrefix), nil
}

func newLifecyclePublisher(nc conn, prefix string) *LifecyclePublisher {
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &LifecyclePublisher{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

// Publish sends evt and waits for the server to acknowledge the flush.
func (p *LifecyclePublisher) Publish(ctx context.Context, evt domain.LifecycleEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	subject := p.Subject(evt.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	log.Debug().Str("subject", subject).Str("game_id", evt.GameID).Msg("lifecycle event published")
	return nil
}

// Subject maps a lifecycle type such as game.created to {prefix}.created.
func (p *LifecyclePublisher) Subject(t domain.LifecycleType) string {
	return p.prefix + "." + strings.TrimPrefix(string(t), "game.")
}

// Close drains pending messages and closes the connection.
func (p *LifecyclePublisher) Close() error {
	return p.nc.Drain()
}
