package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kandev/orchmesh/internal/config"
	"github.com/kandev/orchmesh/internal/logging"
)

// NATSBus implements Bus over a NATS connection. It is the optional
// pluggable backplane spec.md §1 allows for multi-process deployments;
// the core never requires it and every test runs against MemoryBus.
type NATSBus struct {
	conn   *nats.Conn
	logger *logging.Logger
}

// NewNATSBus dials NATS with reconnection handling.
func NewNATSBus(cfg config.NATSConfig, log *logging.Logger) (*NATSBus, error) {
	if log == nil {
		log = logging.Default()
	}
	log = log.WithFields(zap.String("component", "event_bus_nats"))

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("NATS error", zap.Error(err), zap.String("subject", subject))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	return &NATSBus{conn: conn, logger: log}, nil
}

// Publish marshals env and publishes it to subject.
func (b *NATSBus) Publish(ctx context.Context, subject string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Error("publish failed", zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Subscribe registers handler against a NATS subject.
func (b *NATSBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.logger.Error("failed to decode event", zap.String("subject", subject), zap.Error(err))
			return
		}
		if err := handler(context.Background(), &env); err != nil {
			b.logger.Error("event handler failed", zap.String("subject", subject), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	return &natsSubscription{sub: sub}, nil
}

// Close drains and closes the underlying connection.
func (b *NATSBus) Close() {
	if b.conn != nil {
		_ = b.conn.Drain()
	}
}

// IsConnected reports the underlying connection status.
func (b *NATSBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error { return s.sub.Unsubscribe() }
func (s *natsSubscription) IsValid() bool      { return s.sub.IsValid() }
