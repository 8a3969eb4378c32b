package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// natsBus is the production Bus backed by NATS core pub/sub, grounded
// on internal/orchestrator/messagebus.go's MessageBus (reconnect
// handlers, subject prefixing, JSON envelope).
type natsBus struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NewNATSBus connects to url and returns a Bus publishing under
// "<prefix>.<topic>" subjects (the teacher uses "agents.{to}.{topic}";
// this module has no per-recipient routing, so the prefix alone scopes
// the deployment, e.g. "swarm").
func NewNATSBus(url, prefix string, log zerolog.Logger) (Bus, error) {
	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("eventbus: disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("eventbus: reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return &natsBus{nc: nc, prefix: prefix, log: log}, nil
}

func (b *natsBus) subject(topic string) string {
	return fmt.Sprintf("%s.%s", b.prefix, topic)
}

func (b *natsBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	evt, err := NewEvent(topic, payload)
	if err != nil {
		return err
	}
	raw, err := marshalEvent(evt)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.subject(topic), raw); err != nil {
		return fmt.Errorf("publish to subject %s: %w", b.subject(topic), err)
	}
	return nil
}

type natsSub struct {
	sub *nats.Subscription
}

func (s *natsSub) Unsubscribe() {
	_ = s.sub.Unsubscribe()
}

func (b *natsBus) Subscribe(topic string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject(topic), func(msg *nats.Msg) {
		evt, err := unmarshalEvent(msg.Data)
		if err != nil {
			b.log.Error().Err(err).Str("topic", topic).Msg("eventbus: malformed event")
			return
		}
		if err := h(context.Background(), evt); err != nil {
			b.log.Error().Err(err).Str("topic", topic).Msg("eventbus: handler error")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to subject %s: %w", b.subject(topic), err)
	}
	return &natsSub{sub: sub}, nil
}

func (b *natsBus) Close() error {
	b.nc.Close()
	return nil
}
