package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

type Nats struct {
	conn    *nats.Conn
	timeout time.Duration
}

// NewNats connects to url and owns the connection until Close.
func NewNats(url string, timeout time.Duration) (*Nats, error) {
	conn, err := nats.Connect(url,
		nats.Name("duo"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "pubsub.nats").Msg("disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "pubsub.nats").Str("url", nc.ConnectedUrl()).Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", domain.ErrChannelUnavailable, url, err)
	}
	return &Nats{conn: conn, timeout: timeout}, nil
}

func (n *Nats) Publish(ctx context.Context, channel string, name domain.EventName, payload []byte) error {
	data, err := encode(name, payload)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(channel, data); err != nil {
		return fmt.Errorf("%w: publish %s: %w", domain.ErrChannelUnavailable, channel, err)
	}
	// Flush so a dead server surfaces as an error instead of a silent buffer.
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush %s: %w", domain.ErrChannelUnavailable, channel, err)
	}
	return nil
}

func (n *Nats) Subscribe(ctx context.Context, channel string) (core.PubSubSubscription, error) {
	in := make(chan *nats.Msg, subscriptionBuffer)
	sub, err := n.conn.ChanSubscribe(channel, in)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %w", domain.ErrChannelUnavailable, channel, err)
	}
	// Make sure the server has registered interest before returning.
	flushCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.conn.FlushWithContext(flushCtx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: subscribe %s: %w", domain.ErrChannelUnavailable, channel, err)
	}

	s := &natsSubscription{
		channel: channel,
		sub:     sub,
		in:      in,
		out:     make(chan core.Delivery, subscriptionBuffer),
		done:    make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

func (n *Nats) Ping(context.Context) error {
	if !n.conn.IsConnected() {
		return fmt.Errorf("%w: nats status %s", domain.ErrChannelUnavailable, n.conn.Status())
	}
	return nil
}

func (n *Nats) Close() error {
	n.conn.Close()
	return nil
}

type natsSubscription struct {
	channel string
	sub     *nats.Subscription
	in      chan *nats.Msg
	out     chan core.Delivery
	done    chan struct{}
	once    sync.Once
}

func (s *natsSubscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.in:
			d, ok := decode(s.channel, msg.Data)
			if !ok {
				continue
			}
			select {
			case s.out <- d:
			case <-s.done:
				return
			}
		}
	}
}

func (s *natsSubscription) Deliveries() <-chan core.Delivery { return s.out }

func (s *natsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
		close(s.done)
	})
	return err
}
