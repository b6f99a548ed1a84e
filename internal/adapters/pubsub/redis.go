package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

type Redis struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRedis uses client for both publishing and subscribing. The caller
// keeps ownership of the client.
func NewRedis(client redis.UniversalClient, timeout time.Duration) *Redis {
	return &Redis{client: client, timeout: timeout}
}

func (r *Redis) Publish(ctx context.Context, channel string, name domain.EventName, payload []byte) error {
	data, err := encode(name, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %w", domain.ErrChannelUnavailable, channel, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, channel string) (core.PubSubSubscription, error) {
	ps := r.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so that nothing published after
	// Subscribe returns can be missed.
	confirmCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := ps.Receive(confirmCtx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %w", domain.ErrChannelUnavailable, channel, err)
	}

	sub := &redisSubscription{
		channel: channel,
		ps:      ps,
		out:     make(chan core.Delivery, subscriptionBuffer),
		done:    make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", domain.ErrChannelUnavailable, err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (r *Redis) Close() error { return nil }

type redisSubscription struct {
	channel string
	ps      *redis.PubSub
	out     chan core.Delivery
	done    chan struct{}
	once    sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			d, ok := decode(s.channel, []byte(msg.Payload))
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

func (s *redisSubscription) Deliveries() <-chan core.Delivery { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
