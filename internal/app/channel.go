package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

// DefaultSubscriptionBuffer is the number of decoded events a subscriber may
// lag behind before the backpressure policy kicks in.
const DefaultSubscriptionBuffer = 32

// Publisher is the publishing half of the Channel.
type Publisher interface {
	Publish(ctx context.Context, id domain.RoomID, ev domain.Event) error
}

// Channel fans validated room events out to subscribers through a pub/sub
// primitive. There is one Channel per process; Close tears down everything.
type Channel struct {
	ps     core.PubSub
	policy Policy
	buffer int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewChannel(ps core.PubSub, policy Policy) *Channel {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Channel{
		ps:     ps,
		policy: policy,
		buffer: DefaultSubscriptionBuffer,
		subs:   make(map[*Subscription]struct{}),
	}
}

// ChannelName is the pub/sub channel (or NATS subject) of a room.
func ChannelName(id domain.RoomID) string { return "duo.room." + string(id) }

func (c *Channel) Publish(ctx context.Context, id domain.RoomID, ev domain.Event) error {
	if ev == nil || !domain.KnownEvent(ev.Name()) {
		return fmt.Errorf("%w: unknown event %v", domain.ErrInvalidInput, nameOf(ev))
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", domain.ErrInvalidInput, ev.Name(), err)
	}
	return c.ps.Publish(ctx, ChannelName(id), ev.Name(), payload)
}

func nameOf(ev domain.Event) string {
	if ev == nil {
		return "<nil>"
	}
	return string(ev.Name())
}

// Subscribe opens a stream of the given event kinds; no names means all.
// The stream ends when Unsubscribe is called, ctx is done, or the backend
// drops the subscription.
func (c *Channel) Subscribe(ctx context.Context, id domain.RoomID, names ...domain.EventName) (*Subscription, error) {
	filter := make(map[domain.EventName]struct{}, 2)
	for _, n := range names {
		if !domain.KnownEvent(n) {
			return nil, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidInput, n)
		}
		filter[n] = struct{}{}
	}
	if len(filter) == 0 {
		filter[domain.EventMessage] = struct{}{}
		filter[domain.EventDestroy] = struct{}{}
	}

	raw, err := c.ps.Subscribe(ctx, ChannelName(id))
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		ID:      uuid.NewString(),
		Room:    id,
		names:   filter,
		raw:     raw,
		events:  make(chan domain.Event, c.buffer),
		done:    make(chan struct{}),
		channel: c,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = raw.Close()
		return nil, fmt.Errorf("%w: channel closed", domain.ErrChannelUnavailable)
	}
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	go sub.pump(ctx)
	log.Debug().Str("module", "app.channel").Str("room", string(id)).Str("sub", sub.ID).Msg("subscribed")
	return sub, nil
}

// Unsubscribe is idempotent.
func (c *Channel) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		close(sub.done)
		if err := sub.raw.Close(); err != nil {
			log.Warn().Err(err).Str("module", "app.channel").Str("sub", sub.ID).Msg("close backend subscription")
		}
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
		log.Debug().Str("module", "app.channel").Str("room", string(sub.Room)).Str("sub", sub.ID).Msg("unsubscribed")
	})
}

// Active returns the number of open subscriptions in this process.
func (c *Channel) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		c.Unsubscribe(s)
	}
}

// Subscription is the in-memory binding between one connection and one
// room stream.
type Subscription struct {
	ID   string
	Room domain.RoomID

	names   map[domain.EventName]struct{}
	raw     core.PubSubSubscription
	events  chan domain.Event
	done    chan struct{}
	once    sync.Once
	channel *Channel
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan domain.Event { return s.events }

func (s *Subscription) pump(ctx context.Context) {
	defer close(s.events)
	deliveries := s.raw.Deliveries()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.channel.Unsubscribe(s)
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn().Str("module", "app.channel").Str("sub", s.ID).Msg("backend closed subscription")
				s.channel.Unsubscribe(s)
				return
			}
			if _, want := s.names[d.Name]; !want {
				continue
			}
			ev, err := domain.DecodeEvent(d.Name, d.Payload)
			if err != nil {
				log.Warn().Err(err).Str("module", "app.channel").Str("sub", s.ID).Msg("dropping invalid event")
				continue
			}
			select {
			case s.events <- ev:
				continue
			default:
			}
			switch s.channel.policy.OnBackPressure(s) {
			case DropEvent:
				log.Warn().Str("module", "app.channel").Str("sub", s.ID).Str("event", string(d.Name)).Msg("subscriber lagging, event dropped")
			case CloseSubscription:
				log.Warn().Str("module", "app.channel").Str("sub", s.ID).Msg("subscriber lagging, closing subscription")
				s.channel.Unsubscribe(s)
				return
			}
		}
	}
}
