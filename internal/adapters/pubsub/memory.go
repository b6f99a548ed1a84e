package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

// Memory is an in-process broker. Like Redis Pub/Sub it never blocks the
// publisher: a subscriber whose buffer is full misses the delivery.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (m *Memory) Publish(_ context.Context, channel string, name domain.EventName, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("%w: broker closed", domain.ErrChannelUnavailable)
	}
	d := core.Delivery{Name: name, Payload: append([]byte(nil), payload...)}
	for sub := range m.subs[channel] {
		select {
		case sub.out <- d:
		default:
			log.Warn().Str("module", "pubsub.memory").Str("channel", channel).Msg("subscriber buffer full, delivery dropped")
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string) (core.PubSubSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("%w: broker closed", domain.ErrChannelUnavailable)
	}
	sub := &memorySubscription{
		broker:  m,
		channel: channel,
		out:     make(chan core.Delivery, subscriptionBuffer),
	}
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[*memorySubscription]struct{})
	}
	m.subs[channel][sub] = struct{}{}
	return sub, nil
}

func (m *Memory) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.subs[sub.channel]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.out)
		}
		if len(set) == 0 {
			delete(m.subs, sub.channel)
		}
	}
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("%w: broker closed", domain.ErrChannelUnavailable)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for channel, set := range m.subs {
		for sub := range set {
			close(sub.out)
		}
		delete(m.subs, channel)
	}
	return nil
}

type memorySubscription struct {
	broker  *Memory
	channel string
	out     chan core.Delivery
	once    sync.Once
}

func (s *memorySubscription) Deliveries() <-chan core.Delivery { return s.out }

func (s *memorySubscription) Close() error {
	s.once.Do(func() { s.broker.remove(s) })
	return nil
}
