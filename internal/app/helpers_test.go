package app_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Duo/internal/adapters/memstore"
	"github.com/dkeye/Duo/internal/adapters/pubsub"
	"github.com/dkeye/Duo/internal/app"
	"github.com/dkeye/Duo/internal/domain"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

const (
	lifetime = 10 * time.Minute
	capacity = 2
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// seqIssuer hands out predictable ids.
type seqIssuer struct {
	prefix string
	n      atomic.Int64
}

func (s *seqIssuer) Issue() domain.Token {
	return domain.Token(fmt.Sprintf("%s%d", s.prefix, s.n.Add(1)))
}

// recordingPublisher captures published events and can be told to fail.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	calls  int
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ domain.RoomID, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

type env struct {
	clock     *fakeClock
	store     *memstore.Store
	ps        *pubsub.Memory
	channel   *app.Channel
	lifecycle *app.Lifecycle
	admission *app.Admission
	gateway   *app.Gateway
	tokens    *seqIssuer
}

func newEnv(t *testing.T, opts ...func(*app.LifecycleOptions)) *env {
	t.Helper()
	clock := newFakeClock()
	store := memstore.New(lifetime, capacity, memstore.WithClock(clock.Now))
	ps := pubsub.NewMemory()
	channel := app.NewChannel(ps, app.SimplePolicy{})
	t.Cleanup(func() {
		channel.Close()
		_ = ps.Close()
	})

	lo := app.DefaultLifecycleOptions()
	lo.RetryWait = time.Millisecond
	for _, opt := range opts {
		opt(&lo)
	}
	lifecycle := app.NewLifecycle(store, channel, lo)
	tokens := &seqIssuer{prefix: "T"}
	return &env{
		clock:     clock,
		store:     store,
		ps:        ps,
		channel:   channel,
		lifecycle: lifecycle,
		admission: app.NewAdmission(store, tokens, capacity),
		gateway:   app.NewGateway(store, channel, lifecycle, &seqIssuer{prefix: "m"}, domain.MaxMessageLen).WithClock(clock.Now),
		tokens:    tokens,
	}
}

// room creates id and admits n participants, returning their tokens.
func (e *env) room(t *testing.T, id domain.RoomID, n int) []domain.Token {
	t.Helper()
	ctx := context.Background()
	_, err := e.lifecycle.Ensure(ctx, id)
	require.NoError(t, err)
	tokens := make([]domain.Token, 0, n)
	for i := 0; i < n; i++ {
		adm, err := e.admission.Admit(ctx, id, "")
		require.NoError(t, err)
		tokens = append(tokens, adm.Token)
	}
	return tokens
}

func next(t *testing.T, sub *app.Subscription) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription ended")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func quiet(t *testing.T, sub *app.Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event %s", ev.Name())
		}
	case <-time.After(50 * time.Millisecond):
	}
}
