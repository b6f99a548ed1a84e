package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

// Gateway is the inbound message path: authorize, validate, persist, publish.
type Gateway struct {
	store     core.RoomStore
	channel   Publisher
	lifecycle *Lifecycle
	ids       core.TokenIssuer
	maxLen    int
	retryWait time.Duration
	now       func() time.Time

	locks roomLocks
}

func NewGateway(store core.RoomStore, channel Publisher, lifecycle *Lifecycle, ids core.TokenIssuer, maxLen int) *Gateway {
	return &Gateway{
		store:     store,
		channel:   channel,
		lifecycle: lifecycle,
		ids:       ids,
		maxLen:    maxLen,
		retryWait: DefaultRetryWait,
		now:       time.Now,
		locks:     roomLocks{m: make(map[domain.RoomID]*roomLock)},
	}
}

// WithClock overrides the timestamp source.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// Send persists and broadcasts one message. A message that was persisted
// but could not be published is still a success: history has it.
func (g *Gateway) Send(ctx context.Context, id domain.RoomID, sender domain.Token, text string) (domain.Message, error) {
	st, err := g.lifecycle.Check(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	if st.State == StateDestroyed {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrRoomExpired, id)
	}
	if !st.Meta.HasMember(sender) {
		return domain.Message{}, fmt.Errorf("%w: not a member of %s", domain.ErrUnauthorized, id)
	}
	text, err = domain.NormalizeText(text, g.maxLen)
	if err != nil {
		return domain.Message{}, err
	}

	unlock := g.locks.lock(id)
	defer unlock()

	msg := domain.Message{
		ID:        string(g.ids.Issue()),
		Sender:    sender,
		Text:      text,
		Timestamp: g.now().UnixMilli(),
		RoomID:    id,
	}
	if _, err := g.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrRoomExpired, id)
		}
		return domain.Message{}, err
	}
	if err := g.channel.Publish(ctx, id, domain.MessageEvent{Message: msg}); err != nil {
		log.Warn().Err(err).Str("module", "app.gateway").Str("room", string(id)).Str("msg", msg.ID).Msg("persisted message not broadcast")
	}
	g.lifecycle.Touch(ctx, id)

	log.Debug().Str("module", "app.gateway").Str("room", string(id)).Str("sender", sender.Short()).Str("msg", msg.ID).Msg("message sent")
	return msg, nil
}

// History returns the persisted messages of a live room in send order.
// Only members may read it.
func (g *Gateway) History(ctx context.Context, id domain.RoomID, reader domain.Token) ([]domain.Message, error) {
	meta, err := retryOnce(ctx, g.retryWait, func(ctx context.Context) (domain.RoomMeta, error) {
		return g.store.GetMeta(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if !meta.HasMember(reader) {
		return nil, fmt.Errorf("%w: not a member of %s", domain.ErrUnauthorized, id)
	}
	return retryOnce(ctx, g.retryWait, func(ctx context.Context) ([]domain.Message, error) {
		return g.store.ListMessages(ctx, id)
	})
}

// roomLocks serializes persist+publish per room inside this process so that
// broadcast order matches history order.
type roomLocks struct {
	mu sync.Mutex
	m  map[domain.RoomID]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func (l *roomLocks) lock(id domain.RoomID) func() {
	l.mu.Lock()
	rl, ok := l.m[id]
	if !ok {
		rl = &roomLock{}
		l.m[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
