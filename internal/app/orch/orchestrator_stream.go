package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/app"
	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

// Connect subscribes a live connection to its room's stream and arms the
// room's destroy timer. The returned context is canceled on eviction or
// Disconnect; everything started here stops with it.
func (o *Orchestrator) Connect(
	ctx context.Context,
	sid core.SessionID,
	id domain.RoomID,
	token domain.Token,
	conn core.SignalConnection,
	names []domain.EventName,
) (context.Context, *app.Subscription, error) {
	st, err := o.Lifecycle.Check(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if st.State == app.StateDestroyed {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrRoomExpired, id)
	}
	if !st.Meta.HasMember(token) {
		return nil, nil, fmt.Errorf("%w: not a member of %s", domain.ErrUnauthorized, id)
	}

	connCtx, cancel := context.WithCancel(ctx)
	sub, err := o.Channel.Subscribe(connCtx, id, names...)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	o.Registry.Bind(sid, id, token, conn, sub, cancel)
	go o.expire(connCtx, id, st.Remaining)

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(id)).Str("token", token.Short()).Msg("stream connected")
	return connCtx, sub, nil
}

// expire waits for the room's destroy event, then gives clients the destroy
// lead to close on their own before evicting whatever is still connected.
// Streams that filtered out chat.destroy only end here.
func (o *Orchestrator) expire(ctx context.Context, id domain.RoomID, remaining time.Duration) {
	if !o.Lifecycle.Watch(ctx, id, remaining) {
		return
	}
	t := time.NewTimer(o.Lifecycle.DestroyLead())
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
		o.EvictRoom(id)
	}
}

// Disconnect releases everything Connect started. Safe to call twice.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	e, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	e.Cancel()
	o.Channel.Unsubscribe(e.Sub)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(e.Room)).Msg("stream disconnected")
}

func (o *Orchestrator) Send(ctx context.Context, id domain.RoomID, sender domain.Token, text string) (domain.Message, error) {
	return o.Gateway.Send(ctx, id, sender, text)
}

func (o *Orchestrator) History(ctx context.Context, id domain.RoomID, reader domain.Token) ([]domain.Message, error) {
	return o.Gateway.History(ctx, id, reader)
}
