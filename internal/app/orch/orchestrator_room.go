package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/app"
	"github.com/dkeye/Duo/internal/domain"
)

// CreateRoom opens a room under a fresh server-generated id.
func (o *Orchestrator) CreateRoom(ctx context.Context) (app.RoomStatus, error) {
	id := domain.RoomID(o.Tokens.Issue())
	if _, err := o.Lifecycle.Ensure(ctx, id); err != nil {
		return app.RoomStatus{}, err
	}
	return o.Lifecycle.Status(ctx, id)
}

// Join creates the room on first sight and admits the caller. existing is
// the token from the caller's identity cookie, if any.
func (o *Orchestrator) Join(ctx context.Context, id domain.RoomID, existing domain.Token) (domain.Admission, error) {
	meta, err := o.Lifecycle.Ensure(ctx, id)
	if err != nil {
		return domain.Admission{}, err
	}
	if meta.TTL <= o.Lifecycle.DestroyLead() {
		o.Lifecycle.Check(ctx, id)
		return domain.Admission{}, fmt.Errorf("%w: %s", domain.ErrRoomExpired, id)
	}
	adm, err := o.Admission.Admit(ctx, id, existing)
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("room", string(id)).Msg("join rejected")
		return domain.Admission{}, err
	}
	return adm, nil
}

func (o *Orchestrator) Status(ctx context.Context, id domain.RoomID) (app.RoomStatus, error) {
	return o.Lifecycle.Check(ctx, id)
}

// EvictRoom closes every local connection of a destroyed room.
func (o *Orchestrator) EvictRoom(id domain.RoomID) int {
	members := o.Registry.MembersOfRoom(id)
	for _, snap := range members {
		o.Registry.Cancel(snap.SID)
	}
	if len(members) > 0 {
		log.Info().Str("module", "orch").Str("room", string(id)).Int("connections", len(members)).Msg("evicted room")
	}
	return len(members)
}
