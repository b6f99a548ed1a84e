package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

// Admission decides whether a connection may join a room. Capacity is
// enforced by the store's atomic append; Admission only decides which
// token to append and how to report the outcome.
type Admission struct {
	store     core.RoomStore
	tokens    core.TokenIssuer
	capacity  int
	retryWait time.Duration
}

func NewAdmission(store core.RoomStore, tokens core.TokenIssuer, capacity int) *Admission {
	return &Admission{store: store, tokens: tokens, capacity: capacity, retryWait: DefaultRetryWait}
}

// Admit admits a new participant or recognizes a returning one.
// existing may be empty.
func (a *Admission) Admit(ctx context.Context, id domain.RoomID, existing domain.Token) (domain.Admission, error) {
	meta, err := retryOnce(ctx, a.retryWait, func(ctx context.Context) (domain.RoomMeta, error) {
		return a.store.GetMeta(ctx, id)
	})
	if err != nil {
		return domain.Admission{}, err
	}
	if meta.HasMember(existing) {
		return a.rejoined(id, existing, meta), nil
	}
	if meta.MemberCount() >= a.capacity {
		return domain.Admission{}, fmt.Errorf("%w: %s has %d members", domain.ErrRoomFull, id, meta.MemberCount())
	}

	token := a.tokens.Issue()
	meta, err = a.store.AppendMember(ctx, id, token)
	if err == nil {
		return a.admitted(id, token, meta), nil
	}
	if !errors.Is(err, domain.ErrRoomFull) {
		return domain.Admission{}, err
	}

	// A concurrent admission took the last seat between our read and our
	// append. Read and decide once more.
	meta, err = a.store.GetMeta(ctx, id)
	if err != nil {
		return domain.Admission{}, err
	}
	if meta.HasMember(existing) {
		return a.rejoined(id, existing, meta), nil
	}
	if meta.MemberCount() >= a.capacity {
		log.Info().Str("module", "app.admission").Str("room", string(id)).Msg("lost admission race, room full")
		return domain.Admission{}, fmt.Errorf("%w: %s", domain.ErrRoomFull, id)
	}
	meta, err = a.store.AppendMember(ctx, id, token)
	if err != nil {
		return domain.Admission{}, err
	}
	return a.admitted(id, token, meta), nil
}

func (a *Admission) admitted(id domain.RoomID, token domain.Token, meta domain.RoomMeta) domain.Admission {
	log.Info().
		Str("module", "app.admission").
		Str("room", string(id)).
		Str("token", token.Short()).
		Int("members", meta.MemberCount()).
		Msg("admitted")
	return domain.Admission{Token: token, Status: domain.StatusAdmitted, Room: meta}
}

func (a *Admission) rejoined(id domain.RoomID, token domain.Token, meta domain.RoomMeta) domain.Admission {
	log.Info().Str("module", "app.admission").Str("room", string(id)).Str("token", token.Short()).Msg("rejoined")
	return domain.Admission{Token: token, Status: domain.StatusRejoined, Room: meta}
}
