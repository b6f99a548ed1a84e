package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

type connEntry struct {
	Room   domain.RoomID
	Token  domain.Token
	Conn   core.SignalConnection
	Sub    *Subscription
	Cancel context.CancelFunc
}

// Registry tracks the live stream connections of this process.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.SessionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.SessionID]*connEntry)}
}

func (r *Registry) Bind(
	sid core.SessionID,
	room domain.RoomID,
	token domain.Token,
	conn core.SignalConnection,
	sub *Subscription,
	cancel context.CancelFunc,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[sid] = &connEntry{Room: room, Token: token, Conn: conn, Sub: sub, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("bound connection")
}

// Unbind removes the entry and returns it so the caller can release it.
func (r *Registry) Unbind(sid core.SessionID) (*connEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[sid]
	if !ok {
		return nil, false
	}
	delete(r.conns, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind connection")
	return e, true
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, domain.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[sid]
	if !ok {
		return "", "", false
	}
	return e.Room, e.Token, true
}

type regSnap struct {
	SID   core.SessionID
	Token domain.Token
	Conn  core.SignalConnection
}

func (r *Registry) MembersOfRoom(id domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, 2)
	for sid, e := range r.conns {
		if e.Room == id {
			out = append(out, regSnap{SID: sid, Token: e.Token, Conn: e.Conn})
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.conns[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled connection")
	return true
}

// CancelAll cancels every bound connection; used on shutdown.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	sids := make([]core.SessionID, 0, len(r.conns))
	for sid := range r.conns {
		sids = append(sids, sid)
	}
	r.mu.RUnlock()
	for _, sid := range sids {
		r.Cancel(sid)
	}
	return len(sids)
}
