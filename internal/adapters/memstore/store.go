// Package memstore is a process-local RoomStore for single-process
// deployments and tests. Its mutex plays the role of the external store's
// atomicity; TTLs are enforced lazily on access and by Run.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/domain"
)

type room struct {
	createdAt int64
	members   []domain.Token
	expiresAt time.Time
	messages  []domain.Message
	// destroyedUntil keeps the destroy marker alive past eviction of the room.
	destroyedUntil time.Time
}

type Store struct {
	mu       sync.Mutex
	rooms    map[domain.RoomID]*room
	lifetime time.Duration
	capacity int
	now      func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now, letting tests move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(lifetime time.Duration, capacity int, opts ...Option) *Store {
	s := &Store{
		rooms:    make(map[domain.RoomID]*room),
		lifetime: lifetime,
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// live returns the room if it has not expired. Caller holds s.mu.
func (s *Store) live(id domain.RoomID, now time.Time) (*room, bool) {
	r, ok := s.rooms[id]
	if !ok {
		return nil, false
	}
	if !now.Before(r.expiresAt) {
		if now.Before(r.destroyedUntil) {
			// keep only the marker
			r.members, r.messages = nil, nil
			return nil, false
		}
		delete(s.rooms, id)
		return nil, false
	}
	return r, true
}

func (s *Store) metaOf(id domain.RoomID, r *room, now time.Time) domain.RoomMeta {
	members := make([]domain.Token, len(r.members))
	copy(members, r.members)
	return domain.RoomMeta{
		ID:        id,
		CreatedAt: r.createdAt,
		Members:   members,
		TTL:       r.expiresAt.Sub(now),
	}
}

func (s *Store) GetMeta(_ context.Context, id domain.RoomID) (domain.RoomMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	r, ok := s.live(id, now)
	if !ok {
		return domain.RoomMeta{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	return s.metaOf(id, r, now), nil
}

func (s *Store) CreateIfAbsent(_ context.Context, id domain.RoomID) (domain.RoomMeta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if r, ok := s.live(id, now); ok {
		return s.metaOf(id, r, now), false, nil
	}
	r := &room{
		createdAt: now.UnixMilli(),
		members:   []domain.Token{},
		expiresAt: now.Add(s.lifetime),
	}
	// a recreated room starts a fresh lifecycle, so any old destroy marker goes
	s.rooms[id] = r
	return s.metaOf(id, r, now), true, nil
}

func (s *Store) AppendMember(_ context.Context, id domain.RoomID, token domain.Token) (domain.RoomMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	r, ok := s.live(id, now)
	if !ok {
		return domain.RoomMeta{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	for _, m := range r.members {
		if m == token {
			return s.metaOf(id, r, now), nil
		}
	}
	if len(r.members) >= s.capacity {
		return s.metaOf(id, r, now), fmt.Errorf("%w: %s", domain.ErrRoomFull, id)
	}
	r.members = append(r.members, token)
	return s.metaOf(id, r, now), nil
}

func (s *Store) AppendMessage(_ context.Context, msg domain.Message) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	r, ok := s.live(msg.RoomID, now)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, msg.RoomID)
	}
	r.messages = append(r.messages, msg)
	return r.expiresAt.Sub(now), nil
}

func (s *Store) ListMessages(_ context.Context, id domain.RoomID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.live(id, s.now())
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out, nil
}

func (s *Store) RenewTTL(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	r, ok := s.live(id, now)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	r.expiresAt = now.Add(s.lifetime)
	return nil
}

func (s *Store) MarkDestroyed(_ context.Context, id domain.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	r, ok := s.rooms[id]
	if !ok {
		r = &room{expiresAt: now}
		s.rooms[id] = r
	}
	if now.Before(r.destroyedUntil) {
		return false, nil
	}
	until := r.expiresAt
	if until.Before(now) {
		until = now
	}
	r.destroyedUntil = until.Add(time.Minute)
	return true, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Sweep drops expired rooms and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, r := range s.rooms {
		if !now.Before(r.expiresAt) && !now.Before(r.destroyedUntil) {
			delete(s.rooms, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				log.Debug().Str("module", "memstore").Int("removed", n).Msg("swept expired rooms")
			}
		}
	}
}
