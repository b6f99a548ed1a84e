package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

// RoomState is derived from the remaining TTL on every read; only the
// store's TTL is stored.
type RoomState string

const (
	StateActive       RoomState = "active"
	StateExpiringSoon RoomState = "expiring_soon"
	StateDestroyed    RoomState = "destroyed"
)

type RoomStatus struct {
	State     RoomState
	Remaining time.Duration
	Meta      domain.RoomMeta
	// Exists is false once the store has evicted the room.
	Exists bool
}

type LifecycleOptions struct {
	// WarnThreshold marks a room ExpiringSoon.
	WarnThreshold time.Duration
	// DestroyLead is how long before store eviction a room counts as
	// destroyed, so the destroy event goes out while keys still exist.
	DestroyLead time.Duration
	SlidingTTL  bool
	RetryWait   time.Duration
}

func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		WarnThreshold: 60 * time.Second,
		DestroyLead:   time.Second,
		RetryWait:     DefaultRetryWait,
	}
}

type Lifecycle struct {
	store   core.RoomStore
	channel Publisher
	opts    LifecycleOptions
}

func NewLifecycle(store core.RoomStore, channel Publisher, opts LifecycleOptions) *Lifecycle {
	if opts.RetryWait <= 0 {
		opts.RetryWait = DefaultRetryWait
	}
	return &Lifecycle{store: store, channel: channel, opts: opts}
}

// Ensure moves a room from Uncreated to Active, or returns it unchanged.
func (l *Lifecycle) Ensure(ctx context.Context, id domain.RoomID) (domain.RoomMeta, error) {
	meta, created, err := l.store.CreateIfAbsent(ctx, id)
	if err != nil {
		return domain.RoomMeta{}, err
	}
	if created {
		log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Dur("ttl", meta.TTL).Msg("room created")
	}
	return meta, nil
}

func (l *Lifecycle) classify(remaining time.Duration) RoomState {
	switch {
	case remaining <= l.opts.DestroyLead:
		return StateDestroyed
	case remaining < l.opts.WarnThreshold:
		return StateExpiringSoon
	default:
		return StateActive
	}
}

// Status reads the derived state. An absent room is Destroyed.
func (l *Lifecycle) Status(ctx context.Context, id domain.RoomID) (RoomStatus, error) {
	meta, err := retryOnce(ctx, l.opts.RetryWait, func(ctx context.Context) (domain.RoomMeta, error) {
		return l.store.GetMeta(ctx, id)
	})
	if errors.Is(err, domain.ErrRoomNotFound) {
		return RoomStatus{State: StateDestroyed, Meta: domain.RoomMeta{ID: id}}, nil
	}
	if err != nil {
		return RoomStatus{}, err
	}
	return RoomStatus{State: l.classify(meta.TTL), Remaining: meta.TTL, Meta: meta, Exists: true}, nil
}

// Check is Status plus the proactive destroy notification: the first caller
// to observe a room inside its destroy lead publishes chat.destroy.
func (l *Lifecycle) Check(ctx context.Context, id domain.RoomID) (RoomStatus, error) {
	st, err := l.Status(ctx, id)
	if err != nil || st.State != StateDestroyed || !st.Exists {
		return st, err
	}
	l.notifyDestroyed(ctx, id)
	return st, nil
}

func (l *Lifecycle) notifyDestroyed(ctx context.Context, id domain.RoomID) {
	first, err := l.store.MarkDestroyed(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.lifecycle").Str("room", string(id)).Msg("mark destroyed failed")
		return
	}
	if !first {
		return
	}
	_, err = retryOnce(ctx, l.opts.RetryWait, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.channel.Publish(ctx, id, domain.DestroyEvent{IsDestroyed: true})
	})
	if err != nil {
		// store eviction still destroys the room
		log.Error().Err(err).Str("module", "app.lifecycle").Str("room", string(id)).Msg("destroy notification abandoned")
		return
	}
	log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Msg("destroy notification sent")
}

// Touch renews the TTL when sliding expiry is enabled.
func (l *Lifecycle) Touch(ctx context.Context, id domain.RoomID) {
	if !l.opts.SlidingTTL {
		return
	}
	if err := l.store.RenewTTL(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "app.lifecycle").Str("room", string(id)).Msg("renew ttl failed")
	}
}

// Watch sleeps until the room is due to be destroyed, then runs Check.
// It re-arms when the TTL moved (sliding expiry) and returns once the room
// is destroyed (true) or ctx is done (false). One Watch runs per live
// subscription.
func (l *Lifecycle) Watch(ctx context.Context, id domain.RoomID, remaining time.Duration) bool {
	for {
		wait := remaining - l.opts.DestroyLead
		if wait < 0 {
			wait = 0
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		st, err := l.Check(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.lifecycle").Str("room", string(id)).Msg("expiry check failed")
			remaining = l.opts.DestroyLead + time.Second
			continue
		}
		if st.State == StateDestroyed {
			if !st.Exists {
				// evicted before we got here; subscribers still need to hear it
				l.notifyDestroyed(ctx, id)
			}
			return true
		}
		remaining = st.Remaining
	}
}

func (l *Lifecycle) DestroyLead() time.Duration { return l.opts.DestroyLead }
