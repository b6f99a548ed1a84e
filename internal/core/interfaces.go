package core

import (
	"context"
	"time"

	"github.com/dkeye/Duo/internal/domain"
)

// TokenIssuer produces unguessable URL-safe identifiers.
type TokenIssuer interface {
	Issue() domain.Token
}

// RoomStore is the durable, TTL-scoped state of rooms and their history.
// Every mutating call is a single atomic command in the backing store;
// implementations never hold locks across calls.
type RoomStore interface {
	GetMeta(ctx context.Context, id domain.RoomID) (domain.RoomMeta, error)
	// CreateIfAbsent reports created=true to exactly one of any number of
	// concurrent callers for the same id.
	CreateIfAbsent(ctx context.Context, id domain.RoomID) (meta domain.RoomMeta, created bool, err error)
	AppendMember(ctx context.Context, id domain.RoomID, token domain.Token) (domain.RoomMeta, error)
	// AppendMessage returns the TTL given to the persisted message, which is
	// the room's remaining TTL at the time of the write.
	AppendMessage(ctx context.Context, msg domain.Message) (time.Duration, error)
	ListMessages(ctx context.Context, id domain.RoomID) ([]domain.Message, error)
	RenewTTL(ctx context.Context, id domain.RoomID) error
	// MarkDestroyed returns true for the first caller only.
	MarkDestroyed(ctx context.Context, id domain.RoomID) (bool, error)
	Ping(ctx context.Context) error
}

// Delivery is one message taken off a pub/sub channel.
type Delivery struct {
	Name    domain.EventName
	Payload []byte
}

// PubSub is the channel-scoped broadcast primitive. Channels are independent;
// ordering is FIFO per publisher per channel.
type PubSub interface {
	Publish(ctx context.Context, channel string, name domain.EventName, payload []byte) error
	Subscribe(ctx context.Context, channel string) (PubSubSubscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// PubSubSubscription delivers until Close is called or the backend goes away,
// at which point Deliveries is closed.
type PubSubSubscription interface {
	Deliveries() <-chan Delivery
	Close() error
}
