// Package domain contains entities and their validation rules, no I/O.
package domain

import (
	"fmt"
	"time"
)

const MaxRoomIDLen = 64

type RoomID string

// ParseRoomID accepts URL-safe identifiers only: [A-Za-z0-9_-]{1,64}.
func ParseRoomID(raw string) (RoomID, error) {
	if len(raw) == 0 || len(raw) > MaxRoomIDLen {
		return "", fmt.Errorf("%w: room id length %d", ErrInvalidInput, len(raw))
	}
	for i := 0; i < len(raw); i++ {
		if !urlSafe(raw[i]) {
			return "", fmt.Errorf("%w: room id has invalid character %q", ErrInvalidInput, raw[i])
		}
	}
	return RoomID(raw), nil
}

func urlSafe(c byte) bool {
	return (c >= '0' && c <= '9') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		c == '_' || c == '-'
}

// RoomMeta is the stored state of a room. TTL is the remaining lifetime
// observed at read time, not a stored attribute.
type RoomMeta struct {
	ID        RoomID        `json:"roomId"`
	CreatedAt int64         `json:"createdAt"`
	Members   []Token       `json:"members"`
	TTL       time.Duration `json:"-"`
}

func (m RoomMeta) MemberCount() int { return len(m.Members) }

func (m RoomMeta) HasMember(t Token) bool {
	if t == "" {
		return false
	}
	for _, member := range m.Members {
		if member == t {
			return true
		}
	}
	return false
}

// ExpiresAt is an estimate based on the TTL read together with the meta.
func (m RoomMeta) ExpiresAt(readAt time.Time) time.Time {
	return readAt.Add(m.TTL)
}
