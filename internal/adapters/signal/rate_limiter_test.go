package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Duo/internal/domain"
)

func TestRoomRateLimiter_Allow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRoomRateLimiter(3, 10*time.Second)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("alice"), "attempt %d", i+1)
	}
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "limits are per token")

	now = now.Add(10 * time.Second)
	assert.True(t, rl.Allow("alice"), "window slid past the first attempts")
}

func TestRoomRateLimiter_Disabled(t *testing.T) {
	rl := NewRoomRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("alice"))
	}
}

func TestRoomRateLimiter_Prune(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRoomRateLimiter(5, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Allow("alice")
	now = now.Add(30 * time.Second)
	rl.Allow("bob")

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, rl.Prune())
	assert.NotContains(t, rl.history, domain.Token("alice"))
	assert.Contains(t, rl.history, domain.Token("bob"))
}
