package redisstore_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Duo/internal/adapters/redisstore"
	"github.com/dkeye/Duo/internal/domain"
	"github.com/dkeye/Duo/internal/testutil"
)

func newStore(t *testing.T, lifetime time.Duration) *redisstore.Store {
	t.Helper()
	client := testutil.Redis(t)
	return redisstore.New(client, redisstore.Options{
		Lifetime: lifetime,
		Capacity: 2,
		Timeout:  2 * time.Second,
	})
}

func TestStore_RoomLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 10*time.Minute)

	_, err := s.GetMeta(ctx, "r1")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	meta, created, err := s.CreateIfAbsent(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, meta.Members)
	assert.InDelta(t, (10 * time.Minute).Seconds(), meta.TTL.Seconds(), 1)

	again, created, err := s.CreateIfAbsent(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, meta.CreatedAt, again.CreatedAt)

	t.Run("members", func(t *testing.T) {
		meta, err := s.AppendMember(ctx, "r1", "T1")
		require.NoError(t, err)
		assert.Equal(t, []domain.Token{"T1"}, meta.Members)

		meta, err = s.AppendMember(ctx, "r1", "T1")
		require.NoError(t, err)
		assert.Equal(t, []domain.Token{"T1"}, meta.Members)

		_, err = s.AppendMember(ctx, "r1", "T2")
		require.NoError(t, err)

		meta, err = s.AppendMember(ctx, "r1", "T3")
		require.ErrorIs(t, err, domain.ErrRoomFull)
		assert.Equal(t, []domain.Token{"T1", "T2"}, meta.Members)

		_, err = s.AppendMember(ctx, "missing", "T1")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("messages", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			ttl, err := s.AppendMessage(ctx, domain.Message{
				ID: fmt.Sprintf("m%d", i), Sender: "T1", Text: "hi", Timestamp: int64(i), RoomID: "r1",
			})
			require.NoError(t, err)
			assert.LessOrEqual(t, ttl, 10*time.Minute)
		}
		msgs, err := s.ListMessages(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "m1", msgs[0].ID)
		assert.Equal(t, "m3", msgs[2].ID)

		_, err = s.AppendMessage(ctx, domain.Message{ID: "x", RoomID: "missing"})
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})

	t.Run("destroy marker", func(t *testing.T) {
		first, err := s.MarkDestroyed(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, first)
		first, err = s.MarkDestroyed(ctx, "r1")
		require.NoError(t, err)
		assert.False(t, first)
	})

	require.NoError(t, s.Ping(ctx))
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 500*time.Millisecond)

	_, _, err := s.CreateIfAbsent(ctx, "r1")
	require.NoError(t, err)
	_, err = s.AppendMember(ctx, "r1", "T1")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, domain.Message{ID: "m1", Sender: "T1", Text: "hi", Timestamp: 1, RoomID: "r1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := s.GetMeta(ctx, "r1")
		return err != nil
	}, 3*time.Second, 50*time.Millisecond)

	_, err = s.ListMessages(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = s.AppendMessage(ctx, domain.Message{ID: "m2", Sender: "T1", Text: "hi", Timestamp: 2, RoomID: "r1"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.ErrorIs(t, s.RenewTTL(ctx, "r1"), domain.ErrRoomNotFound)
}

func TestStore_RenewTTL(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, time.Second)

	_, _, err := s.CreateIfAbsent(ctx, "r1")
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)
	require.NoError(t, s.RenewTTL(ctx, "r1"))

	meta, err := s.GetMeta(ctx, "r1")
	require.NoError(t, err)
	assert.Greater(t, meta.TTL, 800*time.Millisecond)
}

func TestStore_ConcurrentAdmission(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 10*time.Minute)

	var winners atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, created, err := s.CreateIfAbsent(ctx, "herd")
			if created {
				winners.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), winners.Load())

	var admitted atomic.Int32
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			if _, err := s.AppendMember(ctx, "herd", domain.Token(fmt.Sprintf("T%d", i))); err == nil {
				admitted.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	meta, err := s.GetMeta(ctx, "herd")
	require.NoError(t, err)
	assert.Len(t, meta.Members, 2)
	assert.Equal(t, int32(2), admitted.Load())
}

func TestStore_Unavailable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	ctx := context.Background()
	client := testutil.Redis(t)
	s := redisstore.New(client, redisstore.Options{Lifetime: time.Minute, Capacity: 2, Timeout: time.Second})
	require.NoError(t, client.Close())

	_, err := s.GetMeta(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), domain.ErrStoreUnavailable)
}
