package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Duo/internal/app"
	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestRegistry(t *testing.T) {
	reg := app.NewRegistry()

	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	ctxC, cancelC := context.WithCancel(context.Background())
	defer cancelC()

	reg.Bind("sid-a", "r1", "T1", nopConn{}, nil, cancelA)
	reg.Bind("sid-b", "r1", "T2", nopConn{}, nil, cancelB)
	reg.Bind("sid-c", "r2", "T3", nopConn{}, nil, cancelC)
	assert.Equal(t, 3, reg.Count())

	room, token, ok := reg.RoomOf("sid-b")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), room)
	assert.Equal(t, domain.Token("T2"), token)

	assert.Len(t, reg.MembersOfRoom("r1"), 2)
	assert.Len(t, reg.MembersOfRoom("r2"), 1)
	assert.Empty(t, reg.MembersOfRoom("r3"))

	assert.True(t, reg.Cancel("sid-a"))
	assert.Error(t, ctxA.Err())
	assert.NoError(t, ctxB.Err())
	assert.False(t, reg.Cancel("missing"))

	_, ok = reg.Unbind("sid-a")
	assert.True(t, ok)
	_, ok = reg.Unbind("sid-a")
	assert.False(t, ok)
	_, _, ok = reg.RoomOf("sid-a")
	assert.False(t, ok)

	assert.Equal(t, 2, reg.CancelAll())
	assert.Error(t, ctxB.Err())
	assert.Error(t, ctxC.Err())
}
