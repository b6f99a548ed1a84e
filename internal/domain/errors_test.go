package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Duo/internal/domain"
)

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{domain.ErrRoomNotFound, "room_not_found"},
		{fmt.Errorf("%w: r1", domain.ErrRoomFull), "room_full"},
		{domain.ErrRoomExpired, "room_expired"},
		{domain.ErrUnauthorized, "unauthorized"},
		{domain.ErrInvalidInput, "invalid_input"},
		{domain.ErrRateLimited, "rate_limited"},
		{fmt.Errorf("%w: get meta r1: %w", domain.ErrStoreUnavailable, errors.New("i/o timeout")), "store_unavailable"},
		{domain.ErrChannelUnavailable, "channel_unavailable"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.Reason(tt.err), "%v", tt.err)
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, domain.IsTransient(fmt.Errorf("x: %w", domain.ErrStoreUnavailable)))
	assert.True(t, domain.IsTransient(domain.ErrChannelUnavailable))
	assert.False(t, domain.IsTransient(domain.ErrRoomFull))
	assert.False(t, domain.IsTransient(nil))
}
