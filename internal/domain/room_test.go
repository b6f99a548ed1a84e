package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Duo/internal/domain"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{raw: "r1"},
		{raw: "V1StGXR8_Z5jdHi6B-myT"},
		{raw: strings.Repeat("a", domain.MaxRoomIDLen)},
		{raw: "", wantErr: true},
		{raw: strings.Repeat("a", domain.MaxRoomIDLen+1), wantErr: true},
		{raw: "room/1", wantErr: true},
		{raw: "room 1", wantErr: true},
		{raw: "{r1}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			id, err := domain.ParseRoomID(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.RoomID(tt.raw), id)
		})
	}
}

func TestRoomMeta_HasMember(t *testing.T) {
	meta := domain.RoomMeta{ID: "r1", Members: []domain.Token{"T1", "T2"}}

	assert.True(t, meta.HasMember("T1"))
	assert.True(t, meta.HasMember("T2"))
	assert.False(t, meta.HasMember("T3"))
	assert.False(t, meta.HasMember(""))
	assert.Equal(t, 2, meta.MemberCount())
}

func TestRoomMeta_ExpiresAt(t *testing.T) {
	readAt := time.Unix(1000, 0)
	meta := domain.RoomMeta{TTL: 90 * time.Second}
	assert.Equal(t, time.Unix(1090, 0), meta.ExpiresAt(readAt))
}

func TestToken_Short(t *testing.T) {
	assert.Equal(t, "abc", domain.Token("abc").Short())
	assert.Equal(t, "V1StGX…", domain.Token("V1StGXR8_Z5jdHi6B-myT").Short())
}
