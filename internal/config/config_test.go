package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDecode_Defaults(t *testing.T) {
	v := newViper()
	v.Set("secret", "s3cret")

	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2, cfg.Rooms.Capacity)
	assert.Equal(t, 10*time.Minute, cfg.Rooms.Lifetime)
	assert.Equal(t, 60*time.Second, cfg.Rooms.WarnThreshold)
	assert.Equal(t, time.Second, cfg.Rooms.DestroyLead)
	assert.False(t, cfg.Rooms.SlidingTTL)
	assert.Equal(t, 1000, cfg.Rooms.MaxMessageLen)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, BackendRedis, cfg.PubSub.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{
			name:    "release needs secret",
			mutate:  func(v *viper.Viper) {},
			wantErr: "secret is required",
		},
		{
			name: "debug without secret is fine",
			mutate: func(v *viper.Viper) {
				v.Set("mode", "debug")
			},
		},
		{
			name: "zero capacity",
			mutate: func(v *viper.Viper) {
				v.Set("secret", "s")
				v.Set("rooms.capacity", 0)
			},
			wantErr: "rooms.capacity",
		},
		{
			name: "message limit above hard bound",
			mutate: func(v *viper.Viper) {
				v.Set("secret", "s")
				v.Set("rooms.max_message_len", 1001)
			},
			wantErr: "rooms.max_message_len",
		},
		{
			name: "destroy lead past lifetime",
			mutate: func(v *viper.Viper) {
				v.Set("secret", "s")
				v.Set("rooms.lifetime", "1s")
				v.Set("rooms.destroy_lead", "2s")
			},
			wantErr: "rooms.destroy_lead",
		},
		{
			name: "memory store with shared pubsub",
			mutate: func(v *viper.Viper) {
				v.Set("secret", "s")
				v.Set("store.backend", BackendMemory)
				v.Set("pubsub.backend", BackendNats)
			},
			wantErr: "requires pubsub.backend=memory",
		},
		{
			name: "unknown backend",
			mutate: func(v *viper.Viper) {
				v.Set("secret", "s")
				v.Set("pubsub.backend", "kafka")
			},
			wantErr: "unknown pubsub.backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			tt.mutate(v)
			_, err := decode(v)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_ENV", "does-not-exist")
	t.Setenv("DUO_SECRET", "from-env")
	t.Setenv("DUO_ROOMS_CAPACITY", "3")
	t.Setenv("DUO_ROOMS_LIFETIME", "5m")
	t.Setenv("DUO_STORE_BACKEND", BackendMemory)
	t.Setenv("DUO_PUBSUB_BACKEND", BackendMemory)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Secret)
	assert.Equal(t, 3, cfg.Rooms.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.Rooms.Lifetime)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
}
