package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Rooms  RoomsConfig  `mapstructure:"rooms"`
	Store  StoreConfig  `mapstructure:"store"`
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

type RoomsConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	Lifetime      time.Duration `mapstructure:"lifetime"`
	WarnThreshold time.Duration `mapstructure:"warn_threshold"`
	DestroyLead   time.Duration `mapstructure:"destroy_lead"`
	SlidingTTL    bool          `mapstructure:"sliding_ttl"`
	MaxMessageLen int           `mapstructure:"max_message_len"`
	SendRate      int           `mapstructure:"send_rate"`
	SendInterval  time.Duration `mapstructure:"send_interval"`
}

type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type PubSubConfig struct {
	Backend string        `mapstructure:"backend"`
	NatsURL string        `mapstructure:"nats_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNats   = "nats"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 8192)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")

	v.SetDefault("rooms.capacity", 2)
	v.SetDefault("rooms.lifetime", "10m")
	v.SetDefault("rooms.warn_threshold", "60s")
	v.SetDefault("rooms.destroy_lead", "1s")
	v.SetDefault("rooms.sliding_ttl", false)
	v.SetDefault("rooms.max_message_len", 1000)
	v.SetDefault("rooms.send_rate", 10)
	v.SetDefault("rooms.send_interval", "10s")

	v.SetDefault("store.backend", BackendRedis)
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.timeout", "2s")

	v.SetDefault("pubsub.backend", BackendRedis)
	v.SetDefault("pubsub.nats_url", "nats://localhost:4222")
	v.SetDefault("pubsub.timeout", "2s")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of defaults.
// DUO_* environment variables override both (DUO_STORE_REDIS_ADDR, ...).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("DUO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("store", cfg.Store.Backend).
		Str("pubsub", cfg.PubSub.Backend).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Rooms.Capacity < 1 {
		errs = append(errs, fmt.Errorf("rooms.capacity must be at least 1, got %d", c.Rooms.Capacity))
	}
	if c.Rooms.Lifetime <= 0 {
		errs = append(errs, errors.New("rooms.lifetime must be positive"))
	}
	if c.Rooms.DestroyLead < 0 || c.Rooms.DestroyLead >= c.Rooms.Lifetime {
		errs = append(errs, errors.New("rooms.destroy_lead must be in [0, lifetime)"))
	}
	if c.Rooms.MaxMessageLen < 1 || c.Rooms.MaxMessageLen > 1000 {
		errs = append(errs, fmt.Errorf("rooms.max_message_len must be in [1, 1000], got %d", c.Rooms.MaxMessageLen))
	}
	if c.Store.Timeout <= 0 || c.PubSub.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout and pubsub.timeout must be positive"))
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	switch c.PubSub.Backend {
	case BackendMemory, BackendRedis, BackendNats:
	default:
		errs = append(errs, fmt.Errorf("unknown pubsub.backend %q", c.PubSub.Backend))
	}
	if c.Store.Backend == BackendMemory && c.PubSub.Backend != BackendMemory {
		// memory store is process-local; fanning out across processes would
		// let other processes see rooms they cannot read.
		errs = append(errs, errors.New("store.backend=memory requires pubsub.backend=memory"))
	}
	if c.Mode == "release" && c.Secret == "" {
		errs = append(errs, errors.New("secret is required in release mode"))
	}
	return errors.Join(errs...)
}
