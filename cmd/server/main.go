package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Duo/internal/adapters/http"
	"github.com/dkeye/Duo/internal/adapters/memstore"
	"github.com/dkeye/Duo/internal/adapters/pubsub"
	"github.com/dkeye/Duo/internal/adapters/redisstore"
	wssignal "github.com/dkeye/Duo/internal/adapters/signal"
	"github.com/dkeye/Duo/internal/adapters/token"
	"github.com/dkeye/Duo/internal/app"
	"github.com/dkeye/Duo/internal/app/orch"
	"github.com/dkeye/Duo/internal/config"
	"github.com/dkeye/Duo/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	g, ctx := errgroup.WithContext(ctx)

	var rdb *redis.Client
	if cfg.Store.Backend == config.BackendRedis || cfg.PubSub.Backend == config.BackendRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		defer rdb.Close()
	}

	var store core.RoomStore
	switch cfg.Store.Backend {
	case config.BackendRedis:
		store = redisstore.New(rdb, redisstore.Options{
			Lifetime: cfg.Rooms.Lifetime,
			Capacity: cfg.Rooms.Capacity,
			Timeout:  cfg.Store.Timeout,
		})
	default:
		mem := memstore.New(cfg.Rooms.Lifetime, cfg.Rooms.Capacity)
		g.Go(func() error {
			mem.Run(ctx, time.Minute)
			return nil
		})
		store = mem
	}

	var ps core.PubSub
	switch cfg.PubSub.Backend {
	case config.BackendRedis:
		ps = pubsub.NewRedis(rdb, cfg.PubSub.Timeout)
	case config.BackendNats:
		n, err := pubsub.NewNats(cfg.PubSub.NatsURL, cfg.PubSub.Timeout)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		ps = n
	default:
		ps = pubsub.NewMemory()
	}
	defer ps.Close()

	if err := store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("store not reachable yet")
	}

	tokens, err := token.NewNanoID()
	if err != nil {
		return err
	}

	channel := app.NewChannel(ps, app.SimplePolicy{})
	lifecycle := app.NewLifecycle(store, channel, app.LifecycleOptions{
		WarnThreshold: cfg.Rooms.WarnThreshold,
		DestroyLead:   cfg.Rooms.DestroyLead,
		SlidingTTL:    cfg.Rooms.SlidingTTL,
	})

	o := &orch.Orchestrator{
		Registry:  app.NewRegistry(),
		Lifecycle: lifecycle,
		Admission: app.NewAdmission(store, tokens, cfg.Rooms.Capacity),
		Gateway:   app.NewGateway(store, channel, lifecycle, tokens, cfg.Rooms.MaxMessageLen),
		Channel:   channel,
		Tokens:    tokens,
		Store:     store,
		PubSub:    ps,
	}

	limiter := wssignal.NewRoomRateLimiter(cfg.Rooms.SendRate, cfg.Rooms.SendInterval)
	g.Go(func() error {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				limiter.Prune()
			}
		}
	})

	r := router.SetupRouter(ctx, cfg, o, limiter)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Duo server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		o.Shutdown()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	return g.Wait()
}
