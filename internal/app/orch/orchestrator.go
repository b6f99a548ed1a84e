package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/app"
	"github.com/dkeye/Duo/internal/core"
)

// Orchestrator wires the room components together for the transport
// adapters. It holds no state of its own besides the connection registry.
type Orchestrator struct {
	Registry  *app.Registry
	Lifecycle *app.Lifecycle
	Admission *app.Admission
	Gateway   *app.Gateway
	Channel   *app.Channel
	Tokens    core.TokenIssuer
	Store     core.RoomStore
	PubSub    core.PubSub
}

// Ready pings the store and the pub/sub backend.
func (o *Orchestrator) Ready(ctx context.Context) error {
	return errors.Join(o.Store.Ping(ctx), o.PubSub.Ping(ctx))
}

// Shutdown cancels every live connection and closes all subscriptions.
func (o *Orchestrator) Shutdown() {
	n := o.Registry.CancelAll()
	o.Channel.Close()
	log.Info().Str("module", "orch").Int("connections", n).Msg("orchestrator stopped")
}
