// Package pubsub provides core.PubSub backends: Redis Pub/Sub, NATS core
// subjects and an in-process broker.
package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duo/internal/core"
	"github.com/dkeye/Duo/internal/domain"
)

// subscriptionBuffer is the per-subscription backend buffer.
const subscriptionBuffer = 64

// envelope is the wire format shared by the network backends.
type envelope struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

func encode(name domain.EventName, payload []byte) ([]byte, error) {
	b, err := json.Marshal(envelope{Event: name, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", domain.ErrInvalidInput, name, err)
	}
	return b, nil
}

func decode(channel string, raw []byte) (core.Delivery, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Err(err).Str("module", "pubsub").Str("channel", channel).Msg("dropping undecodable delivery")
		return core.Delivery{}, false
	}
	return core.Delivery{Name: env.Event, Payload: env.Data}, true
}
