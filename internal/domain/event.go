package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type EventName string

const (
	EventMessage EventName = "chat.message"
	EventDestroy EventName = "chat.destroy"
)

// Event is one of the closed set of variants that travel on a room channel.
type Event interface {
	Name() EventName
	Validate() error
}

type MessageEvent struct {
	Message
}

func (MessageEvent) Name() EventName { return EventMessage }

func (e MessageEvent) Validate() error { return e.Message.Validate() }

type DestroyEvent struct {
	IsDestroyed bool `json:"isDestroyed"`
}

func (DestroyEvent) Name() EventName { return EventDestroy }

func (e DestroyEvent) Validate() error {
	if !e.IsDestroyed {
		return fmt.Errorf("%w: destroy event must have isDestroyed=true", ErrInvalidInput)
	}
	return nil
}

func KnownEvent(name EventName) bool {
	switch name {
	case EventMessage, EventDestroy:
		return true
	}
	return false
}

// DecodeEvent turns a wire payload into its typed variant.
func DecodeEvent(name EventName, payload []byte) (Event, error) {
	var ev Event
	switch name {
	case EventMessage:
		var m MessageEvent
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidInput, name, err)
		}
		ev = m
	case EventDestroy:
		var d DestroyEvent
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidInput, name, err)
		}
		ev = d
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidInput, name)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// ParseEventNames parses a comma separated filter such as
// "chat.message,chat.destroy". Empty input selects every known event.
func ParseEventNames(csv string) ([]EventName, error) {
	if strings.TrimSpace(csv) == "" {
		return []EventName{EventMessage, EventDestroy}, nil
	}
	var out []EventName
	for _, part := range strings.Split(csv, ",") {
		name := EventName(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if !KnownEvent(name) {
			return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidInput, name)
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty event filter", ErrInvalidInput)
	}
	return out, nil
}
