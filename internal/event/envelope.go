package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEnvelopeType = errors.New("event: unknown envelope type")
	ErrInvalidEnvelope     = errors.New("event: invalid envelope")
)

// EnvelopeType discriminates the relay-level message kinds.
type EnvelopeType string

const (
	// EnvelopeGet requests the receiver's full event log.
	EnvelopeGet EnvelopeType = "get"
	// EnvelopeSend delivers a batch of negotiation events.
	EnvelopeSend EnvelopeType = "send"
)

// Envelope is the message exchanged over the relay transport. It sits one
// layer above negotiation semantics: the relay validates and forwards
// envelopes without interpreting the events inside.
type Envelope struct {
	Type   EnvelopeType
	Sender string
	Events []Event
}

func NewGet(sender string) Envelope {
	return Envelope{Type: EnvelopeGet, Sender: sender}
}

func NewSend(sender string, events []Event) Envelope {
	if events == nil {
		events = []Event{}
	}
	return Envelope{Type: EnvelopeSend, Sender: sender, Events: events}
}

type getWire struct {
	Type   EnvelopeType `json:"type"`
	Sender string       `json:"sender"`
}

type sendWire struct {
	Type   EnvelopeType `json:"type"`
	Sender string       `json:"sender"`
	Events []Event      `json:"events"`
}

// MarshalJSON emits the wire shape for the envelope kind: "get" carries no
// events key, "send" always carries one, even when the batch is empty.
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EnvelopeGet:
		return json.Marshal(getWire{Type: e.Type, Sender: e.Sender})
	case EnvelopeSend:
		events := e.Events
		if events == nil {
			events = []Event{}
		}
		return json.Marshal(sendWire{Type: e.Type, Sender: e.Sender, Events: events})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvelopeType, e.Type)
	}
}

// UnmarshalEnvelope decodes and validates a relay message. Every event inside
// a "send" batch is validated individually; one bad event rejects the whole
// envelope.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var probe struct {
		Type EnvelopeType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	switch probe.Type {
	case EnvelopeGet:
		var wire struct {
			Type   EnvelopeType `json:"type" validate:"required,eq=get"`
			Sender string       `json:"sender" validate:"required"`
		}
		if err := decodeStrict(data, &wire); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		return Envelope{Type: EnvelopeGet, Sender: wire.Sender}, nil

	case EnvelopeSend:
		var wire struct {
			Type   EnvelopeType       `json:"type" validate:"required,eq=send"`
			Sender string             `json:"sender" validate:"required"`
			Events *[]json.RawMessage `json:"events"`
		}
		if err := decodeStrict(data, &wire); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		// An empty batch is legal, a missing "events" key is not.
		if wire.Events == nil {
			return Envelope{}, fmt.Errorf("%w: missing events", ErrInvalidEnvelope)
		}
		events := make([]Event, 0, len(*wire.Events))
		for _, raw := range *wire.Events {
			ev, err := Unmarshal(raw)
			if err != nil {
				return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
			}
			events = append(events, ev)
		}
		return Envelope{Type: EnvelopeSend, Sender: wire.Sender, Events: events}, nil

	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEnvelopeType, probe.Type)
	}
}
