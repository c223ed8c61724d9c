// Package event defines the wire representation of the negotiation protocol:
// the four negotiation events exchanged between peers and the relay-level
// envelope that carries them. Decoding is strict — unknown fields and missing
// required fields are rejected so that a malformed payload never reaches the
// state machine.
package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownType = errors.New("event: unknown event type")
	ErrInvalid     = errors.New("event: invalid event")
)

var validate = validator.New()

// Type discriminates the negotiation event kinds.
type Type string

const (
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"
	TypeGathered  Type = "gathered"
)

// Event is one unit of session-establishment data. The concrete types carry
// their discriminator so they marshal directly to the wire shape.
type Event interface {
	EventType() Type
	EventSender() string
}

// Offer is the host's proposed session description. The description is an
// opaque serialized structure; this package only transports it.
type Offer struct {
	Type               Type   `json:"type" validate:"required,eq=offer"`
	Sender             string `json:"sender" validate:"required"`
	SessionDescription string `json:"sessionDescription" validate:"required"`
}

func NewOffer(sender, sessionDescription string) Offer {
	return Offer{Type: TypeOffer, Sender: sender, SessionDescription: sessionDescription}
}

func (e Offer) EventType() Type     { return TypeOffer }
func (e Offer) EventSender() string { return e.Sender }

// Answer is the guest's accepting session description.
type Answer struct {
	Type               Type   `json:"type" validate:"required,eq=answer"`
	Sender             string `json:"sender" validate:"required"`
	SessionDescription string `json:"sessionDescription" validate:"required"`
}

func NewAnswer(sender, sessionDescription string) Answer {
	return Answer{Type: TypeAnswer, Sender: sender, SessionDescription: sessionDescription}
}

func (e Answer) EventType() Type     { return TypeAnswer }
func (e Answer) EventSender() string { return e.Sender }

// Candidate is a single ICE candidate, emitted zero or more times per side.
type Candidate struct {
	Type      Type   `json:"type" validate:"required,eq=candidate"`
	Sender    string `json:"sender" validate:"required"`
	Candidate string `json:"candidate" validate:"required"`
}

func NewCandidate(sender, candidate string) Candidate {
	return Candidate{Type: TypeCandidate, Sender: sender, Candidate: candidate}
}

func (e Candidate) EventType() Type     { return TypeCandidate }
func (e Candidate) EventSender() string { return e.Sender }

// Gathered marks that a side has finished emitting candidates.
type Gathered struct {
	Type   Type   `json:"type" validate:"required,eq=gathered"`
	Sender string `json:"sender" validate:"required"`
}

func NewGathered(sender string) Gathered {
	return Gathered{Type: TypeGathered, Sender: sender}
}

func (e Gathered) EventType() Type     { return TypeGathered }
func (e Gathered) EventSender() string { return e.Sender }

// Unmarshal decodes a single negotiation event. The payload must carry a
// known "type" discriminator, every field the type requires, and nothing else.
func Unmarshal(data []byte) (Event, error) {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch probe.Type {
	case TypeOffer:
		var ev Offer
		if err := decodeStrict(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeAnswer:
		var ev Answer
		if err := decodeStrict(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeCandidate:
		var ev Candidate
		if err := decodeStrict(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeGathered:
		var ev Gathered
		if err := decodeStrict(data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, probe.Type)
	}
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
