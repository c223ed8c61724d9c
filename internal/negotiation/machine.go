// Package negotiation implements the per-participant state machine that
// drives a connection through the offer/answer/ICE exchange. Commands are
// guarded: a command whose guard is not satisfied is a no-op — no transition,
// no error, no log entry. Action failures on the underlying connection are
// returned to the caller and leave the machine where the transition put it.
package negotiation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/niconiahi/peercall/internal/event"
)

// State is a composite tag for the machine's position in the hierarchical
// offering/answering flow.
type State string

const (
	StateDisconnected State = "disconnected"

	StateOfferCreating  State = "connecting.offering.creating"
	StateOfferGathering State = "connecting.offering.gathering"
	StateOfferGathered  State = "connecting.offering.gathered"

	StateAnswerCreating  State = "connecting.answering.creating"
	StateAnswerGathering State = "connecting.answering.gathering"
	StateAnswerGathered  State = "connecting.answering.gathered"

	StatePeering   State = "connecting.peering"
	StateConnected State = "connected"
)

// Machine owns one participant's negotiation event log and applies guarded
// commands against it. All methods are safe for concurrent use: transport
// deliveries and local candidate callbacks may arrive on different
// goroutines.
type Machine struct {
	host     string
	username string
	conn     Connection
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	events *event.Log
}

func New(host, username string, conn Connection, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		host:     host,
		username: username,
		conn:     conn,
		log:      log.With(slog.String("username", username)),
		state:    StateDisconnected,
		events:   event.NewLog(),
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events returns a copy of the machine's event log in insertion order.
func (m *Machine) Events() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.Events()
}

// IsHost reports whether this participant plays the offering role.
func (m *Machine) IsHost() bool {
	return m.username == m.host
}

// CreateOffer starts the host path: create an offer, set it as the local
// description and record it. Permitted only for the host, with a connection,
// from the disconnected state. Returns false when the guard rejected the
// command.
func (m *Machine) CreateOffer(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateDisconnected || !m.IsHost() || m.conn == nil {
		return false, nil
	}
	m.setState(StateOfferCreating)

	offer, err := m.conn.CreateOffer(ctx)
	if err != nil {
		return false, err
	}
	if err := m.conn.SetLocalDescription(ctx, offer); err != nil {
		return false, err
	}

	m.events.Append(event.NewOffer(m.username, offer))
	// The self-emitted offer event advances the machine immediately.
	m.setState(StateOfferGathering)
	return true, nil
}

// CreateAnswer starts the guest path: apply the host's offer as the remote
// description, create and set the answer, then apply whatever peer
// candidates the log holds at this moment. Permitted only for a guest, with
// a connection, once the host's offer and gathered sentinel are present.
//
// Unlike the host, the guest does not run a final peering gate: descriptions
// and candidates are applied exactly once, here.
func (m *Machine) CreateAnswer(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offer, hasOffer := m.events.Offer()
	if m.state != StateDisconnected || m.IsHost() || m.conn == nil ||
		!hasOffer || !m.events.HasGatheredBy(m.host) {
		return false, nil
	}
	m.setState(StateAnswerCreating)

	if err := m.conn.SetRemoteDescription(ctx, offer.SessionDescription); err != nil {
		return false, err
	}
	answer, err := m.conn.CreateAnswer(ctx)
	if err != nil {
		return false, err
	}
	if err := m.conn.SetLocalDescription(ctx, answer); err != nil {
		return false, err
	}
	for _, c := range m.events.CandidatesExcluding(m.username) {
		if err := m.conn.AddICECandidate(ctx, c.Candidate); err != nil {
			return false, err
		}
		m.log.Debug("added ice candidate", slog.String("from", c.Sender))
	}

	m.events.Append(event.NewAnswer(m.username, answer))
	m.setState(StateAnswerGathering)
	return true, nil
}

// AddLocalCandidate records one locally produced ICE candidate. Only
// meaningful while gathering; the machine stays in the same state. Candidate
// count is unbounded.
func (m *Machine) AddLocalCandidate(candidate string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOfferGathering && m.state != StateAnswerGathering {
		return false
	}
	m.events.Append(event.NewCandidate(m.username, candidate))
	return true
}

// FinishGathering records the gathered sentinel for this participant once
// local candidate gathering completes.
func (m *Machine) FinishGathering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateOfferGathering:
		m.events.Append(event.NewGathered(m.username))
		m.setState(StateOfferGathered)
		return true
	case StateAnswerGathering:
		m.events.Append(event.NewGathered(m.username))
		m.setState(StateAnswerGathered)
		return true
	default:
		return false
	}
}

// AddAnswer runs the host's peering gate: apply the offer as the local
// description, the answer as the remote description, and every peer
// candidate in log order, then complete the negotiation. Permitted only for
// the host, with a connection, once the offer, the answer and the guest's
// gathered sentinel are all present.
func (m *Machine) AddAnswer(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offer, hasOffer := m.events.Offer()
	answer, hasAnswer := m.events.Answer()
	if m.state != StateOfferGathered || !m.IsHost() || m.conn == nil ||
		!hasOffer || !hasAnswer || !m.events.HasGatheredExcluding(m.host) {
		return false, nil
	}
	m.setState(StatePeering)

	if err := m.conn.SetLocalDescription(ctx, offer.SessionDescription); err != nil {
		return false, err
	}
	if err := m.conn.SetRemoteDescription(ctx, answer.SessionDescription); err != nil {
		return false, err
	}
	for _, c := range m.events.CandidatesExcluding(m.username) {
		if err := m.conn.AddICECandidate(ctx, c.Candidate); err != nil {
			return false, err
		}
		m.log.Debug("added ice candidate", slog.String("from", c.Sender))
	}

	m.setState(StateConnected)
	return true, nil
}

// SetEvents wholesale-replaces the event log with the given events. Active
// in every state; used when a peer's full log arrives via the relay. The
// replacement does not merge with locally known events — callers are
// expected to transmit full logs, so a well-behaved peer never loses
// anything.
func (m *Machine) SetEvents(events []event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events.Replace(events)
}

// setState must be called with the mutex held.
func (m *Machine) setState(next State) {
	m.log.Debug("transition",
		slog.String("from", string(m.state)),
		slog.String("to", string(next)),
	)
	m.state = next
}
