// Package relay implements the per-session broadcast hub and the registry
// that owns one hub per host identity. A hub validates every inbound message
// against the envelope schema and fans valid ones out to all sockets in the
// session, sender included — suppressing the echo is the receiver's job.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/niconiahi/peercall/internal/event"
	"github.com/niconiahi/peercall/lib/logger/sl"
)

// Socket is the subset of a websocket connection the hub drives. It matches
// gorilla's *websocket.Conn so tests can substitute fakes.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub owns the connection set of one session. All mutation of the set and
// all writes to its sockets happen under the hub mutex, so a broadcast never
// races a removal.
type Hub struct {
	host      string
	createdAt time.Time
	log       *slog.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]Socket
}

func newHub(host string, log *slog.Logger) *Hub {
	return &Hub{
		host:      host,
		createdAt: time.Now().UTC(),
		log:       log.With(slog.String("host", host)),
		conns:     make(map[uuid.UUID]Socket),
	}
}

func (h *Hub) add(sock Socket) uuid.UUID {
	id := uuid.New()
	h.mu.Lock()
	h.conns[id] = sock
	h.mu.Unlock()
	h.log.Info("socket joined", slog.String("conn_id", id.String()))
	return id
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
	h.log.Info("socket left", slog.String("conn_id", id.String()))
}

func (h *Hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// HandleMessage validates raw inbound bytes and broadcasts the parsed
// envelope. A payload failing validation is logged and dropped: no response,
// no broadcast, the connection stays open.
func (h *Hub) HandleMessage(raw []byte) {
	env, err := event.UnmarshalEnvelope(raw)
	if err != nil {
		h.log.Warn("dropping invalid message", sl.Err(err))
		return
	}
	h.Broadcast(env)
}

// Broadcast serializes the envelope once and sends it to every socket in the
// session. Delivery is best-effort per socket: one failed write is logged
// and does not suppress delivery to the others.
func (h *Hub) Broadcast(env event.Envelope) {
	data, err := env.MarshalJSON()
	if err != nil {
		h.log.Error("marshal envelope", sl.Err(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.Debug("broadcasting",
		slog.String("type", string(env.Type)),
		slog.String("sender", env.Sender),
		slog.Int("sockets", len(h.conns)),
	)
	for id, sock := range h.conns {
		if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Warn("broadcast write failed",
				slog.String("conn_id", id.String()), sl.Err(err))
		}
	}
}

// readLoop pumps messages from one socket into the hub until the socket
// closes or errors.
func (h *Hub) readLoop(sock Socket) {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read failed", sl.Err(err))
			}
			return
		}
		h.HandleMessage(raw)
	}
}
