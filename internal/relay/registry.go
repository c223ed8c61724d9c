package relay

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("relay: session not found")

// Session is a point-in-time snapshot of one live session.
type Session struct {
	Host        string
	Connections int
	CreatedAt   time.Time
}

// SessionRelay is the contract the transport layer consumes. Sessions exist
// only while at least one socket is joined; nothing is persisted.
type SessionRelay interface {
	Serve(host string, sock Socket)
	Sessions() []Session
	Session(host string) (Session, error)
}

// Registry owns one hub per host identity. Hubs are created on first join
// and evicted once their last socket disconnects.
type Registry struct {
	log *slog.Logger

	mu   sync.Mutex
	hubs map[string]*Hub
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:  log,
		hubs: make(map[string]*Hub),
	}
}

// Serve joins the socket to the session for the given host and blocks until
// the socket disconnects. On return the socket has been removed from the
// session's connection set, and the session itself is gone if the socket was
// the last one.
func (r *Registry) Serve(host string, sock Socket) {
	r.mu.Lock()
	hub, ok := r.hubs[host]
	if !ok {
		hub = newHub(host, r.log)
		r.hubs[host] = hub
		r.log.Info("session created", slog.String("host", host))
	}
	id := hub.add(sock)
	r.mu.Unlock()

	hub.readLoop(sock)

	r.mu.Lock()
	hub.remove(id)
	if hub.size() == 0 {
		delete(r.hubs, host)
		r.log.Info("session destroyed", slog.String("host", host))
	}
	r.mu.Unlock()
}

// Sessions snapshots every live session.
func (r *Registry) Sessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.hubs))
	for host, hub := range r.hubs {
		out = append(out, Session{
			Host:        host,
			Connections: hub.size(),
			CreatedAt:   hub.createdAt,
		})
	}
	return out
}

// Session snapshots one live session by host identity.
func (r *Registry) Session(host string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hub, ok := r.hubs[host]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return Session{
		Host:        hub.host,
		Connections: hub.size(),
		CreatedAt:   hub.createdAt,
	}, nil
}
