// Package signaling implements the client side of the envelope protocol: it
// translates high-level intents into get/send envelopes, interprets received
// ones, and lets the negotiation machine re-evaluate its guarded commands
// after every log change.
package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/niconiahi/peercall/internal/event"
	"github.com/niconiahi/peercall/internal/negotiation"
	"github.com/niconiahi/peercall/lib/logger/sl"
)

// Client drives one participant's relay connection. Writes are serialized by
// a mutex; the read loop runs in Run on the caller's goroutine.
type Client struct {
	conn     *websocket.Conn
	machine  *negotiation.Machine
	host     string
	username string
	log      *slog.Logger

	writeMu sync.Mutex
}

// Dial connects to the relay's upgrade endpoint for the given host identity.
// relayURL is the broadcaster endpoint, e.g. "ws://localhost:8080/broadcaster".
func Dial(ctx context.Context, relayURL, host, username string, machine *negotiation.Machine, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("host", host)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to relay: %w", err)
	}

	return &Client{
		conn:     conn,
		machine:  machine,
		host:     host,
		username: username,
		log:      log.With(slog.String("username", username)),
	}, nil
}

// Run performs the join handshake and then pumps relay messages until the
// connection closes or ctx is cancelled. A guest starts by requesting the
// host's event log; the host starts by resolving its own enabled commands
// (which creates the offer).
func (c *Client) Run(ctx context.Context) error {
	context.AfterFunc(ctx, func() {
		c.conn.Close()
	})

	if c.username == c.host {
		c.resolve(ctx)
	} else if err := c.GetEvents(); err != nil {
		return err
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read from relay: %w", err)
		}
		c.handle(ctx, raw)
	}
}

// GetEvents asks the session for the peer's full event log.
func (c *Client) GetEvents() error {
	c.log.Debug("sending get")
	return c.write(event.NewGet(c.username))
}

// SendEvents pushes this participant's full event log to the session.
func (c *Client) SendEvents() error {
	events := c.machine.Events()
	c.log.Debug("sending events", slog.Int("count", len(events)))
	return c.write(event.NewSend(c.username, events))
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(env event.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// handle processes one relay message. Malformed payloads are logged and
// dropped; envelopes echoed back with our own sender are discarded.
func (c *Client) handle(ctx context.Context, raw []byte) {
	env, err := event.UnmarshalEnvelope(raw)
	if err != nil {
		c.log.Warn("dropping invalid envelope", sl.Err(err))
		return
	}
	if env.Sender == c.username {
		return
	}
	c.log.Debug("received envelope",
		slog.String("type", string(env.Type)),
		slog.String("sender", env.Sender),
	)

	switch env.Type {
	case event.EnvelopeGet:
		if err := c.SendEvents(); err != nil {
			c.log.Warn("failed to answer get", sl.Err(err))
		}
	case event.EnvelopeSend:
		c.machine.SetEvents(env.Events)
		c.resolve(ctx)
	}
}

// resolve dispatches whichever guarded commands the current log enables and
// pushes the updated log when a command went through. Guard rejections are
// silent no-ops by design.
func (c *Client) resolve(ctx context.Context) {
	applied := false

	ok, err := c.machine.CreateOffer(ctx)
	if err != nil {
		c.log.Error("create offer failed", sl.Err(err))
	}
	applied = applied || ok

	ok, err = c.machine.CreateAnswer(ctx)
	if err != nil {
		c.log.Error("create answer failed", sl.Err(err))
	}
	applied = applied || ok

	ok, err = c.machine.AddAnswer(ctx)
	if err != nil {
		c.log.Error("add answer failed", sl.Err(err))
	}
	applied = applied || ok

	if applied {
		if err := c.SendEvents(); err != nil {
			c.log.Warn("failed to push events", sl.Err(err))
		}
	}
}
