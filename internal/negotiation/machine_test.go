package negotiation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niconiahi/peercall/internal/event"
)

// fakeConn records every call the machine makes against the connection
// capability.
type fakeConn struct {
	mu sync.Mutex

	offer  string
	answer string

	createOfferErr error

	locals     []string
	remotes    []string
	candidates []string
}

func (c *fakeConn) CreateOffer(context.Context) (string, error) {
	if c.createOfferErr != nil {
		return "", c.createOfferErr
	}
	return c.offer, nil
}

func (c *fakeConn) CreateAnswer(context.Context) (string, error) {
	return c.answer, nil
}

func (c *fakeConn) SetLocalDescription(_ context.Context, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locals = append(c.locals, description)
	return nil
}

func (c *fakeConn) SetRemoteDescription(_ context.Context, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remotes = append(c.remotes, description)
	return nil
}

func (c *fakeConn) AddICECandidate(_ context.Context, candidate string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateOfferGuardedByHostRole(t *testing.T) {
	for _, username := range []string{"g1", "someone-else", "h1 "} {
		conn := &fakeConn{offer: "offer-sdp"}
		m := New("h1", username, conn, discardLogger())

		ok, err := m.CreateOffer(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, StateDisconnected, m.State())
		assert.Empty(t, m.Events())
		assert.Empty(t, conn.locals)
	}
}

func TestCreateOfferGuardedByConnection(t *testing.T) {
	m := New("h1", "h1", nil, discardLogger())

	ok, err := m.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestCreateOfferRecordsAndGathers(t *testing.T) {
	conn := &fakeConn{offer: "offer-sdp"}
	m := New("h1", "h1", conn, discardLogger())

	ok, err := m.CreateOffer(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, StateOfferGathering, m.State())
	assert.Equal(t, []string{"offer-sdp"}, conn.locals)

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.NewOffer("h1", "offer-sdp"), events[0])

	// A second dispatch is a no-op: the machine has left disconnected.
	ok, err = m.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateOfferActionFailure(t *testing.T) {
	conn := &fakeConn{createOfferErr: errors.New("boom")}
	m := New("h1", "h1", conn, discardLogger())

	ok, err := m.CreateOffer(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
	// The transition already happened; the machine stays where the command
	// put it, with nothing recorded.
	assert.Equal(t, StateOfferCreating, m.State())
	assert.Empty(t, m.Events())
}

func TestGatheringAppendsCandidatesAndSentinel(t *testing.T) {
	conn := &fakeConn{offer: "offer-sdp"}
	m := New("h1", "h1", conn, discardLogger())

	_, err := m.CreateOffer(context.Background())
	require.NoError(t, err)

	assert.True(t, m.AddLocalCandidate("c1"))
	assert.True(t, m.AddLocalCandidate("c2"))
	assert.Equal(t, StateOfferGathering, m.State())

	assert.True(t, m.FinishGathering())
	assert.Equal(t, StateOfferGathered, m.State())

	// Candidates produced after gathering completed are ignored.
	assert.False(t, m.AddLocalCandidate("late"))
	assert.False(t, m.FinishGathering())

	events := m.Events()
	require.Len(t, events, 4)
	assert.Equal(t, event.NewCandidate("h1", "c1"), events[1])
	assert.Equal(t, event.NewCandidate("h1", "c2"), events[2])
	assert.Equal(t, event.NewGathered("h1"), events[3])
}

func TestAddLocalCandidateBeforeOffer(t *testing.T) {
	m := New("h1", "h1", &fakeConn{}, discardLogger())
	assert.False(t, m.AddLocalCandidate("c1"))
	assert.Empty(t, m.Events())
}

func TestCreateAnswerGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("host cannot answer", func(t *testing.T) {
		m := New("h1", "h1", &fakeConn{}, discardLogger())
		m.SetEvents([]event.Event{
			event.NewOffer("h1", "offer-sdp"),
			event.NewGathered("h1"),
		})
		ok, err := m.CreateAnswer(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("requires offer", func(t *testing.T) {
		m := New("h1", "g1", &fakeConn{}, discardLogger())
		m.SetEvents([]event.Event{event.NewGathered("h1")})
		ok, err := m.CreateAnswer(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, StateDisconnected, m.State())
	})

	t.Run("requires host gathered", func(t *testing.T) {
		m := New("h1", "g1", &fakeConn{}, discardLogger())
		m.SetEvents([]event.Event{event.NewOffer("h1", "offer-sdp")})
		ok, err := m.CreateAnswer(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCreateAnswerAppliesOfferAndCandidates(t *testing.T) {
	conn := &fakeConn{answer: "answer-sdp"}
	m := New("h1", "g1", conn, discardLogger())
	m.SetEvents([]event.Event{
		event.NewOffer("h1", "offer-sdp"),
		event.NewCandidate("h1", "host-c1"),
		event.NewCandidate("h1", "host-c2"),
		event.NewGathered("h1"),
	})

	ok, err := m.CreateAnswer(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, StateAnswerGathering, m.State())
	assert.Equal(t, []string{"offer-sdp"}, conn.remotes)
	assert.Equal(t, []string{"answer-sdp"}, conn.locals)
	assert.Equal(t, []string{"host-c1", "host-c2"}, conn.candidates)

	events := m.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, event.NewAnswer("g1", "answer-sdp"), events[len(events)-1])
}

func TestSetEventsIsIdempotent(t *testing.T) {
	m := New("h1", "g1", &fakeConn{}, discardLogger())
	events := []event.Event{
		event.NewOffer("h1", "offer-sdp"),
		event.NewCandidate("h1", "c1"),
		event.NewGathered("h1"),
	}

	m.SetEvents(events)
	once := m.Events()

	m.SetEvents(events)
	twice := m.Events()

	assert.Equal(t, once, twice)
}

func TestSetEventsReplacesWholesale(t *testing.T) {
	conn := &fakeConn{offer: "offer-sdp"}
	m := New("h1", "h1", conn, discardLogger())
	_, err := m.CreateOffer(context.Background())
	require.NoError(t, err)

	// A partial payload clobbers locally produced events. Peers avoid this
	// by always transmitting their full log.
	m.SetEvents([]event.Event{event.NewCandidate("g1", "guest-c1")})

	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.NewCandidate("g1", "guest-c1"), events[0])
}

func TestFullRoundTrip(t *testing.T) {
	ctx := context.Background()

	hostConn := &fakeConn{offer: "offer-sdp"}
	guestConn := &fakeConn{answer: "answer-sdp"}
	host := New("h1", "h1", hostConn, discardLogger())
	guest := New("h1", "g1", guestConn, discardLogger())

	// Host: offer, candidates, gathered.
	ok, err := host.CreateOffer(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, host.AddLocalCandidate("host-c1"))
	require.True(t, host.AddLocalCandidate("host-c2"))
	require.True(t, host.FinishGathering())

	// Relay delivers the host's full log to the guest.
	guest.SetEvents(host.Events())

	// Guest: answer, candidates, gathered.
	ok, err = guest.CreateAnswer(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, guest.AddLocalCandidate("guest-c1"))
	require.True(t, guest.AddLocalCandidate("guest-c2"))
	require.True(t, guest.AddLocalCandidate("guest-c3"))
	require.True(t, guest.FinishGathering())
	assert.Equal(t, StateAnswerGathered, guest.State())

	// Relay delivers the guest's full log back to the host.
	host.SetEvents(guest.Events())
	assert.Equal(t, StateOfferGathered, host.State())

	ok, err = host.AddAnswer(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateConnected, host.State())

	// The applied descriptions are the emitted offer/answer verbatim.
	assert.Equal(t, []string{"offer-sdp", "offer-sdp"}, hostConn.locals)
	assert.Equal(t, []string{"answer-sdp"}, hostConn.remotes)

	// Every guest candidate applied exactly once; the host's own filtered out.
	assert.Equal(t, []string{"guest-c1", "guest-c2", "guest-c3"}, hostConn.candidates)
	assert.Equal(t, []string{"host-c1", "host-c2"}, guestConn.candidates)
}

func TestAddAnswerGuards(t *testing.T) {
	ctx := context.Background()

	setup := func() *Machine {
		m := New("h1", "h1", &fakeConn{offer: "offer-sdp"}, discardLogger())
		_, err := m.CreateOffer(ctx)
		require.NoError(t, err)
		require.True(t, m.FinishGathering())
		return m
	}

	t.Run("requires answer", func(t *testing.T) {
		m := setup()
		ok, err := m.AddAnswer(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, StateOfferGathered, m.State())
	})

	t.Run("requires guest gathered", func(t *testing.T) {
		m := setup()
		events := append(m.Events(), event.NewAnswer("g1", "answer-sdp"))
		m.SetEvents(events)
		ok, err := m.AddAnswer(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("not before gathering completes", func(t *testing.T) {
		m := New("h1", "h1", &fakeConn{offer: "offer-sdp"}, discardLogger())
		_, err := m.CreateOffer(ctx)
		require.NoError(t, err)
		events := append(m.Events(),
			event.NewAnswer("g1", "answer-sdp"),
			event.NewGathered("g1"),
		)
		m.SetEvents(events)
		ok, err := m.AddAnswer(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
