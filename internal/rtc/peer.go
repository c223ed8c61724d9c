// Package rtc adapts a pion PeerConnection to the negotiation.Connection
// capability. Descriptions and candidates cross the boundary as their
// serialized JSON forms so that the negotiation core never depends on
// WebRTC types.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
)

// Conn wraps one PeerConnection plus a pre-negotiated data channel. The data
// channel gives the SDP something to negotiate for headless peers that carry
// no media tracks.
type Conn struct {
	pc *webrtc.PeerConnection

	mu          sync.RWMutex
	onCandidate func(candidate string)
	onGathered  func()
}

// New creates a PeerConnection configured with the given STUN servers.
func New(stunServers []string) (*Conn, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	if _, err := pc.CreateDataChannel("peercall", nil); err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	c := &Conn{pc: pc}
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		c.mu.RLock()
		onCandidate, onGathered := c.onCandidate, c.onGathered
		c.mu.RUnlock()

		// A nil candidate signals the end of gathering.
		if candidate == nil {
			if onGathered != nil {
				onGathered()
			}
			return
		}
		if onCandidate == nil {
			return
		}
		data, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			return
		}
		onCandidate(string(data))
	})

	return c, nil
}

// OnCandidate registers a callback invoked with each locally gathered
// candidate, serialized.
func (c *Conn) OnCandidate(fn func(candidate string)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

// OnGatheringComplete registers a callback invoked once local candidate
// gathering has finished.
func (c *Conn) OnGatheringComplete(fn func()) {
	c.mu.Lock()
	c.onGathered = fn
	c.mu.Unlock()
}

// OnConnectionStateChange registers a callback observing the underlying
// connection state.
func (c *Conn) OnConnectionStateChange(fn func(state string)) {
	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		fn(state.String())
	})
}

func (c *Conn) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return marshalDescription(offer)
}

func (c *Conn) CreateAnswer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return marshalDescription(answer)
}

func (c *Conn) SetLocalDescription(ctx context.Context, description string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	desc, err := unmarshalDescription(description)
	if err != nil {
		return err
	}
	return c.pc.SetLocalDescription(desc)
}

func (c *Conn) SetRemoteDescription(ctx context.Context, description string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	desc, err := unmarshalDescription(description)
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(desc)
}

func (c *Conn) AddICECandidate(ctx context.Context, candidate string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return fmt.Errorf("parse ice candidate: %w", err)
	}
	return c.pc.AddICECandidate(init)
}

func (c *Conn) Close() error {
	return c.pc.Close()
}

func marshalDescription(desc webrtc.SessionDescription) (string, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("marshal session description: %w", err)
	}
	return string(data), nil
}

func unmarshalDescription(description string) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(description), &desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("parse session description: %w", err)
	}
	return desc, nil
}
