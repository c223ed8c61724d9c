package negotiation

import "context"

// Connection is the capability the state machine drives. Session
// descriptions and candidates are opaque serialized strings; the machine
// transports and records them without inspecting their contents.
type Connection interface {
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context) (string, error)
	SetLocalDescription(ctx context.Context, description string) error
	SetRemoteDescription(ctx context.Context, description string) error
	AddICECandidate(ctx context.Context, candidate string) error
}
