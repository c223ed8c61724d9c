package converter

import (
	"time"

	"github.com/niconiahi/peercall/internal/relay"
)

type SessionResponse struct {
	Host        string    `json:"host"`
	Connections int       `json:"connections"`
	CreatedAt   time.Time `json:"created_at"`
}

func SessionToApi(s relay.Session) *SessionResponse {
	return &SessionResponse{
		Host:        s.Host,
		Connections: s.Connections,
		CreatedAt:   s.CreatedAt,
	}
}
