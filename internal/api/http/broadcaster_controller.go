package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/niconiahi/peercall/internal/api/http/converter"
	"github.com/niconiahi/peercall/internal/relay"
	"github.com/niconiahi/peercall/lib/logger/sl"
)

type BroadcasterController struct {
	relay    relay.SessionRelay
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewBroadcasterController(sessions relay.SessionRelay, log *slog.Logger) *BroadcasterController {
	if log == nil {
		log = slog.Default()
	}
	return &BroadcasterController{
		relay: sessions,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Join upgrades the request and joins the socket to the session named by the
// "host" query param. A request lacking the param is a client error.
func (c *BroadcasterController) Join(ctx *gin.Context) {
	host := ctx.Query("host")
	if host == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": `a "host" search param is required`})
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn("failed to upgrade connection", sl.Err(err))
		return
	}
	defer conn.Close()

	// Blocks for the socket's lifetime; Serve removes the socket from the
	// session on disconnect.
	c.relay.Serve(host, conn)
}

func (c *BroadcasterController) ListSessions(ctx *gin.Context) {
	sessions := c.relay.Sessions()
	out := make([]*converter.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, converter.SessionToApi(session))
	}
	ctx.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (c *BroadcasterController) GetSession(ctx *gin.Context) {
	session, err := c.relay.Session(ctx.Param("host"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, relay.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"session": converter.SessionToApi(session)})
}
